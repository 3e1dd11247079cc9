// Package card holds the attribute-delta templates players slot into objects.
package card

import (
	"automata.ai/internal/sim/encoding"
	"automata.ai/internal/sim/tuning"
)

// Words is the persisted size of one card.
const Words = 3

// Card is immutable once created, except for MarketID which is non-zero
// exactly while the card backs an open listing.
type Card struct {
	Duration   uint64  `json:"duration"`
	Attributes [8]int8 `json:"attributes"`
	MarketID   uint64  `json:"marketid"`
}

func (c Card) Listed() bool { return c.MarketID != 0 }

// WithMarketID returns a copy of c stamped with id.
func (c Card) WithMarketID(id uint64) Card {
	c.MarketID = id
	return c
}

func (c Card) EncodeWords(w *encoding.Writer) {
	w.U64(c.Duration)
	w.U64(encoding.PackInt8s(c.Attributes))
	w.U64(c.MarketID)
}

func Decode(r *encoding.Reader) Card {
	return Card{
		Duration:   r.U64(),
		Attributes: encoding.UnpackInt8s(r.U64()),
		MarketID:   r.U64(),
	}
}

// FromSpecs converts tuning card specs; the specs must already be validated.
func FromSpecs(specs []tuning.CardSpec) []Card {
	out := make([]Card, 0, len(specs))
	for _, s := range specs {
		var c Card
		c.Duration = s.Duration
		for i := 0; i < len(c.Attributes) && i < len(s.Attributes); i++ {
			c.Attributes[i] = int8(s.Attributes[i])
		}
		out = append(out, c)
	}
	return out
}
