package world

import (
	"fmt"

	"automata.ai/internal/sim/card"
	"automata.ai/internal/sim/encoding"
	"automata.ai/internal/sim/market"
	"automata.ai/internal/sim/player"
)

// MarketEvent is one decoded entry of a transaction's event words.
type MarketEvent struct {
	ID      uint64             `json:"event_id"`
	Kind    uint32             `json:"kind"`
	Listing *player.MarketCard `json:"listing"`
	Words   []uint64           `json:"-"`
}

// DecodeEvents splits the framed event words of a Result.
func DecodeEvents(words []uint64) ([]MarketEvent, error) {
	var out []MarketEvent
	for i := 0; i < len(words); {
		kind := uint32(words[i] >> eventHeaderShift)
		n := int(words[i] & 0xffffffff)
		i++
		if n < 1 || i+n > len(words) {
			return nil, fmt.Errorf("event at word %d: length %d overruns %d words", i-1, n, len(words))
		}
		body := words[i : i+n]
		i += n
		ev := MarketEvent{ID: body[0], Kind: kind, Words: body}
		if kind == market.EventKind {
			l, err := market.Decode(encoding.NewReader(body[1:]), card.Decode)
			if err != nil {
				return nil, fmt.Errorf("event %d: %w", ev.ID, err)
			}
			ev.Listing = l
		}
		out = append(out, ev)
	}
	return out, nil
}
