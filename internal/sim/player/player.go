// Package player holds per-player records and every rule that mutates them:
// the cost/experience economy, object firing and card inventory.
package player

import (
	"errors"
	"math"

	"automata.ai/internal/protocol"
	"automata.ai/internal/sim/card"
	"automata.ai/internal/sim/encoding"
	"automata.ai/internal/sim/market"
	"automata.ai/internal/sim/object"
)

// KeyPrefix tags player records in the store.
const KeyPrefix = 0x7001

// MarketCard is a card listing.
type MarketCard = market.Listing[card.Card]

// Fatal preconditions. These reject the whole transaction rather than
// mapping to a status code.
var (
	ErrAttributeBound = errors.New("object attribute bound exceeded")
	ErrBountyIndex    = errors.New("bounty index out of range")
)

// ResourceVector is a set of resource pools followed by the balance.
type ResourceVector []int64

func (v ResourceVector) Balance() uint64 {
	if len(v) == 0 || v[len(v)-1] < 0 {
		return 0
	}
	return uint64(v[len(v)-1])
}

// CostBalance debits b, leaving the vector untouched when it cannot.
func (v ResourceVector) CostBalance(b uint64) error {
	if len(v) == 0 || b > math.MaxInt64 || v[len(v)-1] < int64(b) {
		return protocol.ErrNotEnoughBalance
	}
	v[len(v)-1] -= int64(b)
	return nil
}

// IncBalance credits b, saturating at MaxInt64.
func (v ResourceVector) IncBalance(b uint64) {
	if len(v) == 0 {
		return
	}
	last := &v[len(v)-1]
	if b > uint64(math.MaxInt64-*last) {
		*last = math.MaxInt64
		return
	}
	*last += int64(b)
}

type Data struct {
	Level             uint16          `json:"level"`
	Exp               uint16          `json:"exp"`
	LastCheckpoint    uint32          `json:"last_check_point"`
	Energy            uint16          `json:"energy"`
	CostInfo          uint16          `json:"cost_info"`
	CurrentCost       uint32          `json:"current_cost"`
	RedeemInfo        [8]uint8        `json:"redeem_info"`
	LastInterestStamp uint64          `json:"last_interest_stamp"`
	Objects           []object.Object `json:"objects"`
	Local             ResourceVector  `json:"local"`
	Cards             []card.Card     `json:"cards"`
}

type Player struct {
	ID    [2]uint64 `json:"player_id"`
	Nonce uint64    `json:"nonce"`
	Data  Data      `json:"data"`
}

func Key(pid [2]uint64) encoding.Key { return encoding.Key{KeyPrefix, pid[0], pid[1], 0} }

// CheckAndIncNonce consumes nonce if it is the expected next value.
func (p *Player) CheckAndIncNonce(nonce uint64) bool {
	if p.Nonce != nonce {
		return false
	}
	p.Nonce++
	return true
}

func (p *Player) EncodeWords(w *encoding.Writer) {
	d := &p.Data
	w.U64(p.Nonce)
	w.U64(uint64(d.Level)<<48 | uint64(d.Exp)<<32 | uint64(d.LastCheckpoint))
	w.U64(uint64(d.Energy)<<48 | uint64(d.CostInfo)<<32 | uint64(d.CurrentCost))
	w.U64(encoding.PackBytes(d.RedeemInfo))
	w.U64(d.LastInterestStamp)
	w.U64(uint64(len(d.Objects)))
	for _, o := range d.Objects {
		o.EncodeWords(w)
	}
	w.U64(uint64(len(d.Local)))
	for _, v := range d.Local {
		w.I64(v)
	}
	w.U64(uint64(len(d.Cards)))
	for _, c := range d.Cards {
		c.EncodeWords(w)
	}
}

func Decode(pid [2]uint64, r *encoding.Reader) (*Player, error) {
	p := &Player{ID: pid, Nonce: r.U64()}
	d := &p.Data
	info := r.U64()
	d.Level = uint16(info >> 48)
	d.Exp = uint16(info >> 32)
	d.LastCheckpoint = uint32(info)
	cost := r.U64()
	d.Energy = uint16(cost >> 48)
	d.CostInfo = uint16(cost >> 32)
	d.CurrentCost = uint32(cost)
	d.RedeemInfo = encoding.UnpackBytes(r.U64())
	d.LastInterestStamp = r.U64()

	n := r.Count(object.Words)
	d.Objects = make([]object.Object, 0, n)
	for i := 0; i < n; i++ {
		d.Objects = append(d.Objects, object.Decode(r))
	}
	n = r.Count(1)
	d.Local = make(ResourceVector, 0, n)
	for i := 0; i < n; i++ {
		d.Local = append(d.Local, r.I64())
	}
	n = r.Count(card.Words)
	d.Cards = make([]card.Card, 0, n)
	for i := 0; i < n; i++ {
		d.Cards = append(d.Cards, card.Decode(r))
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return p, nil
}
