package player

import (
	"automata.ai/internal/protocol"
	"automata.ai/internal/sim/card"
	"automata.ai/internal/sim/market"
)

// CardUsed reports whether any object ring references cardIndex.
func (d *Data) CardUsed(cardIndex int) bool {
	for i := range d.Objects {
		if d.Objects[i].References(cardIndex) {
			return true
		}
	}
	return false
}

// ListCard stamps card cardIndex with marketID and returns the new listing.
func (d *Data) ListCard(cardIndex, ask, marketID uint64, owner [2]uint64) (*MarketCard, error) {
	if cardIndex >= uint64(len(d.Cards)) {
		return nil, protocol.ErrIndexOutOfBound
	}
	c := &d.Cards[cardIndex]
	if d.CardUsed(int(cardIndex)) || c.Listed() {
		return nil, protocol.ErrCardIsInUse
	}
	l := market.New(marketID, ask, *c, owner)
	c.MarketID = marketID
	return l, nil
}

// ListedCard returns the listing id of cardIndex.
func (d *Data) ListedCard(cardIndex uint64) (uint64, error) {
	if cardIndex >= uint64(len(d.Cards)) || !d.Cards[cardIndex].Listed() {
		return 0, protocol.ErrIndexOutOfBound
	}
	return d.Cards[cardIndex].MarketID, nil
}

// SellCard cashes out a listed card at the current bid: the owner is
// credited, the card leaves the inventory and the listing settles. The caller
// delivers l.Object to the bidder.
func (d *Data) SellCard(cardIndex uint64, l *MarketCard) error {
	id, err := d.ListedCard(cardIndex)
	if err != nil {
		return err
	}
	if id != l.MarketID {
		return protocol.ErrIndexOutOfBound
	}
	bid, err := market.PlanSell(l)
	if err != nil {
		return err
	}
	d.Local.IncBalance(bid.Price)
	d.RemoveCard(int(cardIndex))
	market.ApplySell(l, bid)
	return nil
}

// ReceiveCard adds a traded card to the inventory.
func (d *Data) ReceiveCard(c card.Card) {
	d.Cards = append(d.Cards, c.WithMarketID(0))
}

// RemoveListedCard removes the card backing listing marketID.
func (d *Data) RemoveListedCard(marketID uint64) bool {
	for i := range d.Cards {
		if d.Cards[i].MarketID == marketID {
			d.RemoveCard(i)
			return true
		}
	}
	return false
}

// maxRingCard is the largest card index a ring slot can hold.
const maxRingCard = 0xfe

// RemoveCard swap-removes cardIndex. Rings pointing at the old last slot are
// remapped to the freed slot.
func (d *Data) RemoveCard(cardIndex int) {
	last := len(d.Cards) - 1
	if cardIndex < 0 || cardIndex > last {
		return
	}
	d.Cards[cardIndex] = d.Cards[last]
	d.Cards = d.Cards[:last]
	if cardIndex == last || last > maxRingCard {
		return
	}
	for i := range d.Objects {
		d.Objects[i].Remap(uint8(last), uint8(cardIndex))
	}
}
