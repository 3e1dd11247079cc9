package player

import (
	"testing"

	"github.com/stretchr/testify/require"

	"automata.ai/internal/protocol"
	"automata.ai/internal/sim/card"
	"automata.ai/internal/sim/encoding"
	"automata.ai/internal/sim/market"
	"automata.ai/internal/sim/object"
)

func TestListCard_Guards(t *testing.T) {
	_, p := newTestPlayer(t, 0)
	d := &p.Data
	d.Objects = append(d.Objects, object.New([]uint8{1}, 0))

	_, err := d.ListCard(9, 100, 1, p.ID)
	require.ErrorIs(t, err, protocol.ErrIndexOutOfBound)
	_, err = d.ListCard(1, 100, 1, p.ID)
	require.ErrorIs(t, err, protocol.ErrCardIsInUse)

	l, err := d.ListCard(0, 100, 1, p.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), d.Cards[0].MarketID)
	require.Equal(t, uint64(1), l.Object.MarketID)
	require.Equal(t, p.ID, l.Owner())

	_, err = d.ListCard(0, 100, 2, p.ID)
	require.ErrorIs(t, err, protocol.ErrCardIsInUse)
}

func TestSellCard_NoBidderKeepsCard(t *testing.T) {
	_, p := newTestPlayer(t, 0)
	d := &p.Data
	l, err := d.ListCard(0, 500, 3, p.ID)
	require.NoError(t, err)

	require.ErrorIs(t, d.SellCard(0, l), protocol.ErrNoBidder)
	require.Len(t, d.Cards, 3)
	require.Equal(t, uint64(3), d.Cards[0].MarketID)
	require.False(t, l.Closed())

	require.ErrorIs(t, d.SellCard(1, l), protocol.ErrIndexOutOfBound)
}

func TestSellCard_WithBidder(t *testing.T) {
	_, p := newTestPlayer(t, 0)
	d := &p.Data
	l, err := d.ListCard(2, 500, 3, p.ID)
	require.NoError(t, err)
	buyer := [2]uint64{9, 9}
	plan, err := market.PlanBid(l, buyer, 300)
	require.NoError(t, err)
	market.Apply(l, plan)

	require.NoError(t, d.SellCard(2, l))
	require.Equal(t, uint64(300), d.Local.Balance())
	require.Len(t, d.Cards, 2)
	require.True(t, l.Closed())
	require.Equal(t, buyer, l.Owner())
	require.Zero(t, l.Object.MarketID)
}

func TestRemoveCard_RemapsLastSlot(t *testing.T) {
	_, p := newTestPlayer(t, 0)
	d := &p.Data
	d.Cards = append(d.Cards, card.Card{Duration: 77})
	d.Objects = append(d.Objects, object.New([]uint8{3, 1, 3}, 0))

	d.RemoveCard(0)
	require.Len(t, d.Cards, 3)
	require.Equal(t, uint64(77), d.Cards[0].Duration)
	require.Equal(t, []uint8{0, 1, 0}, d.Objects[0].Ring)

	d.RemoveCard(2)
	require.Len(t, d.Cards, 2)
	require.Equal(t, []uint8{0, 1, 0}, d.Objects[0].Ring)
}

func TestReceiveAndRemoveListed(t *testing.T) {
	_, p := newTestPlayer(t, 0)
	d := &p.Data
	d.ReceiveCard(card.Card{Duration: 5, MarketID: 12})
	require.Zero(t, d.Cards[3].MarketID)

	d.Cards[1].MarketID = 40
	require.True(t, d.RemoveListedCard(40))
	require.False(t, d.RemoveListedCard(40))
	require.Len(t, d.Cards, 3)
}

func TestPlayerWords(t *testing.T) {
	e, p := newTestPlayer(t, 12345)
	p.Nonce = 7
	require.NoError(t, e.PayCost(&p.Data, 0))
	p.Data.RedeemInfo[3] = 9
	p.Data.Objects = append(p.Data.Objects, object.New([]uint8{0, 2}, 11))
	p.Data.Local[0] = -1

	w := encoding.NewWriter(0)
	p.EncodeWords(w)
	header := w.Words()[1]
	require.Equal(t, uint64(p.Data.Level)<<48, header&^(1<<48-1))

	got, err := Decode(p.ID, encoding.NewReader(w.Words()))
	require.NoError(t, err)
	require.Equal(t, p, got)

	_, err = Decode(p.ID, encoding.NewReader(w.Words()[:6]))
	require.ErrorIs(t, err, encoding.ErrShortData)
}
