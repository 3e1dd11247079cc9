package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"automata.ai/internal/sim/market"
	"automata.ai/internal/sim/player"
)

func TestNextBid(t *testing.T) {
	self := [2]uint64{1, 2}
	other := [2]uint64{3, 4}
	cases := []struct {
		name  string
		l     player.MarketCard
		price uint64
		ok    bool
	}{
		{"fresh", player.MarketCard{AskPrice: 100, OwnerID: other}, 10, true},
		{"outbid", player.MarketCard{AskPrice: 100, OwnerID: other, SettleInfo: market.Bidding, Bid: &market.BidInfo{Bidder: [2]uint64{9, 9}, Price: 50}}, 60, true},
		{"capped at ask", player.MarketCard{AskPrice: 55, OwnerID: other, SettleInfo: market.Bidding, Bid: &market.BidInfo{Bidder: [2]uint64{9, 9}, Price: 50}}, 55, true},
		{"own listing", player.MarketCard{AskPrice: 100, OwnerID: self}, 0, false},
		{"leading", player.MarketCard{AskPrice: 100, OwnerID: other, SettleInfo: market.Bidding, Bid: &market.BidInfo{Bidder: self, Price: 20}}, 0, false},
		{"settled", player.MarketCard{AskPrice: 100, OwnerID: other, SettleInfo: market.Settled}, 0, false},
		{"over budget", player.MarketCard{AskPrice: 1000, OwnerID: other, SettleInfo: market.Bidding, Bid: &market.BidInfo{Bidder: other, Price: 495}}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			price, ok := nextBid(&tc.l, self, 500, 10)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.price, price)
		})
	}
}
