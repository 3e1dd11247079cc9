// Package market implements listings and the ascending auction with instant
// buy. It never touches balances: bids produce a Plan that the caller checks
// against the players involved before applying anything.
package market

import (
	"fmt"

	"automata.ai/internal/sim/encoding"
)

// Indexed-object key and event tags for card listings.
const (
	KeyPrefix  = 0x1ee1
	KeyPostfix = 0xfee1
	EventKind  = 0x02
)

// LayoutVersion is the first word of every persisted listing.
const LayoutVersion = 1

// HeaderWords precede the listed item's words.
const HeaderWords = 9

type SettleInfo uint64

const (
	Open    SettleInfo = 0
	Bidding SettleInfo = 1
	Settled SettleInfo = 2
)

type BidInfo struct {
	Bidder [2]uint64 `json:"bidder"`
	Price  uint64    `json:"bidprice"`
}

// Item is anything that can be listed: it serializes itself and can be
// restamped with a listing id (0 clears it).
type Item[T any] interface {
	EncodeWords(w *encoding.Writer)
	WithMarketID(id uint64) T
}

// BidObject is the capability set the bid protocol needs from a listing.
type BidObject interface {
	Ask() uint64
	Closed() bool
	Bidder() (BidInfo, bool)
	SetBidder(b BidInfo)
	Owner() [2]uint64
	SetOwner(pid [2]uint64)
	Settle()
}

type Listing[T Item[T]] struct {
	MarketID   uint64     `json:"marketid"`
	AskPrice   uint64     `json:"askprice"`
	SettleInfo SettleInfo `json:"settleinfo"`
	Bid        *BidInfo   `json:"bid"`
	OwnerID    [2]uint64  `json:"owner"`
	Object     T          `json:"object"`
}

// New lists object under id; the stored copy carries the id.
func New[T Item[T]](id, ask uint64, object T, owner [2]uint64) *Listing[T] {
	return &Listing[T]{
		MarketID: id,
		AskPrice: ask,
		OwnerID:  owner,
		Object:   object.WithMarketID(id),
	}
}

func Key(id uint64) encoding.Key { return encoding.Key{KeyPrefix, id, KeyPostfix, 0} }

func (l *Listing[T]) Ask() uint64            { return l.AskPrice }
func (l *Listing[T]) Closed() bool           { return l.SettleInfo == Settled }
func (l *Listing[T]) Owner() [2]uint64       { return l.OwnerID }
func (l *Listing[T]) SetOwner(pid [2]uint64) { l.OwnerID = pid }

func (l *Listing[T]) Bidder() (BidInfo, bool) {
	if l.Bid == nil {
		return BidInfo{}, false
	}
	return *l.Bid, true
}

func (l *Listing[T]) SetBidder(b BidInfo) {
	l.Bid = &b
	if l.SettleInfo == Open {
		l.SettleInfo = Bidding
	}
}

// Settle closes the listing and releases the item's listing stamp.
func (l *Listing[T]) Settle() {
	l.SettleInfo = Settled
	l.Object = l.Object.WithMarketID(0)
}

func (l *Listing[T]) EncodeWords(w *encoding.Writer) {
	var bid BidInfo
	if l.Bid != nil {
		bid = *l.Bid
	}
	w.U64(LayoutVersion)
	w.U64(l.MarketID)
	w.U64(l.AskPrice)
	w.U64(uint64(l.SettleInfo))
	w.U64(bid.Price)
	w.U64(bid.Bidder[0])
	w.U64(bid.Bidder[1])
	w.U64(l.OwnerID[0])
	w.U64(l.OwnerID[1])
	l.Object.EncodeWords(w)
}

// Decode reads a listing; a zero bid price means no bid.
func Decode[T Item[T]](r *encoding.Reader, item func(*encoding.Reader) T) (*Listing[T], error) {
	if v := r.U64(); v != LayoutVersion {
		if r.Err() != nil {
			return nil, r.Err()
		}
		return nil, fmt.Errorf("market: unsupported layout version %d", v)
	}
	l := &Listing[T]{
		MarketID:   r.U64(),
		AskPrice:   r.U64(),
		SettleInfo: SettleInfo(r.U64()),
	}
	var bid BidInfo
	bid.Price = r.U64()
	bid.Bidder = [2]uint64{r.U64(), r.U64()}
	if bid.Price != 0 {
		l.Bid = &bid
	}
	l.OwnerID = [2]uint64{r.U64(), r.U64()}
	l.Object = item(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	return l, nil
}
