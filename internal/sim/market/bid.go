package market

import "automata.ai/internal/protocol"

type BidKind uint8

const (
	InstantBuy BidKind = iota + 1
	TopUp
	Replace
)

func (k BidKind) String() string {
	switch k {
	case InstantBuy:
		return "instant_buy"
	case TopUp:
		return "top_up"
	case Replace:
		return "replace"
	default:
		return "unknown"
	}
}

// Plan is the balance movement one accepted bid requires.
type Plan struct {
	Kind   BidKind
	Bidder [2]uint64
	Price  uint64
	// Debit is taken from the bidder.
	Debit uint64
	// Refund, when set, is paid back in full to a displaced bidder.
	Refund *BidInfo
	// Seller receives Credit when the bid settles the listing.
	Seller [2]uint64
	Credit uint64
}

func (p Plan) Settles() bool { return p.Kind == InstantBuy }

// PlanBid decides how a bid of price by bidder would be handled. It does not
// mutate obj.
func PlanBid(obj BidObject, bidder [2]uint64, price uint64) (Plan, error) {
	if obj.Closed() || obj.Owner() == bidder {
		return Plan{}, protocol.ErrCardIsInUse
	}
	if price == 0 {
		return Plan{}, protocol.ErrBidPriceInsufficient
	}
	prev, hasPrev := obj.Bidder()
	own := hasPrev && prev.Bidder == bidder
	plan := Plan{Bidder: bidder, Price: price, Seller: obj.Owner()}

	switch {
	case price >= obj.Ask():
		plan.Kind = InstantBuy
		plan.Credit = price
		plan.Debit = price
		if own {
			plan.Debit = price - prev.Price
		} else if hasPrev {
			plan.Refund = &prev
		}
	case own:
		if price <= prev.Price {
			return Plan{}, protocol.ErrBidPriceInsufficient
		}
		plan.Kind = TopUp
		plan.Debit = price - prev.Price
	default:
		if hasPrev && price <= prev.Price {
			return Plan{}, protocol.ErrBidPriceInsufficient
		}
		plan.Kind = Replace
		plan.Debit = price
		if hasPrev {
			plan.Refund = &prev
		}
	}
	return plan, nil
}

// Apply records an accepted plan on obj. A settling bid hands ownership to
// the bidder.
func Apply(obj BidObject, plan Plan) {
	obj.SetBidder(BidInfo{Bidder: plan.Bidder, Price: plan.Price})
	if plan.Settles() {
		obj.SetOwner(plan.Bidder)
		obj.Settle()
	}
}

// PlanSell is the owner cashing out at the current bid.
func PlanSell(obj BidObject) (BidInfo, error) {
	if obj.Closed() {
		return BidInfo{}, protocol.ErrCardIsInUse
	}
	b, ok := obj.Bidder()
	if !ok {
		return BidInfo{}, protocol.ErrNoBidder
	}
	return b, nil
}

// ApplySell settles obj to its current bidder.
func ApplySell(obj BidObject, b BidInfo) {
	obj.SetOwner(b.Bidder)
	obj.Settle()
}
