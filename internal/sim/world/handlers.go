package world

import (
	"math/bits"

	"automata.ai/internal/protocol"
	"automata.ai/internal/sim/events"
	"automata.ai/internal/sim/market"
	"automata.ai/internal/sim/object"
	"automata.ai/internal/sim/player"
)

func handleTick(w *World, tx *txn, _ *call) error {
	q := tx.ledger.Queue
	q.Tick(func(ev events.Event) (uint64, bool) {
		p, err := tx.player(ev.Owner)
		if err != nil {
			if tx.err == nil {
				tx.err = err
			}
			return 0, false
		}
		if p == nil {
			return 0, false
		}
		next, ok := p.Data.ApplyObjectCard(ev.ObjectIndex, q.Counter)
		tx.touch(p)
		return next, ok
	})
	return tx.err
}

func handleInstallPlayer(w *World, tx *txn, c *call) error {
	p, err := tx.player(c.pid)
	if err != nil {
		return err
	}
	if p != nil {
		return protocol.ErrPlayerAlreadyExist
	}
	tx.touch(w.engine.New(c.pid, tx.counter()))
	return nil
}

func handleInstallObject(w *World, tx *txn, c *call) error {
	d := &c.caller.Data
	index := c.cmd.Payload[0]
	ring := protocol.DecodeRing(c.cmd.Payload[1])
	n := uint64(len(d.Objects))
	if index != n {
		return abort(c.cmd.Op, "object index mismatch")
	}
	if n > (uint64(d.Level)+1)/2 {
		return protocol.ErrNotEnoughLevel
	}
	if n > uint64(w.cfg.Tuning.Player.ObjectLimit) {
		return protocol.ErrIndexOutOfBound
	}
	if err := player.ValidateRing(d, ring); err != nil {
		return err
	}
	if err := w.engine.PayCost(d, w.cfg.Tuning.Economy.InstallObjectCost); err != nil {
		return err
	}
	d.Objects = append(d.Objects, object.New(ring, tx.counter()))
	tx.ledger.Queue.Insert(events.Event{
		ObjectIndex: index,
		Owner:       c.pid,
		Delta:       d.Cards[ring[0]].Duration,
	})
	return nil
}

func handleRestartObject(w *World, tx *txn, c *call) error {
	d := &c.caller.Data
	index := c.cmd.Payload[0]
	ring := protocol.DecodeRing(c.cmd.Payload[1])
	if index >= uint64(len(d.Objects)) {
		return protocol.ErrIndexOutOfBound
	}
	if err := player.ValidateRing(d, ring); err != nil {
		return err
	}
	if err := w.engine.PayCost(d, 0); err != nil {
		return err
	}
	if delay, ok := d.RestartObjectCard(index, ring, tx.counter()); ok {
		tx.ledger.Queue.Insert(events.Event{ObjectIndex: index, Owner: c.pid, Delta: delay})
	}
	return nil
}

func handleUpgradeObject(w *World, _ *txn, c *call) error {
	err := w.engine.UpgradeObject(&c.caller.Data, c.cmd.Payload[0], c.cmd.Payload[1])
	if err == player.ErrAttributeBound {
		return &AbortError{Op: protocol.OpName(c.cmd.Op), Reason: "check attributes bound", Err: err}
	}
	return err
}

func handleInstallCard(w *World, _ *txn, c *call) error {
	return w.engine.InstallCard(&c.caller.Data, c.rand[1])
}

func handleWithdraw(w *World, tx *txn, c *call) error {
	d := &c.caller.Data
	data := [3]uint64{c.cmd.Payload[1], c.cmd.Payload[2], c.cmd.Payload[3]}
	amount := data[0] & 0xffffffff
	if amount > tx.ledger.BountyPool {
		return protocol.ErrNotEnoughPool
	}
	if err := d.Local.CostBalance(amount); err != nil {
		return err
	}
	tx.settlement = append(tx.settlement, Withdrawal{Player: c.pid, Data: data, Amount: amount})
	d.UpdateInterest(tx.counter())
	tx.ledger.BountyPool -= amount
	return nil
}

func handleDeposit(w *World, tx *txn, c *call) error {
	target := [2]uint64{c.cmd.Payload[0], c.cmd.Payload[1]}
	amount := c.cmd.Payload[3]
	pool, carry := bits.Add64(tx.ledger.BountyPool, amount, 0)
	if carry != 0 {
		return abort(c.cmd.Op, "bounty pool overflow")
	}
	p, err := tx.player(target)
	if err != nil {
		return err
	}
	if p == nil {
		p = w.engine.New(target, tx.counter())
	}
	p.Data.Local.IncBalance(amount)
	p.Data.UpdateInterest(tx.counter())
	tx.touch(p)
	tx.ledger.BountyPool = pool
	return nil
}

func handleBounty(w *World, tx *txn, c *call) error {
	err := w.engine.Bounty(&c.caller.Data, c.cmd.Payload[0], tx.counter())
	if err == player.ErrBountyIndex {
		return &AbortError{Op: protocol.OpName(c.cmd.Op), Reason: "check bounty index", Err: err}
	}
	return err
}

func handleCollectEnergy(w *World, tx *txn, c *call) error {
	return w.engine.CollectEnergy(&c.caller.Data, tx.counter())
}

func handleListCardInMarket(w *World, tx *txn, c *call) error {
	d := &c.caller.Data
	id := tx.ledger.MarketID
	l, err := d.ListCard(c.cmd.Payload[0], c.cmd.Payload[1], id, c.pid)
	if err != nil {
		return err
	}
	if err := w.engine.PayCost(d, 0); err != nil {
		return err
	}
	tx.putListing(l)
	tx.ledger.MarketID++
	tx.emitMarket(l)
	return nil
}

func handleBidCard(w *World, tx *txn, c *call) error {
	l, err := tx.listing(c.cmd.Payload[0])
	if err != nil {
		return err
	}
	if l == nil {
		return protocol.ErrIndexOutOfBound
	}
	plan, err := market.PlanBid(l, c.pid, c.cmd.Payload[1])
	if err != nil {
		return err
	}
	if err := c.caller.Data.Local.CostBalance(plan.Debit); err != nil {
		return err
	}
	if plan.Refund != nil {
		prev, err := tx.player(plan.Refund.Bidder)
		if err != nil {
			return err
		}
		if prev == nil {
			return abort(c.cmd.Op, "previous bidder missing")
		}
		prev.Data.Local.IncBalance(plan.Refund.Price)
		tx.touch(prev)
	}
	market.Apply(l, plan)
	if plan.Settles() {
		seller, err := tx.player(plan.Seller)
		if err != nil {
			return err
		}
		if seller == nil || !seller.Data.RemoveListedCard(l.MarketID) {
			return abort(c.cmd.Op, "listed card missing from seller")
		}
		seller.Data.Local.IncBalance(plan.Credit)
		tx.touch(seller)
		c.caller.Data.ReceiveCard(l.Object)
	}
	tx.putListing(l)
	tx.emitMarket(l)
	return nil
}

func handleSellCard(w *World, tx *txn, c *call) error {
	d := &c.caller.Data
	index := c.cmd.Payload[0]
	id, err := d.ListedCard(index)
	if err != nil {
		return err
	}
	l, err := tx.listing(id)
	if err != nil {
		return err
	}
	if l == nil {
		return abort(c.cmd.Op, "listing missing")
	}
	if err := d.SellCard(index, l); err != nil {
		return err
	}
	buyer, err := tx.player(l.Owner())
	if err != nil {
		return err
	}
	if buyer == nil {
		return abort(c.cmd.Op, "bidder missing")
	}
	buyer.Data.ReceiveCard(l.Object)
	tx.touch(buyer)
	tx.putListing(l)
	tx.emitMarket(l)
	return nil
}
