package world

import (
	"encoding/json"
	"errors"
	"fmt"

	"automata.ai/internal/persistence/kvstore"
	"automata.ai/internal/persistence/snapshot"
	"automata.ai/internal/sim/player"
)

// Withdrawal is one settlement record produced by a successful Withdraw.
type Withdrawal struct {
	Player [2]uint64 `json:"player"`
	Data   [3]uint64 `json:"data"`
	Amount uint64    `json:"amount"`
}

// State is the public view of the ledger.
type State struct {
	Counter    uint64 `json:"counter"`
	BountyPool uint64 `json:"bounty_pool"`
	Supplier   uint64 `json:"supplier"`
	NextMarket uint64 `json:"next_market_id"`
	NextEvent  uint64 `json:"next_event_id"`
	Pending    int    `json:"pending_events"`
	Seq        uint64 `json:"seq"`
	Digest     string `json:"digest"`
}

func (w *World) Counter() uint64 { return w.ledger.Queue.Counter }
func (w *World) Seq() uint64     { return w.seq }

func (w *World) State() State {
	return State{
		Counter:    w.ledger.Queue.Counter,
		BountyPool: w.ledger.BountyPool,
		Supplier:   w.ledger.Supplier,
		NextMarket: w.ledger.MarketID,
		NextEvent:  w.ledger.EventID,
		Pending:    w.ledger.Queue.Len(),
		Seq:        w.seq,
		Digest:     w.Digest(),
	}
}

// Snapshot is the compact JSON state document.
func (w *World) Snapshot() ([]byte, error) {
	return json.Marshal(struct {
		Counter    uint64 `json:"counter"`
		BountyPool uint64 `json:"bounty_pool"`
	}{w.ledger.Queue.Counter, w.ledger.BountyPool})
}

// Player reads a committed player record. A missing player is (nil, nil).
func (w *World) Player(pid [2]uint64) (*player.Player, error) {
	return w.begin().player(pid)
}

// PlayerJSON is the committed player data plus its nonce, or nil when the
// player does not exist.
func (w *World) PlayerJSON(pid [2]uint64) ([]byte, error) {
	p, err := w.Player(pid)
	if err != nil || p == nil {
		return nil, err
	}
	return json.Marshal(struct {
		Nonce uint64       `json:"nonce"`
		Data  *player.Data `json:"data"`
	}{p.Nonce, &p.Data})
}

// Listing reads a committed market listing. A missing listing is (nil, nil).
func (w *World) Listing(id uint64) (*player.MarketCard, error) {
	return w.begin().listing(id)
}

// Preempt reports whether the current tick is a checkpoint boundary not yet
// checkpointed by the world loop.
func (w *World) Preempt() bool {
	every := w.cfg.Tuning.PreemptEveryTicks
	c := w.ledger.Queue.Counter
	return every > 0 && c%every == 0 && c != w.startCounter
}

// FlushSettlement hands over and clears the pending withdrawals.
func (w *World) FlushSettlement() []Withdrawal {
	batch := w.settlement
	w.settlement = nil
	return batch
}

// PendingSettlement returns a copy of the withdrawals not yet flushed.
func (w *World) PendingSettlement() []Withdrawal {
	return append([]Withdrawal(nil), w.settlement...)
}

// ExportSnapshot copies every committed record into a snapshot image.
func (w *World) ExportSnapshot() (snapshot.SnapshotV1, error) {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			Seq:     w.seq,
			Counter: w.ledger.Queue.Counter,
			Digest:  w.Digest(),
		},
		Tuning: w.cfg.Tuning,
	}
	err := w.store.Scan(func(k, v []byte) error {
		snap.Entries = append(snap.Entries, snapshot.EntryV1{
			Key:   append([]byte(nil), k...),
			Value: append([]byte(nil), v...),
		})
		return nil
	})
	if err != nil {
		return snapshot.SnapshotV1{}, fmt.Errorf("scan store: %w", err)
	}
	snap.Header.Entries = len(snap.Entries)
	return snap, nil
}

var errStoreNotEmpty = errors.New("import snapshot: store is not empty")

// ImportSnapshot loads snap into an empty store and reinitializes the world
// from it.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("import snapshot: unsupported version %d", snap.Header.Version)
	}
	empty := true
	if err := w.store.Scan(func(_, _ []byte) error {
		empty = false
		return errStoreNotEmpty
	}); err != nil && !errors.Is(err, errStoreNotEmpty) {
		return err
	}
	if !empty {
		return errStoreNotEmpty
	}
	batch := make([]kvstore.Write, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		batch = append(batch, kvstore.Write{Key: e.Key, Value: e.Value})
	}
	if err := w.store.Apply(batch); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	if err := w.initialize(); err != nil {
		return err
	}
	if got := w.Digest(); snap.Header.Digest != "" && got != snap.Header.Digest {
		return fmt.Errorf("import snapshot: digest mismatch: header %s store %s", snap.Header.Digest, got)
	}
	return nil
}
