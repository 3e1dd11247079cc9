package world

import (
	"fmt"
	"sort"

	"automata.ai/internal/persistence/kvstore"
	"automata.ai/internal/sim/card"
	"automata.ai/internal/sim/encoding"
	"automata.ai/internal/sim/market"
	"automata.ai/internal/sim/player"
)

// Market events are (kind<<32 | len) followed by len words.
const eventHeaderShift = 32

// txn buffers every record one transaction touches. Nothing reaches the
// store unless the whole transaction succeeds.
type txn struct {
	w      *World
	ledger *ledger

	players  map[[2]uint64]*player.Player
	listings map[uint64]*player.MarketCard
	dirtyP   map[[2]uint64]bool
	dirtyL   map[uint64]bool

	events     []uint64
	settlement []Withdrawal

	// err is the first store failure seen inside a callback that cannot
	// return one (scheduler firing).
	err error
}

func (w *World) begin() *txn {
	return &txn{
		w:        w,
		ledger:   w.ledger.clone(),
		players:  map[[2]uint64]*player.Player{},
		listings: map[uint64]*player.MarketCard{},
		dirtyP:   map[[2]uint64]bool{},
		dirtyL:   map[uint64]bool{},
	}
}

func (tx *txn) counter() uint64 { return tx.ledger.Queue.Counter }

// player returns the buffered record for pid, loading it on first use.
// A missing player is (nil, nil).
func (tx *txn) player(pid [2]uint64) (*player.Player, error) {
	if p, ok := tx.players[pid]; ok {
		return p, nil
	}
	raw, err := tx.w.store.Get(player.Key(pid).Bytes())
	if err != nil {
		return nil, fmt.Errorf("load player %v: %w", pid, err)
	}
	var p *player.Player
	if len(raw) > 0 {
		r, err := encoding.NewReaderBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("player %v: %w", pid, err)
		}
		if p, err = player.Decode(pid, r); err != nil {
			return nil, fmt.Errorf("player %v: %w", pid, err)
		}
	}
	tx.players[pid] = p
	return p, nil
}

func (tx *txn) touch(p *player.Player) {
	tx.players[p.ID] = p
	tx.dirtyP[p.ID] = true
}

func (tx *txn) listing(id uint64) (*player.MarketCard, error) {
	if l, ok := tx.listings[id]; ok {
		return l, nil
	}
	raw, err := tx.w.store.Get(market.Key(id).Bytes())
	if err != nil {
		return nil, fmt.Errorf("load listing %d: %w", id, err)
	}
	var l *player.MarketCard
	if len(raw) > 0 {
		r, err := encoding.NewReaderBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("listing %d: %w", id, err)
		}
		if l, err = market.Decode(r, card.Decode); err != nil {
			return nil, fmt.Errorf("listing %d: %w", id, err)
		}
	}
	tx.listings[id] = l
	return l, nil
}

func (tx *txn) putListing(l *player.MarketCard) {
	tx.listings[l.MarketID] = l
	tx.dirtyL[l.MarketID] = true
}

// emitMarket appends a listing event tagged with the next event id.
func (tx *txn) emitMarket(l *player.MarketCard) {
	w := encoding.NewWriter(1 + market.HeaderWords + card.Words)
	w.U64(tx.ledger.EventID)
	l.EncodeWords(w)
	body := w.Words()
	tx.events = append(tx.events, uint64(market.EventKind)<<eventHeaderShift|uint64(len(body)))
	tx.events = append(tx.events, body...)
	tx.ledger.EventID++
}

// writes returns the sorted batch for every dirty record plus the ledger.
func (tx *txn) writes() []kvstore.Write {
	batch := make([]kvstore.Write, 0, len(tx.dirtyP)+len(tx.dirtyL)+1)
	pids := make([][2]uint64, 0, len(tx.dirtyP))
	for pid := range tx.dirtyP {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool {
		if pids[i][0] != pids[j][0] {
			return pids[i][0] < pids[j][0]
		}
		return pids[i][1] < pids[j][1]
	})
	for _, pid := range pids {
		w := encoding.NewWriter(64)
		tx.players[pid].EncodeWords(w)
		batch = append(batch, kvstore.Write{Key: player.Key(pid).Bytes(), Value: w.Bytes()})
	}
	for id := range tx.dirtyL {
		w := encoding.NewWriter(market.HeaderWords + card.Words)
		tx.listings[id].EncodeWords(w)
		batch = append(batch, kvstore.Write{Key: market.Key(id).Bytes(), Value: w.Bytes()})
	}
	batch = append(batch, kvstore.Write{Key: globalKey.Bytes(), Value: tx.ledger.encode()})
	kvstore.SortWrites(batch)
	return batch
}
