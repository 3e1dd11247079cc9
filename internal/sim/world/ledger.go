package world

import (
	"fmt"

	"automata.ai/internal/sim/encoding"
	"automata.ai/internal/sim/events"
	"automata.ai/internal/sim/tuning"
)

var (
	globalKey = encoding.Key{0, 0, 0, 0}
	metaKey   = encoding.Key{0, 0, 0, 1}
)

// ledger is the process-wide state every handler may touch.
type ledger struct {
	Supplier   uint64
	BountyPool uint64
	MarketID   uint64
	EventID    uint64
	Queue      *events.Queue
}

func newLedger(t tuning.Tuning) *ledger {
	return &ledger{
		Supplier:   t.InitialSupplier,
		BountyPool: t.InitialBountyPool,
		MarketID:   1,
		EventID:    1,
		Queue:      &events.Queue{},
	}
}

func (l *ledger) clone() *ledger {
	c := *l
	c.Queue = l.Queue.Clone()
	return &c
}

func (l *ledger) encode() []byte {
	w := encoding.NewWriter(6 + l.Queue.Len()*events.EventWords)
	w.U64(l.Supplier)
	w.U64(l.BountyPool)
	w.U64(l.MarketID)
	w.U64(l.EventID)
	l.Queue.EncodeWords(w)
	return w.Bytes()
}

func decodeLedger(b []byte) (*ledger, error) {
	r, err := encoding.NewReaderBytes(b)
	if err != nil {
		return nil, err
	}
	l := &ledger{
		Supplier:   r.U64(),
		BountyPool: r.U64(),
		MarketID:   r.U64(),
		EventID:    r.U64(),
	}
	if l.Queue, err = events.Decode(r); err != nil {
		return nil, fmt.Errorf("ledger queue: %w", err)
	}
	return l, nil
}

func (w *World) encodeMeta() []byte {
	m := encoding.NewWriter(5)
	m.U64(w.seq)
	b := w.digest
	words, _ := encoding.BytesToWords(b[:])
	for _, v := range words {
		m.U64(v)
	}
	return m.Bytes()
}

func (w *World) decodeMeta(b []byte) error {
	r, err := encoding.NewReaderBytes(b)
	if err != nil {
		return err
	}
	w.seq = r.U64()
	var words [4]uint64
	for i := range words {
		words[i] = r.U64()
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("ledger meta: %w", err)
	}
	copy(w.digest[:], encoding.WordsToBytes(words[:]))
	return nil
}

// initialize loads the ledger and chain head from the store. An empty store
// starts a fresh ledger from tuning.
func (w *World) initialize() error {
	raw, err := w.store.Get(globalKey.Bytes())
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	w.ledger = newLedger(w.cfg.Tuning)
	if len(raw) > 0 {
		if w.ledger, err = decodeLedger(raw); err != nil {
			return err
		}
	}
	w.seq, w.digest = 0, [32]byte{}
	meta, err := w.store.Get(metaKey.Bytes())
	if err != nil {
		return fmt.Errorf("load ledger meta: %w", err)
	}
	if len(meta) > 0 {
		if err := w.decodeMeta(meta); err != nil {
			return err
		}
	}
	w.startCounter = w.ledger.Queue.Counter
	w.settlement = nil
	return nil
}
