package world

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"automata.ai/internal/persistence/kvstore"
	"automata.ai/internal/persistence/snapshot"
	"automata.ai/internal/sim/player"
	"automata.ai/internal/sim/tuning"
)

type Config struct {
	Tuning tuning.Tuning
	Logger *zap.Logger
}

// World is the single-threaded ledger state machine.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg    Config
	log    *zap.Logger
	store  kvstore.Store
	engine *player.Engine
	admin  [4]uint64

	ledger       *ledger
	startCounter uint64
	seq          uint64
	digest       [32]byte
	settlement   []Withdrawal

	inbox chan TxRequest
	query chan queryRequest
	stop  chan struct{}

	// Optional sinks (may be nil). Implemented in internal/persistence/* and transport/*.
	txLogger       TxLogger
	settlementSink SettlementSink
	observer       Observer
	snapshotSink   chan<- snapshot.SnapshotV1
}

type TxLogger interface {
	WriteTx(entry TxLogEntry) error
}

type SettlementSink interface {
	WriteSettlement(batch []Withdrawal) error
}

// Observer sees every processed transaction after it is durable.
type Observer interface {
	OnTx(entry TxLogEntry, res Result)
}

// Observers fans one transaction out to several observers in order.
type Observers []Observer

func (obs Observers) OnTx(entry TxLogEntry, res Result) {
	for _, o := range obs {
		o.OnTx(entry, res)
	}
}

// TxLogEntry is one line of the transaction log; replaying the entries in
// order reproduces every digest.
type TxLogEntry struct {
	Seq     uint64    `json:"seq"`
	Counter uint64    `json:"counter"`
	PKey    [4]uint64 `json:"pkey"`
	Params  []uint64  `json:"params"`
	Rand    [4]uint64 `json:"rand"`
	Status  uint32    `json:"status"`
	EventID uint64    `json:"event_id"`
	Digest  string    `json:"digest"`
	Abort   string    `json:"abort,omitempty"`
}

// TxRequest asks the world loop to process one transaction. A nil Rand is
// derived from the digest chain.
type TxRequest struct {
	PKey   [4]uint64
	Params []uint64
	Rand   *[4]uint64
	Resp   chan TxReply
}

type TxReply struct {
	Result Result
	Err    error
}

type queryRequest struct {
	fn   func(*World)
	done chan struct{}
}

// New restores the ledger from store, or starts a fresh one.
func New(cfg Config, store kvstore.Store) (*World, error) {
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &World{
		cfg:    cfg,
		log:    logger,
		store:  store,
		engine: player.NewEngine(cfg.Tuning),
		admin:  cfg.Tuning.AdminKeyWords(),
		inbox:  make(chan TxRequest, 1024),
		query:  make(chan queryRequest, 64),
		stop:   make(chan struct{}),
	}
	if err := w.initialize(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *World) SetTxLogger(l TxLogger)                        { w.txLogger = l }
func (w *World) SetSettlementSink(s SettlementSink)            { w.settlementSink = s }
func (w *World) SetObserver(o Observer)                        { w.observer = o }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Inbox() chan<- TxRequest { return w.inbox }

func (w *World) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.flushSettlement()
			return ctx.Err()
		case <-w.stop:
			w.flushSettlement()
			return nil
		case q := <-w.query:
			q.fn(w)
			close(q.done)
		case req := <-w.inbox:
			w.handleRequest(req)
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// Query runs fn on the world loop goroutine and waits for it.
func (w *World) Query(ctx context.Context, fn func(*World)) error {
	q := queryRequest{fn: fn, done: make(chan struct{})}
	select {
	case w.query <- q:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit sends a transaction to the world loop and waits for its result.
func (w *World) Submit(ctx context.Context, pkey [4]uint64, params []uint64) (Result, error) {
	req := TxRequest{PKey: pkey, Params: params, Resp: make(chan TxReply, 1)}
	select {
	case w.inbox <- req:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case r := <-req.Resp:
		return r.Result, r.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (w *World) handleRequest(req TxRequest) {
	rand := w.Randomness()
	if req.Rand != nil {
		rand = *req.Rand
	}
	res, err := w.Process(req.PKey, rand, req.Params)
	if req.Resp != nil {
		req.Resp <- TxReply{Result: res, Err: err}
	}
	if err != nil || !w.Preempt() {
		return
	}
	// One checkpoint per boundary; later commands at the same counter skip it.
	w.startCounter = w.ledger.Queue.Counter
	w.flushSettlement()
	if w.snapshotSink != nil {
		snap, err := w.ExportSnapshot()
		if err != nil {
			w.log.Error("export snapshot", zap.Error(err))
			return
		}
		select {
		case w.snapshotSink <- snap:
		default:
			// Drop snapshot if sink is backed up.
		}
	}
}

func (w *World) flushSettlement() {
	batch := w.FlushSettlement()
	if len(batch) == 0 || w.settlementSink == nil {
		return
	}
	if err := w.settlementSink.WriteSettlement(batch); err != nil {
		w.log.Error("write settlement", zap.Int("withdrawals", len(batch)), zap.Error(err))
	}
}
