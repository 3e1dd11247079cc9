package world

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"automata.ai/internal/persistence/kvstore"
	"automata.ai/internal/protocol"
	"automata.ai/internal/sim/player"
)

// Result is the outcome of one transaction. Events holds only the events
// this transaction emitted.
type Result struct {
	Seq     uint64   `json:"seq"`
	Status  uint32   `json:"status"`
	EventID uint64   `json:"event_id"`
	Events  []uint64 `json:"events,omitempty"`
	Digest  string   `json:"digest"`
}

func (r Result) OK() bool { return r.Status == protocol.StatusOK }

// AbortError rejects a transaction outright. Nothing it touched is kept and
// no status is produced.
type AbortError struct {
	Op     string
	Reason string
	Err    error
}

func (e *AbortError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("abort %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("abort %s: %s", e.Op, e.Reason)
}

func (e *AbortError) Unwrap() error { return e.Err }

func abort(op uint64, reason string) *AbortError {
	return &AbortError{Op: protocol.OpName(op), Reason: reason}
}

// call is the decoded transaction a handler works on.
type call struct {
	pkey   [4]uint64
	pid    [2]uint64
	cmd    protocol.Command
	rand   [4]uint64
	caller *player.Player
}

type txHandler func(*World, *txn, *call) error

var txDispatch = map[uint64]txHandler{
	protocol.OpInstallObject:    handleInstallObject,
	protocol.OpRestartObject:    handleRestartObject,
	protocol.OpUpgradeObject:    handleUpgradeObject,
	protocol.OpInstallCard:      handleInstallCard,
	protocol.OpWithdraw:         handleWithdraw,
	protocol.OpDeposit:          handleDeposit,
	protocol.OpBounty:           handleBounty,
	protocol.OpCollectEnergy:    handleCollectEnergy,
	protocol.OpListCardInMarket: handleListCardInMarket,
	protocol.OpBidCard:          handleBidCard,
	protocol.OpSellCard:         handleSellCard,
}

// Process executes one transaction. A recoverable failure returns a non-zero
// Status and a nil error; a fatal assertion returns an *AbortError and
// leaves every piece of state exactly as it was.
func (w *World) Process(pkey [4]uint64, rand [4]uint64, params []uint64) (Result, error) {
	c := &call{
		pkey: pkey,
		pid:  protocol.PlayerID(pkey),
		cmd:  protocol.DecodeCommand(params),
		rand: rand,
	}
	entry := TxLogEntry{
		PKey:    pkey,
		Params:  append([]uint64(nil), params...),
		Rand:    rand,
		Counter: w.ledger.Queue.Counter,
	}

	tx := w.begin()
	status := protocol.StatusOK
	if err := w.dispatch(tx, c); err != nil {
		var code protocol.Code
		if !errors.As(err, &code) {
			var ab *AbortError
			if !errors.As(err, &ab) {
				ab = &AbortError{Op: protocol.OpName(c.cmd.Op), Reason: "internal", Err: err}
			}
			w.log.Warn("transaction aborted",
				zap.String("opcode", ab.Op),
				zap.Uint64s("pid", c.pid[:]),
				zap.String("reason", ab.Reason),
				zap.Error(ab.Err))
			entry.Seq, entry.Digest, entry.Abort = w.seq, w.Digest(), ab.Error()
			w.writeTxLog(entry)
			return Result{}, ab
		}
		status = uint32(code)
		w.log.Debug("transaction failed",
			zap.String("opcode", protocol.OpName(c.cmd.Op)),
			zap.Uint64s("pid", c.pid[:]),
			zap.String("status", protocol.CodeName(status)))
	}

	var writes []kvstore.Write
	if status == protocol.StatusOK {
		writes = tx.writes()
	}
	seq := w.seq + 1
	digest := chainDigest(w.digest, seq, status, writes)

	prevSeq, prevDigest := w.seq, w.digest
	w.seq, w.digest = seq, digest
	batch := append(writes, kvstore.Write{Key: metaKey.Bytes(), Value: w.encodeMeta()})
	if err := w.store.Apply(batch); err != nil {
		w.seq, w.digest = prevSeq, prevDigest
		w.log.Error("commit transaction", zap.Uint64("seq", seq), zap.Error(err))
		return Result{}, &AbortError{Op: protocol.OpName(c.cmd.Op), Reason: "commit", Err: err}
	}

	res := Result{Seq: seq, Status: status, Digest: w.Digest()}
	if status == protocol.StatusOK {
		w.ledger = tx.ledger
		w.settlement = append(w.settlement, tx.settlement...)
		res.Events = tx.events
	}
	res.EventID = w.ledger.EventID

	entry.Seq, entry.Status, entry.EventID, entry.Digest = seq, status, res.EventID, res.Digest
	w.writeTxLog(entry)
	if w.observer != nil {
		w.observer.OnTx(entry, res)
	}
	return res, nil
}

func (w *World) writeTxLog(entry TxLogEntry) {
	if w.txLogger == nil {
		return
	}
	if err := w.txLogger.WriteTx(entry); err != nil {
		w.log.Error("write tx log", zap.Uint64("seq", entry.Seq), zap.Error(err))
	}
}

func (w *World) isAdmin(pkey [4]uint64) bool { return pkey == w.admin }

// dispatch runs the gating protocol and then the handler. Every handler
// mutates only records buffered in tx.
func (w *World) dispatch(tx *txn, c *call) error {
	op := c.cmd.Op
	switch op {
	case protocol.OpTick:
		if !w.isAdmin(c.pkey) {
			return abort(op, "admin key mismatch")
		}
		return handleTick(w, tx, c)
	case protocol.OpInstallPlayer:
		return handleInstallPlayer(w, tx, c)
	case protocol.OpWithdraw:
		if c.cmd.Payload[0] != 0 {
			return abort(op, "unsupported withdraw token index")
		}
	case protocol.OpDeposit:
		if c.cmd.Payload[2] != 0 {
			return abort(op, "unsupported deposit token index")
		}
	}

	caller, err := tx.player(c.pid)
	if err != nil {
		return err
	}
	if caller == nil {
		return protocol.ErrPlayerNotExist
	}
	if protocol.AdminOnly(op) && !w.isAdmin(c.pkey) {
		return abort(op, "admin key mismatch")
	}
	if !caller.CheckAndIncNonce(c.cmd.Nonce) {
		return abort(op, fmt.Sprintf("nonce mismatch: want %d got %d", caller.Nonce, c.cmd.Nonce))
	}
	c.caller = caller

	h, ok := txDispatch[op]
	if !ok {
		return abort(op, "no handler")
	}
	if err := h(w, tx, c); err != nil {
		return err
	}
	tx.touch(caller)
	return nil
}
