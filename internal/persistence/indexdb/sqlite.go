// Package indexdb is the queryable read model of the ledger: every processed
// transaction and the latest state of every market listing. It is rebuilt
// from the transaction log and is never consulted by the state machine.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"automata.ai/internal/persistence/snapshot"
	"automata.ai/internal/protocol"
	"automata.ai/internal/sim/market"
	"automata.ai/internal/sim/tuning"
	"automata.ai/internal/sim/world"
)

type SQLiteIndex struct {
	db  *sql.DB
	log *zap.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqTx reqKind = iota + 1
	reqSnapshot
	reqFlush
)

type req struct {
	kind reqKind

	entry    world.TxLogEntry
	events   []world.MarketEvent
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	Counter uint64
	Seq     uint64
	Path    string
	Digest  string
	Entries int
}

// Market is one row of the listings table.
type Market struct {
	MarketID   uint64    `json:"market_id"`
	Owner      [2]uint64 `json:"owner"`
	AskPrice   uint64    `json:"ask_price"`
	SettleInfo uint64    `json:"settle_info"`
	BidPrice   uint64    `json:"bid_price"`
	Bidder     [2]uint64 `json:"bidder"`
	Card       string    `json:"card"`
	EventID    uint64    `json:"event_id"`
	UpdatedSeq uint64    `json:"updated_seq"`
}

// Tx is one row of the transaction table.
type Tx struct {
	Seq     uint64    `json:"seq"`
	Counter uint64    `json:"counter"`
	Player  [2]uint64 `json:"player"`
	Opcode  string    `json:"opcode"`
	Status  uint32    `json:"status"`
	EventID uint64    `json:"event_id"`
	Digest  string    `json:"digest"`
}

func OpenSQLite(path string, logger *zap.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		log: logger,
		ch:  make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// The index is rebuildable from the tx log, so NORMAL durability is enough.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS txs (
			seq INTEGER PRIMARY KEY,
			counter INTEGER NOT NULL,
			player0 TEXT NOT NULL,
			player1 TEXT NOT NULL,
			opcode TEXT NOT NULL,
			status INTEGER NOT NULL,
			event_id INTEGER NOT NULL,
			digest TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_txs_player ON txs(player0, player1, seq);`,
		`CREATE TABLE IF NOT EXISTS markets (
			market_id INTEGER PRIMARY KEY,
			owner0 TEXT NOT NULL,
			owner1 TEXT NOT NULL,
			ask_price INTEGER NOT NULL,
			settle_info INTEGER NOT NULL,
			bid_price INTEGER NOT NULL,
			bidder0 TEXT NOT NULL,
			bidder1 TEXT NOT NULL,
			card_json TEXT NOT NULL,
			event_id INTEGER NOT NULL,
			updated_seq INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_markets_bidder ON markets(bidder0, bidder1);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			counter INTEGER PRIMARY KEY,
			seq INTEGER NOT NULL,
			path TEXT NOT NULL,
			digest TEXT NOT NULL,
			entries INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Words above 2^63 do not fit an sqlite INTEGER, so player ids are stored as
// fixed-width hex.
func hexWord(v uint64) string { return fmt.Sprintf("%016x", v) }

func parseHexWord(s string) uint64 {
	var v uint64
	_, _ = fmt.Sscanf(s, "%x", &v)
	return v
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
		if n := s.dropped.Load(); n > 0 {
			s.log.Warn("index dropped requests", zap.Uint64("dropped", n))
		}
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// The tx log stays the source of truth; a rebuild fills the gap.
		s.dropped.Add(1)
	}
}

// OnTx indexes a committed transaction and the listings it touched.
func (s *SQLiteIndex) OnTx(entry world.TxLogEntry, res world.Result) {
	evs, err := world.DecodeEvents(res.Events)
	if err != nil {
		s.log.Error("decode tx events", zap.Uint64("seq", entry.Seq), zap.Error(err))
		return
	}
	s.enqueue(req{kind: reqTx, entry: entry, events: evs})
}

func (s *SQLiteIndex) RecordSnapshot(path string, h snapshot.Header) {
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		Counter: h.Counter,
		Seq:     h.Seq,
		Path:    path,
		Digest:  h.Digest,
		Entries: h.Entries,
	}})
}

// Flush waits until every queued request is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpsertTuning records the tuning the ledger runs under.
func (s *SQLiteIndex) UpsertTuning(t tuning.Tuning) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for k, v := range map[string]string{
		"schema_version":   "1",
		"protocol_version": protocol.Version,
		"tuning":           string(b),
		"tuning_digest":    hex.EncodeToString(sum[:]),
	} {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, k, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListMarkets returns listings ordered by id. With openOnly, settled listings
// are skipped.
func (s *SQLiteIndex) ListMarkets(ctx context.Context, openOnly bool, limit int) ([]Market, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT market_id,owner0,owner1,ask_price,settle_info,bid_price,bidder0,bidder1,card_json,event_id,updated_seq FROM markets`
	if openOnly {
		q += fmt.Sprintf(` WHERE settle_info <> %d`, market.Settled)
	}
	q += ` ORDER BY market_id LIMIT ?`
	return s.queryMarkets(ctx, q, limit)
}

// BidsBy returns the listings whose current top bid is pid's.
func (s *SQLiteIndex) BidsBy(ctx context.Context, pid [2]uint64) ([]Market, error) {
	return s.queryMarkets(ctx,
		`SELECT market_id,owner0,owner1,ask_price,settle_info,bid_price,bidder0,bidder1,card_json,event_id,updated_seq FROM markets
		 WHERE bidder0 = ? AND bidder1 = ? AND bid_price > 0 ORDER BY market_id`,
		hexWord(pid[0]), hexWord(pid[1]))
}

func (s *SQLiteIndex) queryMarkets(ctx context.Context, q string, args ...any) ([]Market, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Market
	for rows.Next() {
		var (
			m                              Market
			o0, o1, b0, b1                 string
			id, ask, settle, price, ev, sq int64
		)
		if err := rows.Scan(&id, &o0, &o1, &ask, &settle, &price, &b0, &b1, &m.Card, &ev, &sq); err != nil {
			return nil, err
		}
		m.MarketID, m.AskPrice, m.SettleInfo, m.BidPrice = uint64(id), uint64(ask), uint64(settle), uint64(price)
		m.EventID, m.UpdatedSeq = uint64(ev), uint64(sq)
		m.Owner = [2]uint64{parseHexWord(o0), parseHexWord(o1)}
		m.Bidder = [2]uint64{parseHexWord(b0), parseHexWord(b1)}
		out = append(out, m)
	}
	return out, rows.Err()
}

// TxsBy returns pid's most recent transactions, newest first.
func (s *SQLiteIndex) TxsBy(ctx context.Context, pid [2]uint64, limit int) ([]Tx, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq,counter,opcode,status,event_id,digest FROM txs
		 WHERE player0 = ? AND player1 = ? ORDER BY seq DESC LIMIT ?`,
		hexWord(pid[0]), hexWord(pid[1]), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tx
	for rows.Next() {
		var (
			t                  Tx
			seq, counter, evID int64
		)
		if err := rows.Scan(&seq, &counter, &t.Opcode, &t.Status, &evID, &t.Digest); err != nil {
			return nil, err
		}
		t.Seq, t.Counter, t.EventID, t.Player = uint64(seq), uint64(counter), uint64(evID), pid
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTx, _ := s.db.Prepare(`INSERT OR REPLACE INTO txs(seq,counter,player0,player1,opcode,status,event_id,digest,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	upsertMarket, _ := s.db.Prepare(`INSERT OR REPLACE INTO markets(market_id,owner0,owner1,ask_price,settle_info,bid_price,bidder0,bidder1,card_json,event_id,updated_seq) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(counter,seq,path,digest,entries) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTx, upsertMarket, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx          *sql.Tx
		opCount     int
		commitEvery = 2000
	)
	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.Error("index begin", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.log.Error("index commit", zap.Error(err))
		}
		tx = nil
		opCount = 0
	}
	rollback := func(err error) {
		s.log.Error("index write", zap.Error(err))
		if tx != nil {
			_ = tx.Rollback()
		}
		tx = nil
		opCount = 0
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTx:
			if err := s.writeTx(tx.Stmt(insertTx), tx.Stmt(upsertMarket), r); err != nil {
				rollback(err)
				continue
			}
			opCount += 1 + len(r.events)
		case reqSnapshot:
			sn := r.snapshot
			if _, err := tx.Stmt(insertSnapshot).Exec(int64(sn.Counter), int64(sn.Seq), sn.Path, sn.Digest, sn.Entries); err != nil {
				rollback(err)
				continue
			}
			opCount++
		}
		// Commit whenever the queue drains so readers never wait on an idle tx.
		if opCount >= commitEvery || len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}

func (s *SQLiteIndex) writeTx(insertTx, upsertMarket *sql.Stmt, r req) error {
	e := r.entry
	pid := protocol.PlayerID(e.PKey)
	op := protocol.DecodeCommand(e.Params).Op
	raw, _ := json.Marshal(e)
	if _, err := insertTx.Exec(int64(e.Seq), int64(e.Counter), hexWord(pid[0]), hexWord(pid[1]),
		protocol.OpName(op), e.Status, int64(e.EventID), e.Digest, string(raw)); err != nil {
		return err
	}
	for _, ev := range r.events {
		l := ev.Listing
		if l == nil {
			continue
		}
		var bid market.BidInfo
		if l.Bid != nil {
			bid = *l.Bid
		}
		cardJSON, _ := json.Marshal(l.Object)
		if _, err := upsertMarket.Exec(int64(l.MarketID),
			hexWord(l.OwnerID[0]), hexWord(l.OwnerID[1]),
			int64(l.AskPrice), int64(l.SettleInfo), int64(bid.Price),
			hexWord(bid.Bidder[0]), hexWord(bid.Bidder[1]),
			string(cardJSON), int64(ev.ID), int64(e.Seq)); err != nil {
			return err
		}
	}
	return nil
}
