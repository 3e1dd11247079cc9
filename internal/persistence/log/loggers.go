// Package log writes the append-only transaction and settlement logs as
// hourly zstd-compressed JSONL segments.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"automata.ai/internal/sim/world"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	// Push completed blocks to the file; the frame ends on Close.
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var errs []error
	if w.w != nil {
		errs = append(errs, w.w.Flush())
	}
	if w.enc != nil {
		errs = append(errs, w.enc.Close())
		w.enc = nil
	}
	if w.f != nil {
		errs = append(errs, w.f.Close())
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return errors.Join(errs...)
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Segments lists the segment files for prefix under dir, oldest first.
func Segments(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".jsonl.zst") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// ReadJSONL decodes every line of every segment in order and hands it to fn.
func ReadJSONL[T any](dir, prefix string, fn func(T) error) error {
	files, err := Segments(dir, prefix)
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := readSegment(path, fn); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func readSegment[T any](path string, fn func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	jd := json.NewDecoder(bufio.NewReader(dec))
	for {
		var v T
		if err := jd.Decode(&v); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
}

const (
	TxPrefix         = "tx"
	SettlementPrefix = "settlement"
)

// TxLogger records every processed transaction, aborts included.
type TxLogger struct{ w *JSONLZstdWriter }

func NewTxLogger(dataDir string) *TxLogger {
	return &TxLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "txlog"), TxPrefix)}
}

func (l *TxLogger) WriteTx(v world.TxLogEntry) error { return l.w.Write(v) }
func (l *TxLogger) Close() error                     { return l.w.Close() }

// ReadTxLog replays the transaction log under dataDir in order.
func ReadTxLog(dataDir string, fn func(world.TxLogEntry) error) error {
	return ReadJSONL(filepath.Join(dataDir, "txlog"), TxPrefix, fn)
}

// SettlementBatch is one flushed group of withdrawals.
type SettlementBatch struct {
	FlushedAt   time.Time          `json:"flushed_at"`
	Withdrawals []world.Withdrawal `json:"withdrawals"`
}

// SettlementLogger is the external settlement ledger.
type SettlementLogger struct{ w *JSONLZstdWriter }

func NewSettlementLogger(dataDir string) *SettlementLogger {
	return &SettlementLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "settlement"), SettlementPrefix)}
}

func (l *SettlementLogger) WriteSettlement(batch []world.Withdrawal) error {
	return l.w.Write(SettlementBatch{FlushedAt: l.w.now().UTC(), Withdrawals: batch})
}
func (l *SettlementLogger) Close() error { return l.w.Close() }

func ReadSettlements(dataDir string, fn func(SettlementBatch) error) error {
	return ReadJSONL(filepath.Join(dataDir, "settlement"), SettlementPrefix, fn)
}
