package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"automata.ai/internal/sim/tuning"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	Seq     uint64 `json:"seq"`
	Counter uint64 `json:"counter"`
	Digest  string `json:"digest"`
	Entries int    `json:"entries"`
}

// SnapshotV1 is a full image of the ledger store plus the tuning it was
// produced under.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Tuning tuning.Tuning `json:"tuning"`

	Entries []EntryV1 `json:"entries"`
}

type EntryV1 struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

// FileName is the canonical snapshot name for a tick counter.
func FileName(counter uint64) string { return fmt.Sprintf("%012d.snap.zst", counter) }

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	snap.Header.Version = Version
	snap.Header.Entries = len(snap.Entries)

	// Write to a temp file and rename so readers never see a torn snapshot.
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line duplicates what gob carries; it exists for tooling.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// Latest returns the newest snapshot file in dir, or "" if there is none.
func Latest(dir string) string {
	matches, _ := filepath.Glob(filepath.Join(dir, "*.snap.zst"))
	if len(matches) == 0 {
		return ""
	}
	// Names are zero-padded counters, so lexical order is counter order.
	best := matches[0]
	for _, m := range matches[1:] {
		if m > best {
			best = m
		}
	}
	return best
}
