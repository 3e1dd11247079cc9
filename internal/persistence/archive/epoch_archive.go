package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"automata.ai/internal/persistence/snapshot"
)

// EpochMeta describes one archived settlement epoch.
type EpochMeta struct {
	Epoch      uint64 `json:"epoch"`
	Counter    uint64 `json:"counter"`
	Seq        uint64 `json:"seq"`
	Digest     string `json:"digest"`
	Snapshot   string `json:"snapshot"`
	EpochTicks uint64 `json:"epoch_ticks"`
	CreatedAt  string `json:"created_at"`
}

// Dir is where ArchiveEpoch places epoch n under dataDir.
func Dir(dataDir string, epoch uint64) string {
	return filepath.Join(dataDir, "archives", fmt.Sprintf("epoch_%05d", epoch))
}

// ArchiveEpoch copies a snapshot taken at a preempt boundary into
// dataDir/archives/epoch_<N>/ when N is a multiple of every. Snapshots off
// the boundary, and every == 0, are skipped.
func ArchiveEpoch(dataDir, snapshotPath string, h snapshot.Header, epochTicks, every uint64) (epoch uint64, archivedPath string, archived bool, err error) {
	if epochTicks == 0 || every == 0 || h.Counter == 0 || h.Counter%epochTicks != 0 {
		return 0, "", false, nil
	}
	epoch = h.Counter / epochTicks
	if epoch%every != 0 {
		return epoch, "", false, nil
	}

	dir := Dir(dataDir, epoch)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", false, err
	}
	dst := filepath.Join(dir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return 0, "", false, err
	}

	meta := EpochMeta{
		Epoch:      epoch,
		Counter:    h.Counter,
		Seq:        h.Seq,
		Digest:     h.Digest,
		Snapshot:   filepath.Base(dst),
		EpochTicks: epochTicks,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return 0, "", false, err
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644); err != nil {
		return 0, "", false, err
	}
	return epoch, dst, true, nil
}

// ReadMeta loads the meta.json of an archived epoch.
func ReadMeta(dataDir string, epoch uint64) (EpochMeta, error) {
	var m EpochMeta
	b, err := os.ReadFile(filepath.Join(Dir(dataDir, epoch), "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
