package main

import (
	"testing"

	"automata.ai/internal/persistence/kvstore"
	persistlog "automata.ai/internal/persistence/log"
	"automata.ai/internal/protocol"
	"automata.ai/internal/sim/tuning"
	"automata.ai/internal/sim/world"
)

func newWorld(t *testing.T) *world.World {
	t.Helper()
	w, err := world.New(world.Config{Tuning: tuning.Defaults()}, kvstore.NewMemStore())
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

func record(t *testing.T, dir string) *world.World {
	t.Helper()
	w := newWorld(t)
	txLog := persistlog.NewTxLogger(dir)
	w.SetTxLogger(txLog)

	admin := [4]uint64{}
	alice := [4]uint64{1, 10, 11, 0}
	txs := []struct {
		key    [4]uint64
		params []uint64
	}{
		{admin, []uint64{protocol.CommandWord(protocol.OpInstallPlayer, 0)}},
		{alice, []uint64{protocol.CommandWord(protocol.OpInstallPlayer, 0)}},
		{admin, []uint64{protocol.CommandWord(protocol.OpDeposit, 0), 10, 11, 0, 5_000}},
		{alice, []uint64{protocol.CommandWord(protocol.OpInstallObject, 0), 0, protocol.EncodeRing([]uint8{0, 2})}},
		{alice, []uint64{protocol.CommandWord(protocol.OpInstallCard, 1)}},
		{alice, []uint64{protocol.CommandWord(protocol.OpInstallCard, 9)}}, // stale nonce
		{alice, []uint64{protocol.CommandWord(protocol.OpBounty, 2), 3}},   // NotEnoughResource
	}
	for i := 0; i < 130; i++ {
		txs = append(txs, struct {
			key    [4]uint64
			params []uint64
		}{admin, []uint64{protocol.CommandWord(protocol.OpTick, 0)}})
	}
	for _, tx := range txs {
		_, _ = w.Process(tx.key, w.Randomness(), tx.params)
	}
	if err := txLog.Close(); err != nil {
		t.Fatalf("close log: %v", err)
	}
	return w
}

func TestReplay_ReproducesDigests(t *testing.T) {
	dir := t.TempDir()
	orig := record(t, dir)

	w := newWorld(t)
	st, err := replay(w, dir, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if st.Digest != orig.Digest() || st.Counter != orig.Counter() {
		t.Fatalf("final state differs: %+v want digest=%s counter=%d", st, orig.Digest(), orig.Counter())
	}
	if st.Aborts != 1 || st.Applied != 136 {
		t.Fatalf("unexpected counts: %+v", st)
	}
}

func TestReplay_FromSnapshotAndStopAt(t *testing.T) {
	dir := t.TempDir()
	orig := record(t, dir)

	// Start from a mid-log image by replaying a prefix first.
	w := newWorld(t)
	if _, err := replay(w, dir, 20); err != nil {
		t.Fatalf("prefix: %v", err)
	}
	snap, err := w.ExportSnapshot()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	resumed := newWorld(t)
	if err := resumed.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	st, err := replay(resumed, dir, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if st.StartSeq != 20 || st.Digest != orig.Digest() {
		t.Fatalf("resume mismatch: %+v", st)
	}
}
