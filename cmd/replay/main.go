package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"automata.ai/internal/persistence/kvstore"
	persistlog "automata.ai/internal/persistence/log"
	"automata.ai/internal/persistence/snapshot"
	"automata.ai/internal/sim/tuning"
	"automata.ai/internal/sim/world"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst to start from (optional)")
		dataDir    = flag.String("data", "./data", "data directory containing txlog/")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning used when starting from an empty ledger")
		toSeq      = flag.Uint64("to_seq", 0, "stop after this sequence number (optional)")
	)
	flag.Parse()

	var (
		tune tuning.Tuning
		snap snapshot.SnapshotV1
		err  error
	)
	if *snapPath != "" {
		if snap, err = snapshot.ReadSnapshot(*snapPath); err != nil {
			fail("read snapshot: %v", err)
		}
		tune = snap.Tuning
		fmt.Printf("snapshot v%d seq=%d counter=%d entries=%d digest=%s\n",
			snap.Header.Version, snap.Header.Seq, snap.Header.Counter, snap.Header.Entries, snap.Header.Digest)
	} else if tune, err = tuning.Load(*tuningPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fail("load tuning: %v", err)
		}
		tune = tuning.Defaults()
	}

	w, err := world.New(world.Config{Tuning: tune}, kvstore.NewMemStore())
	if err != nil {
		fail("world: %v", err)
	}
	if *snapPath != "" {
		if err := w.ImportSnapshot(snap); err != nil {
			fail("import snapshot: %v", err)
		}
	}

	st, err := replay(w, *dataDir, *toSeq)
	st.print(os.Stdout)
	if err != nil {
		fail("%v", err)
	}
	fmt.Println("OK")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

type stats struct {
	StartSeq uint64
	EndSeq   uint64
	Applied  int
	Aborts   int
	Skipped  int
	Counter  uint64
	Digest   string
}

func (s stats) print(out io.Writer) {
	fmt.Fprintf(out, "replayed seq %d..%d applied=%d aborts=%d skipped=%d counter=%d digest=%s\n",
		s.StartSeq, s.EndSeq, s.Applied, s.Aborts, s.Skipped, s.Counter, s.Digest)
}

var errDone = errors.New("done")

// replay re-executes every logged transaction after the world's current
// sequence number and checks each result against the log.
func replay(w *world.World, dataDir string, toSeq uint64) (stats, error) {
	st := stats{StartSeq: w.Seq()}
	err := persistlog.ReadTxLog(dataDir, func(e world.TxLogEntry) error {
		aborted := e.Abort != ""
		if (!aborted && e.Seq <= st.StartSeq) || (aborted && e.Seq < st.StartSeq) {
			st.Skipped++
			return nil
		}
		if toSeq != 0 && e.Seq > toSeq {
			return errDone
		}
		res, err := w.Process(e.PKey, e.Rand, e.Params)
		if aborted {
			if err == nil {
				return fmt.Errorf("seq %d: logged abort %q but transaction committed", e.Seq, e.Abort)
			}
			st.Aborts++
			return nil
		}
		if err != nil {
			return fmt.Errorf("seq %d: unexpected abort: %w", e.Seq, err)
		}
		if res.Seq != e.Seq || res.Status != e.Status || res.Digest != e.Digest {
			return fmt.Errorf("seq %d: diverged: got seq=%d status=%d digest=%s want seq=%d status=%d digest=%s",
				e.Seq, res.Seq, res.Status, res.Digest, e.Seq, e.Status, e.Digest)
		}
		st.Applied++
		return nil
	})
	st.EndSeq, st.Counter, st.Digest = w.Seq(), w.Counter(), w.Digest()
	if errors.Is(err, errDone) {
		err = nil
	}
	return st, err
}
