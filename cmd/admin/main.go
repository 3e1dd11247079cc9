package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	persistlog "automata.ai/internal/persistence/log"
	"automata.ai/internal/persistence/snapshot"
	"automata.ai/internal/protocol"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "state":
		stateCmd(args)
	case "tick":
		tickCmd(args)
	case "deposit":
		depositCmd(args)
	case "db":
		dbCmd(args)
	case "snapshot":
		snapshotCmd(args)
	case "settlements":
		settlementsCmd(args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin state|tick|deposit|db|snapshot|settlements [flags]")
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	path := fs.String("snapshot", "", "path to .snap.zst (default: latest under -data)")
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	p := strings.TrimSpace(*path)
	if p == "" {
		p = snapshot.Latest(*dataDir + "/snapshots")
	}
	if p == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found")
		os.Exit(1)
	}
	snap, err := snapshot.ReadSnapshot(p)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	var bytes int
	for _, e := range snap.Entries {
		bytes += len(e.Key) + len(e.Value)
	}
	printJSON(map[string]any{
		"path":        p,
		"header":      snap.Header,
		"entry_bytes": bytes,
		"tuning":      snap.Tuning,
	})
}

func settlementsCmd(args []string) {
	fs := flag.NewFlagSet("settlements", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	var total uint64
	err := persistlog.ReadSettlements(*dataDir, func(b persistlog.SettlementBatch) error {
		for _, w := range b.Withdrawals {
			total += w.Amount
			fmt.Printf("%s player=%d,%d amount=%d data=%v\n", b.FlushedAt.Format("2006-01-02T15:04:05Z"), w.Player[0], w.Player[1], w.Amount, w.Data)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read settlements:", err)
		os.Exit(1)
	}
	fmt.Printf("total=%d\n", total)
}

// parseKey reads "a,b,c,d" as a four-word public key.
func parseKey(s string) ([4]uint64, error) {
	var k [4]uint64
	words, err := parseWordList(s, 4)
	if err != nil {
		return k, err
	}
	copy(k[:], words)
	return k, nil
}

func parseWordList(s string, n int) ([]uint64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma-separated words, got %d", n, len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return protocol.ParseWords(parts)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
