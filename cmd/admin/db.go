package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"automata.ai/internal/persistence/indexdb"
)

// dbCmd queries the market read model directly, without a running server.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "index sqlite path (default: <data>/index/markets.sqlite)")
	pid := fs.String("pid", "", "player id words pid0,pid1 (for bids/txs)")
	limit := fs.Int("limit", 50, "max rows")
	open := fs.Bool("open", false, "markets: only unsettled listings")
	_ = fs.Parse(args)

	what := fs.Arg(0)
	if what == "" {
		fmt.Fprintln(os.Stderr, "usage: admin db [flags] markets|bids|txs")
		os.Exit(2)
	}
	path := *dbPath
	if path == "" {
		path = filepath.Join(*dataDir, "index", "markets.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "index:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open index:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx := context.Background()
	needPID := func() [2]uint64 {
		words, err := parseWordList(*pid, 2)
		if err != nil {
			fmt.Fprintln(os.Stderr, "-pid:", err)
			os.Exit(2)
		}
		return [2]uint64{words[0], words[1]}
	}

	var out any
	switch what {
	case "markets":
		out, err = idx.ListMarkets(ctx, *open, *limit)
	case "bids":
		out, err = idx.BidsBy(ctx, needPID())
	case "txs":
		out, err = idx.TxsBy(ctx, needPID(), *limit)
	default:
		fmt.Fprintln(os.Stderr, "unknown table:", what)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	printJSON(out)
}
