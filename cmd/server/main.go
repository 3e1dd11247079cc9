package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"automata.ai/internal/persistence/archive"
	"automata.ai/internal/persistence/indexdb"
	"automata.ai/internal/persistence/kvstore"
	persistlog "automata.ai/internal/persistence/log"
	"automata.ai/internal/persistence/objstore"
	"automata.ai/internal/persistence/snapshot"
	"automata.ai/internal/sim/tuning"
	"automata.ai/internal/sim/world"
	"automata.ai/internal/transport/rpc"
	"automata.ai/internal/transport/ws"
)

func main() {
	cfg, err := loadConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg serverConfig, logger *zap.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	empty, err := storeEmpty(store)
	if err != nil {
		return err
	}
	snapDir := filepath.Join(cfg.DataDir, "snapshots")
	snapPath := cfg.Snapshot
	if snapPath == "" && cfg.LoadLatest && empty {
		snapPath = snapshot.Latest(snapDir)
	}
	if snapPath != "" && !empty {
		return fmt.Errorf("snapshot %s given but the store already holds a ledger", snapPath)
	}

	var (
		snap     snapshot.SnapshotV1
		restored bool
		tune     tuning.Tuning
	)
	if snapPath != "" {
		if snap, err = snapshot.ReadSnapshot(snapPath); err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		// The ledger must keep running under the tuning it was produced with.
		tune, restored = snap.Tuning, true
	} else if tune, err = tuning.Load(cfg.TuningPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load tuning: %w", err)
		}
		logger.Warn("tuning not found; using defaults", zap.String("path", cfg.TuningPath))
		tune = tuning.Defaults()
	}

	w, err := world.New(world.Config{Tuning: tune, Logger: logger.Named("world")}, store)
	if err != nil {
		return fmt.Errorf("world: %w", err)
	}
	if restored {
		if err := w.ImportSnapshot(snap); err != nil {
			return err
		}
		logger.Info("restored snapshot",
			zap.String("path", filepath.Base(snapPath)),
			zap.Uint64("counter", w.Counter()),
			zap.Uint64("seq", w.Seq()))
	}

	txLog := persistlog.NewTxLogger(cfg.DataDir)
	defer txLog.Close()
	settleLog := persistlog.NewSettlementLogger(cfg.DataDir)
	defer settleLog.Close()
	w.SetTxLogger(txLog)
	w.SetSettlementSink(settleLog)

	var idx *indexdb.SQLiteIndex
	if !cfg.DisableIndex {
		idx, err = indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index", "markets.sqlite"), logger.Named("index"))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Warn("index tuning", zap.Error(err))
		}
	}

	hub := ws.NewServer(w, tune.AdminKeyWords(), logger.Named("ws"))
	observers := world.Observers{hub}
	if idx != nil {
		observers = append(observers, idx)
	}
	w.SetObserver(observers)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var mirror *objstore.Mirror
	if cfg.Mirror.Bucket != "" {
		client, err := objstore.New(objstore.Credentials{
			Endpoint:  cfg.Mirror.Endpoint,
			Bucket:    cfg.Mirror.Bucket,
			Region:    cfg.Mirror.Region,
			AccessKey: cfg.Mirror.AccessKey,
			SecretKey: cfg.Mirror.SecretKey,
		})
		if err != nil {
			return err
		}
		mirror = objstore.NewMirror(client, cfg.DataDir, cfg.Mirror.Prefix, cfg.Mirror.Workers, 0, logger.Named("mirror"))
		defer mirror.Close()
	}

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	snapDone := make(chan struct{})
	defer func() {
		cancel()
		<-snapDone
	}()
	go func() {
		defer close(snapDone)
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-snapCh:
				path := filepath.Join(snapDir, snapshot.FileName(s.Header.Counter))
				if err := snapshot.WriteSnapshot(path, s); err != nil {
					logger.Error("snapshot write", zap.String("path", path), zap.Error(err))
					continue
				}
				logger.Info("snapshot written", zap.String("path", path), zap.Int("entries", s.Header.Entries))
				if idx != nil {
					idx.RecordSnapshot(path, s.Header)
				}
				mirror.Enqueue(path)
				epoch, archived, ok, err := archive.ArchiveEpoch(cfg.DataDir, path, s.Header, tune.PreemptEveryTicks, cfg.ArchiveEvery)
				if err != nil {
					logger.Error("epoch archive", zap.String("path", path), zap.Error(err))
				} else if ok {
					logger.Info("epoch archived", zap.Uint64("epoch", epoch), zap.String("path", archived))
					mirror.Enqueue(archived)
				}
			}
		}
	}()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("world stopped", zap.Error(err))
		}
	}()

	var marketIndex rpc.MarketIndex
	if idx != nil {
		marketIndex = idx
	}
	api := rpc.NewServer(w, marketIndex, rpc.Config{
		AdminKey:  tune.AdminKeyWords(),
		RateLimit: cfg.RateLimit,
	}, logger.Named("rpc"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, r *http.Request) {
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /metrics", metricsHandler(w, hub, mirror))
	if envBool("AUTOMATA_ENABLE_PPROF", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	api.Routes(mux, hub.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info("listening", zap.String("addr", cfg.Addr), zap.Bool("memory", cfg.Memory))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-worldDone
		return err
	}
	// Run flushes pending settlement on its way out.
	<-worldDone
	return nil
}

func openStore(cfg serverConfig) (kvstore.Store, error) {
	if cfg.Memory {
		return kvstore.NewMemStore(), nil
	}
	return kvstore.OpenSQLite(filepath.Join(cfg.DataDir, "ledger.sqlite"))
}

var errStop = errors.New("stop")

func storeEmpty(s kvstore.Store) (bool, error) {
	empty := true
	err := s.Scan(func(_, _ []byte) error {
		empty = false
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return false, fmt.Errorf("scan store: %w", err)
	}
	return empty, nil
}

func envBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "yes":
		return true
	case "0", "false", "FALSE", "no":
		return false
	default:
		return def
	}
}

func metricsHandler(w *world.World, hub *ws.Server, mirror *objstore.Mirror) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		var st world.State
		if err := w.Query(ctx, func(w *world.World) { st = w.State() }); err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP automata_counter Logical tick counter.\n")
		fmt.Fprintf(rw, "# TYPE automata_counter gauge\n")
		fmt.Fprintf(rw, "automata_counter %d\n", st.Counter)
		fmt.Fprintf(rw, "# HELP automata_seq Processed transactions.\n")
		fmt.Fprintf(rw, "# TYPE automata_seq counter\n")
		fmt.Fprintf(rw, "automata_seq %d\n", st.Seq)
		fmt.Fprintf(rw, "# HELP automata_pending_events Scheduled object events.\n")
		fmt.Fprintf(rw, "# TYPE automata_pending_events gauge\n")
		fmt.Fprintf(rw, "automata_pending_events %d\n", st.Pending)
		fmt.Fprintf(rw, "# HELP automata_bounty_pool Bounty pool balance.\n")
		fmt.Fprintf(rw, "# TYPE automata_bounty_pool gauge\n")
		fmt.Fprintf(rw, "automata_bounty_pool %d\n", st.BountyPool)
		fmt.Fprintf(rw, "# HELP automata_ws_clients Connected event subscribers.\n")
		fmt.Fprintf(rw, "# TYPE automata_ws_clients gauge\n")
		fmt.Fprintf(rw, "automata_ws_clients %d\n", hub.Clients())
		if mirror != nil {
			ms := mirror.Stats()
			fmt.Fprintf(rw, "# HELP automata_mirror_uploads_total Files mirrored to object storage.\n")
			fmt.Fprintf(rw, "# TYPE automata_mirror_uploads_total counter\n")
			fmt.Fprintf(rw, "automata_mirror_uploads_total{result=\"ok\"} %d\n", ms.Uploaded)
			fmt.Fprintf(rw, "automata_mirror_uploads_total{result=\"failed\"} %d\n", ms.Failed)
			fmt.Fprintf(rw, "automata_mirror_uploads_total{result=\"dropped\"} %d\n", ms.Dropped)
		}
	}
}
