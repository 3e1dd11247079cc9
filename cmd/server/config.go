package main

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
)

type serverConfig struct {
	Addr         string  `env:"AUTOMATA_ADDR" envDefault:":8080"`
	DataDir      string  `env:"AUTOMATA_DATA_DIR" envDefault:"./data"`
	TuningPath   string  `env:"AUTOMATA_TUNING" envDefault:"./configs/tuning.yaml"`
	LogLevel     string  `env:"AUTOMATA_LOG_LEVEL" envDefault:"info"`
	RateLimit    float64 `env:"AUTOMATA_RATE_LIMIT" envDefault:"50"`
	Memory       bool    `env:"AUTOMATA_MEMORY"`
	DisableIndex bool    `env:"AUTOMATA_DISABLE_INDEX"`
	Snapshot     string  `env:"AUTOMATA_SNAPSHOT"`
	LoadLatest   bool    `env:"AUTOMATA_LOAD_LATEST_SNAPSHOT" envDefault:"true"`
	ArchiveEvery uint64  `env:"AUTOMATA_ARCHIVE_EVERY_EPOCHS"`
	Mirror       mirrorConfig
}

// mirrorConfig enables off-host copies of snapshots when Bucket is set.
type mirrorConfig struct {
	Endpoint  string `env:"AUTOMATA_S3_ENDPOINT"`
	Bucket    string `env:"AUTOMATA_S3_BUCKET"`
	Region    string `env:"AUTOMATA_S3_REGION"`
	AccessKey string `env:"AUTOMATA_S3_ACCESS_KEY_ID"`
	SecretKey string `env:"AUTOMATA_S3_SECRET_ACCESS_KEY"`
	Prefix    string `env:"AUTOMATA_S3_PREFIX"`
	Workers   int    `env:"AUTOMATA_S3_WORKERS" envDefault:"2"`
}

// loadConfig reads the environment first; flags override it.
func loadConfig(fs *flag.FlagSet, args []string) (serverConfig, error) {
	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "http listen address")
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "runtime data directory")
	fs.StringVar(&cfg.TuningPath, "tuning", cfg.TuningPath, "path to tuning.yaml")
	fs.StringVar(&cfg.LogLevel, "log_level", cfg.LogLevel, "debug|info|warn|error")
	fs.Float64Var(&cfg.RateLimit, "rate_limit", cfg.RateLimit, "transactions per second per remote host (0 disables)")
	fs.BoolVar(&cfg.Memory, "memory", cfg.Memory, "keep the ledger in memory instead of sqlite")
	fs.BoolVar(&cfg.DisableIndex, "disable_index", cfg.DisableIndex, "disable the market read model")
	fs.StringVar(&cfg.Snapshot, "snapshot", cfg.Snapshot, "snapshot to restore into an empty store")
	fs.BoolVar(&cfg.LoadLatest, "load_latest_snapshot", cfg.LoadLatest, "restore the latest snapshot when the store is empty")
	fs.Uint64Var(&cfg.ArchiveEvery, "archive_every_epochs", cfg.ArchiveEvery, "archive every Nth settlement epoch snapshot (0 disables)")
	fs.StringVar(&cfg.Mirror.Bucket, "s3_bucket", cfg.Mirror.Bucket, "mirror snapshots to this S3-compatible bucket")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if cfg.RateLimit < 0 {
		return cfg, fmt.Errorf("rate_limit must be >= 0")
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	zc.Encoding = "console"
	zc.EncoderConfig.TimeKey = "ts"
	return zc.Build()
}
