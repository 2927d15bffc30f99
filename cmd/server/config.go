package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds process settings. Game balance lives in tuning.yaml.
type Config struct {
	Addr         string        `env:"PADDLERS_ADDR"          envDefault:":8080"`
	DBPath       string        `env:"PADDLERS_DB"            envDefault:"./data/paddlers.sqlite"`
	TuningPath   string        `env:"PADDLERS_TUNING"        envDefault:"./configs/tuning.yaml"`
	JournalDir   string        `env:"PADDLERS_JOURNAL_DIR"   envDefault:"./data/journal"`
	OTelEndpoint string        `env:"PADDLERS_OTEL_ENDPOINT"`
	StatsRate    float64       `env:"PADDLERS_STATS_RATE"    envDefault:"1"`
	StatsBurst   int           `env:"PADDLERS_STATS_BURST"   envDefault:"5"`
	ShutdownWait time.Duration `env:"PADDLERS_SHUTDOWN_WAIT" envDefault:"5s"`
	// DisableJournal turns the event journal off.
	DisableJournal bool `env:"PADDLERS_DISABLE_JOURNAL"`
}

// ParseConfig reads the environment, then lets flags override it.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "http listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite database path")
	fs.StringVar(&cfg.TuningPath, "tuning", cfg.TuningPath, "path to tuning.yaml")
	fs.StringVar(&cfg.JournalDir, "journal", cfg.JournalDir, "event journal directory")
	fs.StringVar(&cfg.OTelEndpoint, "otel_endpoint", cfg.OTelEndpoint, "OTLP/HTTP traces endpoint (empty disables tracing)")
	fs.Float64Var(&cfg.StatsRate, "stats_rate", cfg.StatsRate, "/stats requests per second per address")
	fs.IntVar(&cfg.StatsBurst, "stats_burst", cfg.StatsBurst, "/stats burst per address")
	fs.DurationVar(&cfg.ShutdownWait, "shutdown_wait", cfg.ShutdownWait, "graceful shutdown timeout")
	fs.BoolVar(&cfg.DisableJournal, "disable_journal", cfg.DisableJournal, "do not write the event journal")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
