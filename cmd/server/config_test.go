package main

import (
	"flag"
	"io"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.StatsBurst != 5 || cfg.ShutdownWait != 5*time.Second || cfg.DisableJournal {
		t.Fatalf("defaults=%+v", cfg)
	}
}

func TestParseConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("PADDLERS_ADDR", ":9000")
	t.Setenv("PADDLERS_DB", "/tmp/env.sqlite")
	t.Setenv("PADDLERS_STATS_RATE", "2.5")

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg, err := ParseConfig(fs, []string{"-db", "/tmp/flag.sqlite", "-disable_journal"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("addr=%q want env value", cfg.Addr)
	}
	if cfg.DBPath != "/tmp/flag.sqlite" {
		t.Fatalf("db=%q want flag value", cfg.DBPath)
	}
	if cfg.StatsRate != 2.5 || !cfg.DisableJournal {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestParseConfigBadEnv(t *testing.T) {
	t.Setenv("PADDLERS_STATS_BURST", "lots")
	if _, err := ParseConfig(flag.NewFlagSet("server", flag.ContinueOnError), nil); err == nil {
		t.Fatalf("expected env parse error")
	}
}
