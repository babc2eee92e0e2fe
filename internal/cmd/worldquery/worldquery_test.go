package worldquery

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("worldquery", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "worldquery.db" {
		t.Fatalf("expected default db path, got %q", cfg.DBPath)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("expected default poll interval 2s, got %s", cfg.PollInterval)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	fs := flag.NewFlagSet("worldquery", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-db", "/tmp/wq.db", "-poll-interval", "500ms"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "/tmp/wq.db" {
		t.Fatalf("expected db override, got %q", cfg.DBPath)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Fatalf("expected poll interval override, got %s", cfg.PollInterval)
	}
}
