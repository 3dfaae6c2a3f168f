package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr: got %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if len(cfg.Brokers) != 1 || cfg.Brokers[0] != "localhost:9092" {
		t.Errorf("Brokers: got %v", cfg.Brokers)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers: got %d, want 8", cfg.Workers)
	}
	if cfg.TraceSampleRate != 1.0 {
		t.Errorf("TraceSampleRate: got %v, want 1.0", cfg.TraceSampleRate)
	}
	if cfg.ConsumerGroup != "transition-worker" {
		t.Errorf("ConsumerGroup: got %q, want %q", cfg.ConsumerGroup, "transition-worker")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("RXSUB_HTTP_ADDR", ":9191")
	t.Setenv("RXSUB_BROKERS", "r1:9092,r2:9092")
	t.Setenv("RXSUB_ENVIRONMENT", "staging")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTPAddr != ":9191" {
		t.Errorf("HTTPAddr: got %q, want %q", cfg.HTTPAddr, ":9191")
	}
	if len(cfg.Brokers) != 2 || cfg.Brokers[1] != "r2:9092" {
		t.Errorf("Brokers: got %v", cfg.Brokers)
	}
	if cfg.Environment != "staging" {
		t.Errorf("Environment: got %q, want %q", cfg.Environment, "staging")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("RXSUB_WORKERS", "many")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for non-integer worker count")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Errorf("error should carry parse env context, got %v", err)
	}
}
