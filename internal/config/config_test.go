package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cernan.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
sources:
  statsd:
    primary:
      addr: "127.0.0.1:8125"
      forwards: ["sinks.out"]
sinks:
  out:
    type: console
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FlushIntervalSeconds != DefaultFlushIntervalSeconds {
		t.Fatalf("flush interval = %d, want default %d", cfg.FlushIntervalSeconds, DefaultFlushIntervalSeconds)
	}
	if cfg.DataDirectory == "" {
		t.Fatal("data directory defaulted to empty string")
	}
	sk := cfg.Sinks["out"]
	if sk.BinWidth != DefaultBinWidth {
		t.Fatalf("bin width = %d, want default %d", sk.BinWidth, DefaultBinWidth)
	}
	if !sk.IsEnabled() {
		t.Fatal("sink should default to enabled")
	}
	if !sk.IsRaw() {
		t.Fatal("console sink should default to raw passthrough")
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, `
sources:
  statsd:
    primary:
      addrr: "typo"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown field, got nil")
	}
}

func TestLoadValidatesNATSBlock(t *testing.T) {
	path := writeConfig(t, `
sinks:
  fed:
    type: nats
    subject: cernan.federation
    nats:
      username: alice
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected a schema validation error for a nats block missing address")
	}
}

func TestLoadRejectsUnknownSinkType(t *testing.T) {
	path := writeConfig(t, `
sinks:
  out:
    type: carbon_relay
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown sink type, got nil")
	}
}

func TestLoadRejectsUnknownFilterType(t *testing.T) {
	path := writeConfig(t, `
filters:
  f:
    type: regex
    forwards: ["sinks.out"]
sinks:
  out:
    type: console
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown filter type, got nil")
	}
}

func TestLoadAcceptsValidNATSBlock(t *testing.T) {
	path := writeConfig(t, `
sinks:
  fed:
    type: nats
    subject: cernan.federation
    nats:
      address: "nats://localhost:4222"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sinks["fed"].NATS.Address != "nats://localhost:4222" {
		t.Fatalf("unexpected nats address: %q", cfg.Sinks["fed"].NATS.Address)
	}
}
