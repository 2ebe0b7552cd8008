package topology

import (
	"testing"

	"github.com/cernan/cernan/internal/config"
)

func enabled(b bool) *bool { return &b }

func TestBuildRejectsSourceWithNoForwards(t *testing.T) {
	cfg := &config.Config{
		DataDirectory: t.TempDir(),
		Sources: map[string]map[string]config.SourceConfig{
			"statsd": {"primary": {Addr: "127.0.0.1:0"}},
		},
	}
	if _, err := Build(cfg); err == nil {
		t.Fatal("expected an error for a source with no forwards")
	}
}

func TestBuildRejectsUnknownForwardTarget(t *testing.T) {
	cfg := &config.Config{
		DataDirectory: t.TempDir(),
		Sources: map[string]map[string]config.SourceConfig{
			"statsd": {"primary": {Addr: "127.0.0.1:0", Forwards: []string{"sinks.missing"}}},
		},
	}
	if _, err := Build(cfg); err == nil {
		t.Fatal("expected an error for a forward to a nonexistent node")
	}
}

func TestBuildRejectsCycle(t *testing.T) {
	cfg := &config.Config{
		DataDirectory: t.TempDir(),
		Filters: map[string]config.FilterConfig{
			"a": {Type: "noop", Forwards: []string{"filters.b"}},
			"b": {Type: "noop", Forwards: []string{"filters.a"}},
		},
	}
	if _, err := Build(cfg); err == nil {
		t.Fatal("expected an error for a filter cycle")
	}
}

func TestBuildRejectsMultipleNativeSources(t *testing.T) {
	cfg := &config.Config{
		DataDirectory: t.TempDir(),
		Sources: map[string]map[string]config.SourceConfig{
			"native": {
				"a": {Addr: "127.0.0.1:0", Forwards: []string{"sinks.out"}},
				"b": {Addr: "127.0.0.1:0", Forwards: []string{"sinks.out"}},
			},
		},
		Sinks: map[string]config.SinkConfig{
			"out": {Type: "console"},
		},
	}
	if _, err := Build(cfg); err == nil {
		t.Fatal("expected an error for two native sources")
	}
}

func TestBuildWiresChannelsAndSkipsDisabled(t *testing.T) {
	cfg := &config.Config{
		DataDirectory: t.TempDir(),
		Sources: map[string]map[string]config.SourceConfig{
			"statsd": {
				"primary": {Addr: "127.0.0.1:0", Forwards: []string{"sinks.out"}},
				"shadow":  {Addr: "127.0.0.1:0", Forwards: []string{"sinks.out"}, Enabled: enabled(false)},
			},
		},
		Sinks: map[string]config.SinkConfig{
			"out": {Type: "console"},
		},
	}
	topo, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer topo.Close()

	if len(topo.Runners) != 2 {
		t.Fatalf("got %d runners, want 2 (one enabled source, one sink)", len(topo.Runners))
	}
	if len(topo.channels) != 1 {
		t.Fatalf("got %d channels, want 1 (the disabled source's edge should not be opened)", len(topo.channels))
	}
}
