// Package config parses a topology's declarative configuration file into
// typed structs. The on-disk format is YAML (the one general-purpose,
// strict-decodable structured format already carried by the wider
// dependency pack), but its shape mirrors the section grammar a topology
// is specified against: top-level scalars, a `tags` map, and three node
// sections — `sources` (proto-qualified: proto -> instance name -> block),
// `filters` and `sinks` (instance name -> block, each carrying its own
// `type` to select an adapter).
package config

import (
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	natsbus "github.com/cernan/cernan/pkg/nats"
	"github.com/cernan/cernan/internal/util"
)

var knownFilterTypes = []string{"noop", "rename", "expr"}
var knownSinkTypes = []string{"console", "native", "nats", "graphite_line"}

// DefaultFlushIntervalSeconds is used when flush-interval is unset or zero.
const DefaultFlushIntervalSeconds = 60

// DefaultBinWidth is used when a sink's bin_width is unset or zero.
const DefaultBinWidth = 1

// SourceConfig configures one `[sources.<proto>.<name>]` entry.
type SourceConfig struct {
	Enabled  *bool    `yaml:"enabled"`
	Forwards []string `yaml:"forwards"`

	// Addr is the listen/bind address for statsd, graphite, and native
	// sources.
	Addr string `yaml:"addr"`

	// Subject and NATS configure the nats source.
	Subject string          `yaml:"subject"`
	NATS    *natsbus.Config `yaml:"nats"`
}

// IsEnabled reports whether this source should be built into the topology.
func (c SourceConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// FilterConfig configures one `[filters.<name>]` entry. Type selects the
// concrete filter.Filter implementation: "noop", "rename", or "expr".
type FilterConfig struct {
	Type     string   `yaml:"type"`
	Enabled  *bool    `yaml:"enabled"`
	Forwards []string `yaml:"forwards"`

	// Rules configures the rename filter: exact-match old-name -> new-name.
	Rules map[string]string `yaml:"rules"`

	// Script configures the expr filter: a path to the file holding its
	// boolean expr-lang rule expression.
	Script string `yaml:"script"`
}

// IsEnabled reports whether this filter should be built into the topology.
func (c FilterConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// SinkConfig configures one `[sinks.<name>]` entry. Type selects the
// concrete Sender implementation: "console", "native", "nats", or
// "graphite_line".
type SinkConfig struct {
	Type    string `yaml:"type"`
	Enabled *bool  `yaml:"enabled"`

	// Addr is the dial address for native and graphite_line sinks.
	Addr string `yaml:"addr"`

	// Subject and NATS configure the nats sink.
	Subject string          `yaml:"subject"`
	NATS    *natsbus.Config `yaml:"nats"`

	BinWidth              int64     `yaml:"bin_width"`
	Phi                   []float64 `yaml:"phi"`
	Eps                   float64   `yaml:"eps"`
	GaugeTTLSeconds       int64     `yaml:"gauge_ttl_seconds"`
	GaugeCardinalityLimit int       `yaml:"gauge_cardinality_limit"`
	DropAfterRetries      int       `yaml:"drop_after_retries"`

	// Raw, when set, bypasses per-second bucket aggregation — console
	// defaults to this, since it is documented as an at-most-once,
	// passthrough sink.
	Raw *bool `yaml:"raw"`
}

// IsEnabled reports whether this sink should be built into the topology.
func (c SinkConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// IsRaw reports whether this sink bypasses Buckets aggregation, defaulting
// to true for console (an at-most-once passthrough sink by convention).
func (c SinkConfig) IsRaw() bool {
	if c.Raw != nil {
		return *c.Raw
	}
	return c.Type == "console"
}

// Config is one topology's fully-parsed configuration.
type Config struct {
	FlushIntervalSeconds int64             `yaml:"flush-interval"`
	DataDirectory        string            `yaml:"data-directory"`
	ScriptsDirectory     string            `yaml:"scripts-directory"`
	Tags                 map[string]string `yaml:"tags"`

	Sources map[string]map[string]SourceConfig `yaml:"sources"`
	Filters map[string]FilterConfig            `yaml:"filters"`
	Sinks   map[string]SinkConfig              `yaml:"sinks"`
}

// Load reads and strictly decodes the YAML configuration file at path,
// rejecting unknown keys (a typo in a section name fails fast at startup
// rather than silently doing nothing), applies defaults, and validates
// every structured NATS sub-block against natsbus.ConfigSchema.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.validateTypes(); err != nil {
		return nil, err
	}
	if err := cfg.validateScriptsDirectory(); err != nil {
		return nil, err
	}
	if err := cfg.validateNATSBlocks(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateScriptsDirectory fails fast on a missing scripts directory when
// any filter actually needs it, rather than surfacing the problem only
// once topology.Build reaches that filter.
func (cfg *Config) validateScriptsDirectory() error {
	needsScripts := false
	for _, fc := range cfg.Filters {
		if fc.Type == "expr" {
			needsScripts = true
			break
		}
	}
	if !needsScripts || cfg.ScriptsDirectory == "" {
		return nil
	}
	if !util.CheckFileExists(cfg.ScriptsDirectory) {
		return fmt.Errorf("config: scripts-directory %q does not exist", cfg.ScriptsDirectory)
	}
	return nil
}

// validateTypes rejects a filter or sink naming an adapter type this build
// doesn't know how to construct, before topology.Build ever sees it.
func (cfg *Config) validateTypes() error {
	for name, fc := range cfg.Filters {
		if !util.Contains(knownFilterTypes, fc.Type) {
			return fmt.Errorf("config: filters.%s: unknown type %q", name, fc.Type)
		}
	}
	for name, sk := range cfg.Sinks {
		if !util.Contains(knownSinkTypes, sk.Type) {
			return fmt.Errorf("config: sinks.%s: unknown type %q", name, sk.Type)
		}
	}
	return nil
}

func (cfg *Config) applyDefaults() {
	if cfg.FlushIntervalSeconds <= 0 {
		cfg.FlushIntervalSeconds = DefaultFlushIntervalSeconds
	}
	if cfg.DataDirectory == "" {
		cfg.DataDirectory = os.TempDir()
	}
	for name, sk := range cfg.Sinks {
		if sk.BinWidth <= 0 {
			sk.BinWidth = DefaultBinWidth
		}
		cfg.Sinks[name] = sk
	}
}

var natsSchema = jsonschema.MustCompileString("nats-config.json", natsbus.ConfigSchema)

// validateNATSBlocks round-trips every configured NATS sub-block through
// jsonschema, catching a missing required `address` or a wrong-typed field
// before the topology tries to dial anything.
func (cfg *Config) validateNATSBlocks() error {
	for proto, instances := range cfg.Sources {
		if proto != "nats" {
			continue
		}
		for name, sc := range instances {
			if sc.NATS == nil {
				return fmt.Errorf("config: sources.nats.%s: missing nats block", name)
			}
			if err := validateNATSConfig(*sc.NATS); err != nil {
				return fmt.Errorf("config: sources.nats.%s: %w", name, err)
			}
		}
	}
	for name, sk := range cfg.Sinks {
		if sk.Type != "nats" {
			continue
		}
		if sk.NATS == nil {
			return fmt.Errorf("config: sinks.%s: missing nats block", name)
		}
		if err := validateNATSConfig(*sk.NATS); err != nil {
			return fmt.Errorf("config: sinks.%s: %w", name, err)
		}
	}
	return nil
}

func validateNATSConfig(c natsbus.Config) error {
	doc := map[string]interface{}{}
	if c.Address != "" {
		doc["address"] = c.Address
	}
	if c.Username != "" {
		doc["username"] = c.Username
	}
	if c.Password != "" {
		doc["password"] = c.Password
	}
	if c.CredsFilePath != "" {
		doc["creds-file-path"] = c.CredsFilePath
	}
	return natsSchema.Validate(doc)
}
