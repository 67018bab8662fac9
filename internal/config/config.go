// Package config loads aiqgen settings from a YAML file, the environment
// and defaults, in increasing order of precedence: defaults, file, env.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gioe/aiq/internal/arbiter"
	"github.com/gioe/aiq/internal/breaker"
	"github.com/gioe/aiq/internal/dedup"
	"github.com/gioe/aiq/internal/llm"
	"github.com/gioe/aiq/internal/pipeline"
	"github.com/gioe/aiq/internal/report"
)

// PathEnv names the variable that points at the config file.
const PathEnv = "AIQ_CONFIG"

// Config holds every setting of the generation service.
type Config struct {
	Log        LogConfig            `yaml:"log"`
	DB         string               `yaml:"db"`
	LLM        llm.Config           `yaml:"llm"`
	Breaker    breaker.Config       `yaml:"breaker"`
	Generation GenerationConfig     `yaml:"generation"`
	Judge      arbiter.RoutingTable `yaml:"judge"`
	Dedup      DedupConfig          `yaml:"dedup"`
	Pipeline   pipeline.Config      `yaml:"pipeline"`
	Report     report.Config        `yaml:"report"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// GenerationConfig controls the generator and the default run shape.
type GenerationConfig struct {
	// Default is the provider items start on when not distributing.
	// Empty means the first enabled provider.
	Default string `yaml:"default"`

	// Distribute spreads items round-robin over every enabled provider.
	Distribute bool `yaml:"distribute"`

	Concurrency int     `yaml:"concurrency"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// DedupConfig controls duplicate detection.
type DedupConfig struct {
	Threshold float64 `yaml:"threshold"`

	// Provider computes embeddings. Empty picks the first enabled provider
	// that supports them; "none" disables semantic dedup.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// DedupDisabled turns off the semantic stage.
const DedupDisabled = "none"

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info", Format: "text"},
		LLM:      llm.DefaultConfig(),
		Breaker:  breaker.DefaultConfig(),
		Pipeline: pipeline.DefaultConfig(),
		Generation: GenerationConfig{
			Concurrency: 4,
			MaxTokens:   1024,
			Temperature: 0.8,
		},
		Dedup: DedupConfig{Threshold: dedup.DefaultThreshold},
	}
}

// Load builds the configuration. path may be empty, in which case
// $AIQ_CONFIG is consulted; without either only defaults and the
// environment apply. A named file that cannot be read is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	cfg.Resolve()
	return cfg, nil
}

// decode overlays YAML onto cfg. Unknown keys are rejected.
func decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays AIQ_* environment variables.
func (c *Config) ApplyEnv() error {
	c.LLM.ApplyEnv()

	setString(&c.Log.Level, "AIQ_LOG_LEVEL")
	setString(&c.Log.Format, "AIQ_LOG_FORMAT")
	setString(&c.DB, "AIQ_DB")
	setString(&c.Generation.Default, "AIQ_DEFAULT_PROVIDER")
	setString(&c.Dedup.Provider, "AIQ_EMBEDDING_PROVIDER")
	setString(&c.Report.Endpoint, "AIQ_REPORT_ENDPOINT")
	setString(&c.Report.Token, "AIQ_REPORT_TOKEN")

	if v := os.Getenv("AIQ_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AIQ_CONCURRENCY: %w", err)
		}
		c.Generation.Concurrency = n
	}
	if v := os.Getenv("AIQ_DEDUP_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("AIQ_DEDUP_THRESHOLD: %w", err)
		}
		c.Dedup.Threshold = f
	}
	if v := os.Getenv("AIQ_DISTRIBUTE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AIQ_DISTRIBUTE: %w", err)
		}
		c.Generation.Distribute = b
	}
	return nil
}

// Resolve fills the judge default and embedding provider from the enabled
// providers when they are unset.
func (c *Config) Resolve() {
	if len(c.LLM.Providers) == 0 {
		return
	}
	if c.Judge.Default.Provider == "" {
		c.Judge.Default.Provider = c.LLM.Providers[0]
	}
	if c.Dedup.Provider == "" {
		c.Dedup.Provider = DedupDisabled
		for _, p := range c.LLM.Providers {
			if p != llm.ProviderAnthropic {
				c.Dedup.Provider = p
				break
			}
		}
	}
}

// Enabled reports whether provider is in the enabled list.
func (c Config) Enabled(provider string) bool {
	for _, p := range c.LLM.Providers {
		if p == provider {
			return true
		}
	}
	return false
}

// Validate checks that the configuration is usable for a run.
func (c Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker.failure_threshold must be >= 1")
	}
	if c.Breaker.RecoveryTimeout <= 0 {
		return fmt.Errorf("breaker.recovery_timeout must be positive")
	}
	if c.Generation.Concurrency < 1 {
		return fmt.Errorf("generation.concurrency must be >= 1")
	}
	if c.Generation.Default != "" && !c.Enabled(c.Generation.Default) {
		return fmt.Errorf("generation.default %q is not an enabled provider", c.Generation.Default)
	}
	if err := c.Judge.Validate(); err != nil {
		return fmt.Errorf("judge: %w", err)
	}
	for _, p := range c.Judge.Providers() {
		if !c.Enabled(p) {
			return fmt.Errorf("judge provider %q is not enabled", p)
		}
	}
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		return fmt.Errorf("dedup.threshold must be in (0, 1], got %v", c.Dedup.Threshold)
	}
	if c.Dedup.Provider != DedupDisabled && !c.Enabled(c.Dedup.Provider) {
		return fmt.Errorf("dedup.provider %q is not enabled", c.Dedup.Provider)
	}
	if c.Pipeline.GracePeriod < 0 {
		return fmt.Errorf("pipeline.grace_period must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
