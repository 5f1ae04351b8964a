package cache

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Config is the flat set of tunables every strategy is built against. It is
// loaded once at startup and never mutated afterward — there is
// deliberately no Reload or watch here; runtime mutation is not supported.
type Config struct {
	// BaseTTL is the nominal TTL applied before jitter.
	BaseTTL time.Duration
	// JitterMax is the upper bound of the uniform TTL jitter added to BaseTTL.
	JitterMax time.Duration
	// SoftTTLRatio is the soft-TTL fraction of total TTL, in [0, 1].
	SoftTTLRatio float64
	// LockTimeout is the TTL of a held lock.
	LockTimeout time.Duration
	// LockRetryInterval is the sleep between lock acquisition retries.
	LockRetryInterval time.Duration
	// LockMaxRetries bounds the retry count; total wait ≈ the product of
	// this and LockRetryInterval.
	LockMaxRetries int
}

// rawConfig mirrors the wire shape a config file actually carries — seconds
// and milliseconds as plain numbers — which LoadConfig then converts into
// Config's time.Durations.
type rawConfig struct {
	BaseTTLSeconds      float64 `koanf:"baseTtlSeconds"`
	JitterMaxSeconds    float64 `koanf:"jitterMaxSeconds"`
	SoftTTLRatio        float64 `koanf:"softTtlRatio"`
	LockTimeoutSeconds  float64 `koanf:"lockTimeoutSeconds"`
	LockRetryIntervalMs float64 `koanf:"lockRetryIntervalMs"`
	LockMaxRetries      int     `koanf:"lockMaxRetries"`
}

func defaultRawConfig() rawConfig {
	return rawConfig{
		BaseTTLSeconds:      60,
		JitterMaxSeconds:    10,
		SoftTTLRatio:        0.8,
		LockTimeoutSeconds:  5,
		LockRetryIntervalMs: 50,
		LockMaxRetries:      100,
	}
}

func (r rawConfig) toConfig() Config {
	return Config{
		BaseTTL:           time.Duration(r.BaseTTLSeconds * float64(time.Second)),
		JitterMax:         time.Duration(r.JitterMaxSeconds * float64(time.Second)),
		SoftTTLRatio:      r.SoftTTLRatio,
		LockTimeout:       time.Duration(r.LockTimeoutSeconds * float64(time.Second)),
		LockRetryInterval: time.Duration(r.LockRetryIntervalMs * float64(time.Millisecond)),
		LockMaxRetries:    r.LockMaxRetries,
	}
}

// DefaultConfig returns the documented defaults, with no file or
// environment overlay.
func DefaultConfig() Config {
	return defaultRawConfig().toConfig()
}

// ConfigFormat selects the parser LoadConfig uses for raw bytes.
type ConfigFormat int

const (
	ConfigFormatYAML ConfigFormat = iota
	ConfigFormatJSON
)

// LoadConfig builds a Config by layering, in order, the built-in defaults,
// an optional config file's bytes, and (last, highest priority) a map of
// environment-style overrides collected by the caller at the same startup
// instant — all read once, here, at process startup. There is no facility
// to re-invoke this after startup and have it take effect; that is the
// point.
func LoadConfig(data []byte, format ConfigFormat, env map[string]any) (Config, error) {
	k := koanf.New(".")

	defaults := defaultRawConfig()
	if err := k.Load(rawbytesProvider(mustMarshalDefaults(defaults)), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("cache: load default config: %w", err)
	}

	if len(data) > 0 {
		parser := parserFor(format)
		if err := k.Load(rawbytesProvider(data), parser); err != nil {
			return Config{}, fmt.Errorf("cache: load config overlay: %w", err)
		}
	}

	if len(env) > 0 {
		if err := k.Load(confmap.Provider(env, "."), nil); err != nil {
			return Config{}, fmt.Errorf("cache: load env overrides: %w", err)
		}
	}

	var raw rawConfig
	if err := k.Unmarshal("", &raw); err != nil {
		return Config{}, fmt.Errorf("cache: unmarshal config: %w", err)
	}
	cfg := raw.toConfig()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the internal consistency invariants every strategy
// assumes: a lock's TTL must outlast the work it protects, at least
// nominally, and a negative retry budget makes no sense.
func (c Config) Validate() error {
	if c.BaseTTL < 0 {
		return fmt.Errorf("%w: baseTtlSeconds must be >= 0", ErrInvalidConfig)
	}
	if c.JitterMax < 0 {
		return fmt.Errorf("%w: jitterMaxSeconds must be >= 0", ErrInvalidConfig)
	}
	if c.SoftTTLRatio < 0 || c.SoftTTLRatio > 1 {
		return fmt.Errorf("%w: softTtlRatio must be in [0,1]", ErrInvalidConfig)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("%w: lockTimeoutSeconds must be > 0", ErrInvalidLockTTL)
	}
	if c.LockRetryInterval < 0 {
		return fmt.Errorf("%w: lockRetryIntervalMs must be >= 0", ErrInvalidConfig)
	}
	if c.LockMaxRetries < 0 {
		return fmt.Errorf("%w: lockMaxRetries must be >= 0", ErrInvalidConfig)
	}
	return nil
}

func parserFor(format ConfigFormat) koanf.Parser {
	if format == ConfigFormatJSON {
		return json.Parser()
	}
	return yaml.Parser()
}

func rawbytesProvider(data []byte) koanf.Provider {
	return rawbytes.Provider(data)
}

func mustMarshalDefaults(r rawConfig) []byte {
	// Defaults are a fixed, known-valid literal, written out as YAML text
	// and then loaded through the same YAML parser as a real overlay file,
	// so the default layer exercises the exact same load path.
	doc := fmt.Sprintf(
		"baseTtlSeconds: %v\njitterMaxSeconds: %v\nsoftTtlRatio: %v\nlockTimeoutSeconds: %v\nlockRetryIntervalMs: %v\nlockMaxRetries: %v\n",
		r.BaseTTLSeconds, r.JitterMaxSeconds, r.SoftTTLRatio, r.LockTimeoutSeconds, r.LockRetryIntervalMs, r.LockMaxRetries,
	)
	return []byte(doc)
}
