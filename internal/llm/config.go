package llm

import "time"

// Config configures a Provider instance: credentials, endpoint, timeout,
// and retry/backoff settings. The bundled anthropic and openai providers
// apply only APIKey and BaseURL; the timeout and retry/backoff fields are
// carried here but no provider reads them.
type Config struct {
	APIKey          string
	BaseURL         string
	Timeout         time.Duration
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// ConfigOption mutates a Config being built by NewConfig.
type ConfigOption func(*Config)

// DefaultConfig returns the baseline timeout and retry/backoff values that
// NewConfig starts from.
func DefaultConfig() Config {
	return Config{
		Timeout:         60 * time.Second,
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
	}
}

// NewConfig builds a Config starting from DefaultConfig and applying opts.
func NewConfig(opts ...ConfigOption) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func WithAPIKey(key string) ConfigOption {
	return func(c *Config) { c.APIKey = key }
}

func WithBaseURL(url string) ConfigOption {
	return func(c *Config) { c.BaseURL = url }
}

func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.Timeout = d }
}

func WithMaxRetries(n int) ConfigOption {
	return func(c *Config) { c.MaxRetries = n }
}

// WithBackoff sets the backoff fields: initial interval, max interval, and
// multiplier.
func WithBackoff(initial, max time.Duration, multiplier float64) ConfigOption {
	return func(c *Config) {
		c.InitialInterval = initial
		c.MaxInterval = max
		c.Multiplier = multiplier
	}
}
