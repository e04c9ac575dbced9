package cp26

import (
	"log/slog"
	"time"
)

type Config struct {
	// Dialer provides the byte channel to the module. Required.
	Dialer Dialer
	// CommandTimeout is the default per-command deadline. The protocol has
	// no error replies, so this deadline is the only failure detector.
	CommandTimeout time.Duration
	// ProbeTimeout bounds the mode probe. Kept short: an unanswered probe
	// is the expected outcome on a passthrough channel, and the caller
	// waits out the full deadline to learn it.
	ProbeTimeout time.Duration
	// ResetSettle is how long the module needs to restart after AT+RESET or
	// AT+DEFAULT before it accepts commands again.
	ResetSettle time.Duration
	// MaxLineLen caps a single response line before ErrLineTooLong.
	MaxLineLen int
	// Logger receives discarded-line and desync diagnostics. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 2 * time.Second
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = 500 * time.Millisecond
	}
	if c.ResetSettle == 0 {
		c.ResetSettle = time.Second
	}
	if c.MaxLineLen == 0 {
		c.MaxLineLen = 512
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ConfigBuilder assembles a Config fluently. Build validates and applies
// defaults, so a zero duration never reaches the Module.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithCommandTimeout(d time.Duration) *ConfigBuilder {
	b.config.CommandTimeout = d
	return b
}

func (b *ConfigBuilder) WithProbeTimeout(d time.Duration) *ConfigBuilder {
	b.config.ProbeTimeout = d
	return b
}

func (b *ConfigBuilder) WithResetSettle(d time.Duration) *ConfigBuilder {
	b.config.ResetSettle = d
	return b
}

func (b *ConfigBuilder) WithMaxLineLen(n int) *ConfigBuilder {
	b.config.MaxLineLen = n
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	if err := b.config.validate(); err != nil {
		return Config{}, err
	}
	b.config.setDefaults()
	return b.config, nil
}
