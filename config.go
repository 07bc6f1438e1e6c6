package softsynth

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	intaudio "github.com/cbegin/softsynth-go/internal/audio"
	intfx "github.com/cbegin/softsynth-go/internal/effects"
	"github.com/cbegin/softsynth-go/internal/voice"
)

// Output sinks selectable with WithSink.
const (
	SinkEbiten = "ebiten"
	SinkOto    = "oto"
	SinkWriter = "writer"
	// SinkNone leaves pulling to the caller through Process.
	SinkNone = "none"
)

// Voice allocation policies.
const (
	AllocDefault = "default"
	AllocDLS     = "dls"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the synthesizer setup. The zero value is not usable; start from
// DefaultConfig or LoadConfig.
type Config struct {
	SampleRate      int             `yaml:"sample_rate"`
	Polyphony       int             `yaml:"polyphony"`
	ControlRate     float64         `yaml:"control_rate"`
	VoiceAllocation string          `yaml:"voice_allocation"`
	Reverb          bool            `yaml:"reverb"`
	Chorus          bool            `yaml:"chorus"`
	AGC             bool            `yaml:"agc"`
	Sink            string          `yaml:"sink"`
	Format          string          `yaml:"format"`
	Inserts         []intfx.Spec    `yaml:"inserts"`
	Logger          *slog.Logger    `yaml:"-"`
	Writer          io.Writer       `yaml:"-"`
	SampleTap       func([]float32) `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		SampleRate:      44100,
		Polyphony:       64,
		ControlRate:     147,
		VoiceAllocation: AllocDefault,
		Reverb:          true,
		Chorus:          true,
		AGC:             true,
		Sink:            SinkEbiten,
		Format:          intaudio.FormatPCM16.String(),
	}
}

// LoadConfig reads a YAML (or JSON) config file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("%s: %w: %w", path, ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and names.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, c.SampleRate)
	case c.Polyphony <= 0:
		return fmt.Errorf("%w: polyphony %d", ErrInvalidConfig, c.Polyphony)
	case c.ControlRate <= 0 || c.ControlRate > float64(c.SampleRate):
		return fmt.Errorf("%w: control rate %g", ErrInvalidConfig, c.ControlRate)
	}
	if _, err := c.policy(); err != nil {
		return err
	}
	if _, err := intaudio.ParseFormat(c.Format); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch c.Sink {
	case SinkEbiten, SinkOto, SinkNone:
	case SinkWriter:
		if c.Writer == nil {
			return fmt.Errorf("%w: writer sink without a writer", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown sink %q", ErrInvalidConfig, c.Sink)
	}
	return nil
}

func (c Config) policy() (voice.Policy, error) {
	switch c.VoiceAllocation {
	case AllocDefault, "":
		return voice.AllocDefault, nil
	case AllocDLS:
		return voice.AllocDLS, nil
	}
	return 0, fmt.Errorf("%w: voice allocation %q", ErrInvalidConfig, c.VoiceAllocation)
}

type Option func(*Config)

// WithConfig replaces the whole config; later options still apply on top.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

func WithPolyphony(voices int) Option {
	return func(c *Config) {
		c.Polyphony = voices
	}
}

// WithControlRate sets how many control ticks run per second.
func WithControlRate(rate float64) Option {
	return func(c *Config) {
		c.ControlRate = rate
	}
}

// WithVoiceAllocation selects AllocDefault or AllocDLS stealing.
func WithVoiceAllocation(policy string) Option {
	return func(c *Config) {
		c.VoiceAllocation = policy
	}
}

func WithReverb(on bool) Option {
	return func(c *Config) {
		c.Reverb = on
	}
}

func WithChorus(on bool) Option {
	return func(c *Config) {
		c.Chorus = on
	}
}

// WithAGC enables the output limiter.
func WithAGC(on bool) Option {
	return func(c *Config) {
		c.AGC = on
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithSink selects the output backend opened by Open.
func WithSink(name string) Option {
	return func(c *Config) {
		c.Sink = name
	}
}

// WithWriter streams encoded audio to w in real time.
func WithWriter(w io.Writer) Option {
	return func(c *Config) {
		c.Sink = SinkWriter
		c.Writer = w
	}
}

// WithFormat sets the stream encoding, "s16le" or "f32le".
func WithFormat(format string) Option {
	return func(c *Config) {
		c.Format = format
	}
}

// WithSampleTap installs a callback invoked with each generated stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) Option {
	return func(c *Config) {
		c.SampleTap = tap
	}
}

// WithInsertEffects appends effects run on the master output after the EQ.
func WithInsertEffects(specs ...intfx.Spec) Option {
	return func(c *Config) {
		c.Inserts = append(c.Inserts, specs...)
	}
}
