// Package config loads throttler definitions from YAML or TOML files.
//
// A file declares any number of named throttlers plus logging and metrics
// settings for the process that hosts them:
//
//	log:
//	  level: info
//	  format: json
//	metrics:
//	  addr: ":9090"
//	throttlers:
//	  - name: github
//	    rate_limit: 5000
//	    period: 1h
//	  - name: search
//	    rate_limit: 10
//	    period: 1s
//	    on_full: reject
//
// Periods are Go duration strings. on_full is "wait" (the default) or
// "reject", which fails fast with throttler.ErrThrottled.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	throttler "github.com/KARTIKrocks/go-throttler"
)

// ErrUnknownFormat is returned for files that are neither YAML nor TOML.
var ErrUnknownFormat = errors.New("unknown config format")

// Format is a config file encoding.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// What a throttler does when its window is full.
const (
	OnFullWait   = "wait"
	OnFullReject = "reject"
)

// File is the top-level configuration.
type File struct {
	Log        Log         `yaml:"log" toml:"log"`
	Metrics    Metrics     `yaml:"metrics" toml:"metrics"`
	Throttlers []Throttler `yaml:"throttlers" toml:"throttlers" validate:"required,min=1,unique=Name,dive"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"oneof=text json"`
}

// Metrics configures the Prometheus endpoint. An empty Addr disables it.
type Metrics struct {
	Addr string `yaml:"addr" toml:"addr" validate:"omitempty,hostname_port"`
}

// Throttler defines one named throttler.
type Throttler struct {
	Name      string        `yaml:"name" toml:"name" validate:"required"`
	RateLimit int           `yaml:"rate_limit" toml:"rate_limit" validate:"gt=0"`
	Period    Duration      `yaml:"period" toml:"period" validate:"gt=0"`
	OnFull    string        `yaml:"on_full" toml:"on_full" validate:"oneof=wait reject"`
}

// Load reads and validates the file at path. The format is chosen by
// extension: .yaml and .yml for YAML, .toml for TOML.
func Load(path string) (*File, error) {
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	f, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func formatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
}

// Parse decodes data, fills in defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte, format Format) (*File, error) {
	var f File

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}

	case FormatTOML:
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("decode toml: unknown keys %v", undecoded)
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	f.setDefaults()

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) setDefaults() {
	if f.Log.Level == "" {
		f.Log.Level = "info"
	}
	if f.Log.Format == "" {
		f.Log.Format = "text"
	}
	for i := range f.Throttlers {
		if f.Throttlers[i].OnFull == "" {
			f.Throttlers[i].OnFull = OnFullWait
		}
	}
}

// Validate checks f against its declared tags.
func (f *File) Validate() error {
	return Validate(f)
}

// Lookup returns the throttler definition called name.
func (f *File) Lookup(name string) (Throttler, bool) {
	for _, t := range f.Throttlers {
		if t.Name == name {
			return t, true
		}
	}
	return Throttler{}, false
}

// Build creates the throttler described by t. opts are applied after the
// ones derived from t.
func (t Throttler) Build(opts ...throttler.Option) (*throttler.Throttler, error) {
	base := []throttler.Option{throttler.WithName(t.Name)}
	if t.OnFull == OnFullReject {
		base = append(base, throttler.WithHook(throttler.Reject))
	}

	return throttler.New(t.RateLimit, time.Duration(t.Period), append(base, opts...)...)
}

// Duration is a time.Duration written as a Go duration string such as
// "1.5s". Bare numbers are rejected in both formats, so period = 1 is an
// error instead of one nanosecond.
type Duration time.Duration

// String returns the duration in time.Duration notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode || value.ShortTag() != "!!str" {
		return fmt.Errorf("line %d: duration must be a string such as \"1s\", got %q", value.Line, value.Value)
	}
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalTOML implements toml.Unmarshaler.
func (d *Duration) UnmarshalTOML(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("duration must be a string such as \"1s\", got %v", v)
	}
	return d.UnmarshalText([]byte(s))
}
