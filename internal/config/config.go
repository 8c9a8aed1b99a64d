package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// DefaultFile is read when no config file is named on the command line
const DefaultFile = "dllcheck.json"

// ErrNoPaths is returned when the config lists no directory to scan
var ErrNoPaths = errors.New("config has no Paths to scan")

// InvalidPatternError is an ExcludedDlls entry that is not a valid regular expression
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid ExcludedDlls pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error {
	return e.Err
}

// Config is the validated input of a run
type Config struct {
	// Paths are scanned for modules, in order
	Paths []string
	// SystemPaths are searched, in order, only to resolve missing references
	SystemPaths []string
	// ExcludedDlls are unanchored regular expressions over module names
	ExcludedDlls []string

	Tracing TracingConfig

	// File is the absolute path the config was loaded from
	File string

	excluded []*regexp.Regexp
}

type TracingConfig struct {
	Endpoint   string
	SampleRate float64
}

// Load reads the config file at path. Keys are case-insensitive and may be
// overridden from DLLCHECK_* environment variables; lists in the environment
// are space separated. Relative directories resolve against the file's directory.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(abs)
	if filepath.Ext(abs) == "" {
		v.SetConfigType("json")
	}
	v.SetEnvPrefix("DLLCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"paths", "systempaths", "excludeddlls", "tracing.endpoint", "tracing.samplerate"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	base := filepath.Dir(abs)
	cfg := &Config{
		Paths:        resolveDirs(base, v.GetStringSlice("paths")),
		SystemPaths:  resolveDirs(base, v.GetStringSlice("systempaths")),
		ExcludedDlls: v.GetStringSlice("excludeddlls"),
		Tracing: TracingConfig{
			Endpoint:   v.GetString("tracing.endpoint"),
			SampleRate: v.GetFloat64("tracing.samplerate"),
		},
		File: abs,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fatal conditions and compiles the exclusion patterns
func (c *Config) Validate() error {
	if len(c.Paths) == 0 {
		return ErrNoPaths
	}

	c.excluded = make([]*regexp.Regexp, 0, len(c.ExcludedDlls))
	for _, pattern := range c.ExcludedDlls {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return &InvalidPatternError{Pattern: pattern, Err: err}
		}
		c.excluded = append(c.excluded, re)
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing sample rate %.2f is outside [0, 1]", c.Tracing.SampleRate)
	}
	return nil
}

// Excluded returns the compiled ExcludedDlls patterns
func (c *Config) Excluded() []*regexp.Regexp {
	return c.excluded
}

func resolveDirs(base string, dirs []string) []string {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if !filepath.IsAbs(d) {
			d = filepath.Join(base, d)
		}
		out = append(out, filepath.Clean(d))
	}
	return out
}
