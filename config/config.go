// Package config resolves a benchmark description document, plus the
// environment overrides, into the Config the harness runs.
package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"
)

// Config is a fully resolved benchmark description.
type Config struct {
	Name     string   `json:"name,omitempty"`
	Variant  string   `json:"variant,omitempty"`
	Setup    []string `json:"setup,omitempty"`
	Teardown []string `json:"teardown,omitempty"`
	Run      []string `json:"run,omitempty"`

	// Timeout is in whole seconds; zero means no timeout.
	Timeout uint64 `json:"timeout,omitempty"`

	Env        map[string]string `json:"env,omitempty"`
	Cachegrind bool              `json:"cachegrind,omitempty"`
	Iterations uint64            `json:"iterations"`

	// Variants lists the variant ids still to be run. It is only set when
	// the document has variants and none was selected.
	Variants []string `json:"variants,omitempty"`
}

// maxTimeout is the largest Timeout a time.Duration can represent.
const maxTimeout = uint64(math.MaxInt64 / int64(time.Second))

// TimeoutDuration returns Timeout as a time.Duration. Timeouts too long to
// represent are clamped to the longest possible duration.
func (c *Config) TimeoutDuration() time.Duration {
	if c.Timeout > maxTimeout {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(c.Timeout) * time.Second
}

// FansOut reports whether c describes a set of variants to run one by one
// rather than a single benchmark.
func (c *Config) FansOut() bool {
	return len(c.Variants) > 0
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.Setup = slices.Clone(c.Setup)
	out.Teardown = slices.Clone(c.Teardown)
	out.Run = slices.Clone(c.Run)
	out.Variants = slices.Clone(c.Variants)
	out.Env = maps.Clone(c.Env)

	return &out
}

// EnvList returns the env overlay as KEY=VALUE pairs in key order.
func (c *Config) EnvList() []string {
	keys := slices.Sorted(maps.Keys(c.Env))

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+c.Env[k])
	}

	return out
}

// Encode serializes c for handing to a child harness process.
func (c *Config) Encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}

	return string(b), nil
}

// Decode parses a config produced by Encode.
func Decode(s string) (*Config, error) {
	var c Config
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return nil, &Error{Msg: "decode serialized config", Err: err}
	}

	if len(c.Run) == 0 {
		return nil, &Error{Msg: "serialized config has no run command"}
	}

	if c.Iterations == 0 {
		c.Iterations = 1
	}

	return &c, nil
}

// Error describes a configuration that cannot be resolved.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "config: " + e.Msg + ": " + e.Err.Error()
	}

	return "config: " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func errorf(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}
