package config

import (
	"github.com/spf13/viper"
)

// Environment variables understood by the harness.
const (
	EnvName       = "SIRUN_NAME"
	EnvVariant    = "SIRUN_VARIANT"
	EnvNoStdio    = "SIRUN_NO_STDIO"
	EnvVersion    = "GIT_COMMIT_HASH"
	EnvSkipSetup  = "SIRUN_SKIP_SETUP"
	EnvIteration  = "SIRUN_ITERATION"
	EnvStatsdPort = "SIRUN_STATSD_PORT"
)

// Env holds the environment settings that influence a run. A variable that
// is present but empty still counts as set.
type Env struct {
	Name    string
	HasName bool

	Variant    string
	HasVariant bool

	Version    string
	HasVersion bool

	NoStdio   bool
	SkipSetup bool

	// Iteration carries a serialized Config when this process is a
	// per-iteration child.
	Iteration string

	StatsdPort string
}

// IsChild reports whether the process was started as a per-iteration child.
func (e Env) IsChild() bool {
	return e.Iteration != ""
}

// LoadEnv reads the harness settings from the process environment.
func LoadEnv() Env {
	v := viper.New()
	v.AllowEmptyEnv(true)

	bindings := map[string]string{
		"name":        EnvName,
		"variant":     EnvVariant,
		"version":     EnvVersion,
		"no_stdio":    EnvNoStdio,
		"skip_setup":  EnvSkipSetup,
		"iteration":   EnvIteration,
		"statsd_port": EnvStatsdPort,
	}
	for key, env := range bindings {
		// BindEnv only fails without a key.
		_ = v.BindEnv(key, env)
	}

	return Env{
		Name:       v.GetString("name"),
		HasName:    v.IsSet("name"),
		Variant:    v.GetString("variant"),
		HasVariant: v.IsSet("variant"),
		Version:    v.GetString("version"),
		HasVersion: v.IsSet("version"),
		NoStdio:    v.IsSet("no_stdio"),
		SkipSetup:  v.IsSet("skip_setup"),
		Iteration:  v.GetString("iteration"),
		StatsdPort: v.GetString("statsd_port"),
	}
}
