// Package config loads the wrapper/backend configuration: a JSON file with
// environment-variable overrides, replacing the teacher's linker-flag-
// injected config (meaningless outside its own build system) with a form a
// normal user can edit and ship alongside the binary.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"

	"github.com/mbitsnbites/buildcache-go/internal/envutil"
	"github.com/mbitsnbites/buildcache-go/internal/fsutil"
)

// DefaultConfigName is the file Load looks for, relative to the current
// working directory, when no explicit path or BUILDCACHE_CONFIG override is
// given.
const DefaultConfigName = "buildcache.json"

// Config is the full set of tunables the cache and wrappers consult.
type Config struct {
	// CacheRoot is the directory fscache stores manifests and objects
	// under.
	CacheRoot string `json:"cache_root"`
	// MaxSizeBytes is the configured size cap for the cache (0 for none).
	// It is loaded and overridable, but the fscache backend does not read
	// it: nothing trims the cache to this size.
	MaxSizeBytes int64 `json:"max_size_bytes"`
	// EnableGCC, EnableRust, EnableCppcheck toggle each wrapper family
	// independently; a disabled wrapper never claims an invocation, so
	// matching commands fall through to direct execution.
	EnableGCC      bool `json:"enable_gcc"`
	EnableRust     bool `json:"enable_rust"`
	EnableCppcheck bool `json:"enable_cppcheck"`
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `json:"log_level"`
}

// defaults returns the configuration used when no file is present and no
// environment overrides are set.
func defaults() Config {
	return Config{
		CacheRoot:      ".buildcache",
		MaxSizeBytes:   0,
		EnableGCC:      true,
		EnableRust:     true,
		EnableCppcheck: true,
		LogLevel:       "info",
	}
}

// Load reads path (falling back to defaults if it does not exist), then
// applies BUILDCACHE_* environment overrides on top.
func Load(fs afero.Fs, env envutil.Env, path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		path = envutil.StringVar(env, "BUILDCACHE_CONFIG")
	}
	if path == "" {
		path = DefaultConfigName
	}

	if exists, err := fsutil.Exists(fs, path); err != nil {
		return nil, fmt.Errorf("config: check %s: %w", path, err)
	} else if exists {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg, env)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config, env envutil.Env) {
	if v := envutil.StringVar(env, "BUILDCACHE_ROOT"); v != "" {
		cfg.CacheRoot = v
	}
	if envutil.DefinedNonEmpty(env, "BUILDCACHE_MAX_SIZE_BYTES") {
		if n, err := envutil.Int64Var(env, "BUILDCACHE_MAX_SIZE_BYTES"); err == nil {
			cfg.MaxSizeBytes = n
		}
	}
	if env.Defined("BUILDCACHE_ENABLE_GCC") {
		cfg.EnableGCC = envutil.BoolVar(env, "BUILDCACHE_ENABLE_GCC")
	}
	if env.Defined("BUILDCACHE_ENABLE_RUST") {
		cfg.EnableRust = envutil.BoolVar(env, "BUILDCACHE_ENABLE_RUST")
	}
	if env.Defined("BUILDCACHE_ENABLE_CPPCHECK") {
		cfg.EnableCppcheck = envutil.BoolVar(env, "BUILDCACHE_ENABLE_CPPCHECK")
	}
	if v := envutil.StringVar(env, "BUILDCACHE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
