package runtimeconfig

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEngineDisabled is returned by every engine entry point when the module
// toggle is off. It exists for safe operational rollback: flipping the toggle
// short-circuits the engine without touching persisted state.
var ErrEngineDisabled = errors.New("flows config: workflow engine is disabled")

var ErrLoggingProviderRequired = errors.New("flows config: logging provider is required when logging feature is enabled")
var ErrLoggingProviderUnknown = errors.New("flows config: logging provider is invalid")
var ErrLoggingLevelInvalid = errors.New("flows config: logging level is invalid")
var ErrLoggingFormatInvalid = errors.New("flows config: logging format is invalid")
var ErrAdvancedCacheRequiresEnabledCache = errors.New("flows config: definition cache feature requires cache to be enabled")
var ErrHistoryPageSizeInvalid = errors.New("flows config: history page size must be positive")

// Config aggregates feature flags and adapter bindings for the workflow engine.
// Fields intentionally use simple types so host applications can extend them later.
type Config struct {
	Enabled  bool
	Storage  StorageConfig
	Cache    CacheConfig
	History  HistoryConfig
	Features Features
	Commands CommandsConfig
	Logging  LoggingConfig
}

// StorageConfig lists identifiers for storage-related dependencies.
type StorageConfig struct {
	Provider string
}

// CacheConfig captures cache behaviour for hot definition lookups.
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

// HistoryConfig controls audit-trail pagination defaults.
type HistoryConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Features toggles module functionality.
type Features struct {
	DefinitionCache bool
	Activity        bool
	Logger          bool
}

// CommandsConfig captures optional command-layer behaviour.
type CommandsConfig struct {
	Enabled                bool
	AutoRegisterDispatcher bool
}

// LoggingConfig captures provider-specific options for runtime logging.
type LoggingConfig struct {
	Provider  string
	Level     string
	Format    string
	AddSource bool
	Focus     []string
}

// DefaultConfig returns opinionated defaults for hosting applications.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Storage: StorageConfig{
			Provider: "bun",
		},
		Cache: CacheConfig{
			Enabled:    true,
			DefaultTTL: time.Minute,
		},
		History: HistoryConfig{
			DefaultPageSize: 25,
			MaxPageSize:     200,
		},
		Features: Features{},
		Commands: CommandsConfig{},
		Logging: LoggingConfig{
			Provider: "gologger",
			Level:    "info",
			Format:   "",
		},
	}
}

// Validate performs high-level consistency checks.
func (cfg Config) Validate() error {
	if cfg.Features.DefinitionCache && !cfg.Cache.Enabled {
		return ErrAdvancedCacheRequiresEnabledCache
	}
	if cfg.History.DefaultPageSize <= 0 || cfg.History.MaxPageSize <= 0 {
		return ErrHistoryPageSizeInvalid
	}
	if cfg.Features.Logger {
		provider := normalizeProvider(cfg.Logging.Provider)
		if provider == "" {
			return ErrLoggingProviderRequired
		}
		if !isSupportedProvider(provider) {
			return fmt.Errorf("%w: %s", ErrLoggingProviderUnknown, provider)
		}
		if level := strings.TrimSpace(cfg.Logging.Level); level != "" && !isSupportedLevel(level) {
			return fmt.Errorf("%w: %s", ErrLoggingLevelInvalid, level)
		}
		if format := strings.TrimSpace(cfg.Logging.Format); format != "" && !isSupportedFormat(format) {
			return fmt.Errorf("%w: %s", ErrLoggingFormatInvalid, format)
		}
	}
	return nil
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

func isSupportedProvider(provider string) bool {
	switch provider {
	case "gologger":
		return true
	default:
		return false
	}
}

func isSupportedLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal":
		return true
	default:
		return false
	}
}

func isSupportedFormat(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json", "console", "pretty":
		return true
	default:
		return false
	}
}
