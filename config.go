package flows

import "github.com/goliatone/go-flows/internal/runtimeconfig"

var (
	ErrEngineDisabled                    = runtimeconfig.ErrEngineDisabled
	ErrAdvancedCacheRequiresEnabledCache = runtimeconfig.ErrAdvancedCacheRequiresEnabledCache
	ErrHistoryPageSizeInvalid            = runtimeconfig.ErrHistoryPageSizeInvalid
	ErrLoggingProviderRequired           = runtimeconfig.ErrLoggingProviderRequired
	ErrLoggingProviderUnknown            = runtimeconfig.ErrLoggingProviderUnknown
	ErrLoggingLevelInvalid               = runtimeconfig.ErrLoggingLevelInvalid
	ErrLoggingFormatInvalid              = runtimeconfig.ErrLoggingFormatInvalid
)

type (
	Config         = runtimeconfig.Config
	StorageConfig  = runtimeconfig.StorageConfig
	CacheConfig    = runtimeconfig.CacheConfig
	HistoryConfig  = runtimeconfig.HistoryConfig
	Features       = runtimeconfig.Features
	CommandsConfig = runtimeconfig.CommandsConfig
	LoggingConfig  = runtimeconfig.LoggingConfig
)

func DefaultConfig() Config {
	return runtimeconfig.DefaultConfig()
}
