package logging

import (
	"context"
	"maps"

	"github.com/goliatone/go-flows/pkg/interfaces"
)

const (
	rootModule        = "flows"
	definitionsModule = "flows.definitions"
	runtimeModule     = "flows.runtime"
	actionsModule     = "flows.actions"
)

// WithFields attaches structured fields to a logger when the implementation
// supports the optional FieldsLogger extension. Callers can pass nil or an
// empty map to skip allocation safely.
func WithFields(logger interfaces.Logger, fields map[string]any) interfaces.Logger {
	if logger == nil || len(fields) == 0 {
		return logger
	}

	if fieldsLogger, ok := logger.(interfaces.FieldsLogger); ok {
		copied := make(map[string]any, len(fields))
		maps.Copy(copied, fields)
		return fieldsLogger.WithFields(copied)
	}

	return logger
}

// ModuleLogger returns a module-scoped logger, defaulting to a no-op
// implementation when no provider is supplied. The returned logger attaches
// the module identifier as structured context so downstream entries can be
// filtered predictably.
func ModuleLogger(provider interfaces.LoggerProvider, module string) interfaces.Logger {
	if module == "" {
		module = rootModule
	}

	logger := NoOp()
	if provider != nil {
		if provided := provider.GetLogger(module); provided != nil {
			logger = provided
		}
	}

	return WithFields(logger, map[string]any{
		"module": module,
	})
}

// DefinitionsLogger returns the logger namespace reserved for the definition store.
func DefinitionsLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, definitionsModule)
}

// RuntimeLogger returns the logger namespace reserved for the runtime manager
// and transition executor.
func RuntimeLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, runtimeModule)
}

// ActionsLogger returns the logger namespace reserved for the action dispatcher.
func ActionsLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, actionsModule)
}

// NoOp returns a logger that drops every log entry. It satisfies the Logger
// contract so services can safely operate when logging is disabled.
func NoOp() interfaces.Logger {
	return noopLogger{}
}

type noopLogger struct{}

var _ interfaces.Logger = noopLogger{}

func (noopLogger) Trace(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Fatal(string, ...any) {}

func (n noopLogger) WithFields(map[string]any) interfaces.Logger {
	return n
}

func (n noopLogger) WithContext(context.Context) interfaces.Logger {
	return n
}
