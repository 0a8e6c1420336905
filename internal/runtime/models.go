package runtime

import (
	flowruntime "github.com/goliatone/go-flows/runtime"
)

type Instance = flowruntime.Instance
type History = flowruntime.History
type ActionExecution = flowruntime.ActionExecution
type StateView = flowruntime.StateView
type TransitionView = flowruntime.TransitionView
type RuntimeState = flowruntime.RuntimeState
type TransitionRequest = flowruntime.TransitionRequest
type TransitionResult = flowruntime.TransitionResult
type HistoryPage = flowruntime.HistoryPage

type NotFoundError = flowruntime.NotFoundError
type ConflictError = flowruntime.ConflictError
type DuplicateInstanceError = flowruntime.DuplicateInstanceError

var (
	ErrTenantRequired       = flowruntime.ErrTenantRequired
	ErrEntityRequired       = flowruntime.ErrEntityRequired
	ErrEntityNotFound       = flowruntime.ErrEntityNotFound
	ErrOriginUnknown        = flowruntime.ErrOriginUnknown
	ErrNoWorkflow           = flowruntime.ErrNoWorkflow
	ErrTransitionRequired   = flowruntime.ErrTransitionRequired
	ErrTransitionUnknown    = flowruntime.ErrTransitionUnknown
	ErrTransitionDisabled   = flowruntime.ErrTransitionDisabled
	ErrTransitionNotAllowed = flowruntime.ErrTransitionNotAllowed
	ErrStateConflict        = flowruntime.ErrStateConflict
	ErrEngineDisabled       = flowruntime.ErrEngineDisabled
)
