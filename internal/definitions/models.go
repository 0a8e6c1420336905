package definitions

import flowdefs "github.com/goliatone/go-flows/definitions"

type (
	Definition        = flowdefs.Definition
	State             = flowdefs.State
	Transition        = flowdefs.Transition
	ActionConfig      = flowdefs.ActionConfig
	DefinitionRequest = flowdefs.DefinitionRequest
	StateInput        = flowdefs.StateInput
	TransitionInput   = flowdefs.TransitionInput
	Document          = flowdefs.Document
	Violation         = flowdefs.Violation
	NotFoundError     = flowdefs.NotFoundError
)
