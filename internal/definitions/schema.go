package definitions

import (
	"encoding/json"
	"fmt"
	"strings"

	flowdefs "github.com/goliatone/go-flows/definitions"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

var actionConfigSchema = mustCompileActionConfigSchema()

func mustCompileActionConfigSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("action_config.json", strings.NewReader(flowdefs.ActionConfigJSONSchema)); err != nil {
		panic(fmt.Sprintf("definitions: action config schema resource: %v", err))
	}
	schema, err := compiler.Compile("action_config.json")
	if err != nil {
		panic(fmt.Sprintf("definitions: action config schema compile: %v", err))
	}
	return schema
}

// validateActionBlobs checks every configured action against the strict
// ActionConfig schema. The graph validator covers semantics (type, origin
// compatibility, trigger); this guards the persisted blob shape itself.
func validateActionBlobs(req DefinitionRequest) error {
	for tIdx, tr := range req.Transitions {
		for aIdx, cfg := range tr.Actions {
			payload, err := actionConfigPayload(cfg)
			if err != nil {
				return fmt.Errorf("definitions: transition %d action %d: %w", tIdx, aIdx, err)
			}
			if err := actionConfigSchema.Validate(payload); err != nil {
				return fmt.Errorf("definitions: transition %d action %d: %w", tIdx, aIdx, err)
			}
		}
	}
	return nil
}

func actionConfigPayload(cfg ActionConfig) (any, error) {
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var payload any
	if err := json.Unmarshal(encoded, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
