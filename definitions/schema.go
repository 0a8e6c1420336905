package definitions

// ActionConfigJSONSchema documents the strict shape of the action
// configuration blob stored inline on a transition row. Publishes validate
// every configured action against it, so malformed blobs never reach the
// dispatcher.
const ActionConfigJSONSchema = `
{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "ActionConfig",
  "type": "object",
  "required": ["type", "trigger"],
  "properties": {
    "type": {
      "type": "string",
      "minLength": 1,
      "description": "Registered action type key (e.g. stock.move)"
    },
    "trigger": {
      "type": "string",
      "enum": ["before_transition", "after_transition"],
      "description": "Phase of the transition at which the action runs"
    },
    "must_succeed": {
      "type": "boolean",
      "default": false
    },
    "parameters": {
      "type": "object",
      "additionalProperties": true
    }
  },
  "additionalProperties": false
}
`
