package protocol

import (
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

// frameSchemas holds the JSON Schema each inbound kind must satisfy before
// it is typed. Kinds with no payload only need the type field.
var frameSchemas = map[Kind]string{
	KindThinking: `{"type":"object"}`,
	KindText: `{
		"type": "object",
		"required": ["content"],
		"properties": {"content": {"type": "string"}}
	}`,
	KindToolUseStart: `{
		"type": "object",
		"required": ["tool_use_id"],
		"properties": {
			"tool_use_id": {"type": "string", "minLength": 1},
			"tool": {"type": "string"},
			"input": {"type": ["object", "null"]}
		}
	}`,
	KindToolExecuting: `{
		"type": "object",
		"required": ["tool_use_id"],
		"properties": {
			"tool_use_id": {"type": "string", "minLength": 1},
			"input": {"type": ["object", "null"]}
		}
	}`,
	KindToolResult: `{
		"type": "object",
		"required": ["tool_use_id", "success"],
		"properties": {
			"tool_use_id": {"type": "string", "minLength": 1},
			"success": {"type": "boolean"}
		}
	}`,
	KindResult: `{
		"type": "object",
		"properties": {
			"usage": {"type": ["object", "null"]},
			"cost": {"type": ["number", "null"]}
		}
	}`,
	KindError: `{
		"type": "object",
		"properties": {
			"message": {"type": ["string", "null"]},
			"error": {"type": ["string", "null"]},
			"code": {"type": ["string", "null"]}
		}
	}`,
	KindInterrupted: `{
		"type": "object",
		"properties": {"message": {"type": ["string", "null"]}}
	}`,
	KindResumeStarted:   `{"type":"object"}`,
	KindResumeNotNeeded: `{"type":"object"}`,
	KindResumeFailed: `{
		"type": "object",
		"properties": {"error": {"type": ["string", "null"]}}
	}`,
	KindUserQuestion: `{
		"type": "object",
		"required": ["tool_use_id", "questions"],
		"properties": {
			"tool_use_id": {"type": "string", "minLength": 1},
			"questions": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["question"],
					"properties": {
						"question": {"type": "string"},
						"header": {"type": "string"},
						"multiSelect": {"type": "boolean"},
						"options": {
							"type": "array",
							"items": {
								"type": "object",
								"required": ["label"],
								"properties": {
									"label": {"type": "string"},
									"description": {"type": "string"}
								}
							}
						}
					}
				}
			}
		}
	}`,
}

func compileSchemas() (map[Kind]*jsonschema.Schema, error) {
	out := make(map[Kind]*jsonschema.Schema, len(frameSchemas))
	for kind, src := range frameSchemas {
		schema, err := jsonschema.NewCompiler().Compile([]byte(src))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", kind, err)
		}
		out[kind] = schema
	}
	return out, nil
}

func validateFrame(schema *jsonschema.Schema, frame map[string]any) error {
	result := schema.Validate(frame)
	if !result.IsValid() {
		return fmt.Errorf("%s", result.Error())
	}
	return nil
}
