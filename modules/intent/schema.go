package intent

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const messageSchemaURL = "taskflow://intent/message.json"

const messageSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["action"],
  "properties": {
    "action": {"enum": ["create_task", "update_status", "query_tasks", "report_blocker", "change_deadline", "reassign", "help"]},
    "title": {"type": ["string", "null"], "maxLength": 200},
    "description": {"type": ["string", "null"], "maxLength": 2000},
    "dueDate": {"type": ["string", "null"]},
    "priority": {"type": ["string", "null"]},
    "status": {"type": ["string", "null"]},
    "assignees": {"type": ["array", "null"], "items": {"type": "string"}},
    "project": {"type": ["string", "null"], "maxLength": 100},
    "tags": {"type": ["array", "null"], "items": {"type": "string"}},
    "blockerReason": {"type": ["string", "null"], "maxLength": 1000}
  },
  "allOf": [
    {
      "if": {"properties": {"action": {"enum": ["create_task", "update_status", "report_blocker", "change_deadline", "reassign"]}}},
      "then": {"required": ["title"], "properties": {"title": {"type": "string", "minLength": 1}}}
    }
  ]
}`

const bulkSchemaURL = "taskflow://intent/bulk.json"

const bulkSchema = `{
  "type": "object",
  "required": ["updates"],
  "properties": {
    "updates": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "taskTitle"],
        "properties": {
          "type": {"enum": ["status_update", "new_task", "reassign", "blocker", "deadline_change"]},
          "taskTitle": {"type": "string", "minLength": 1, "maxLength": 200},
          "details": {"type": ["string", "null"]},
          "assignee": {"type": ["string", "null"]},
          "status": {"type": ["string", "null"]},
          "dueDate": {"type": ["string", "null"]},
          "priority": {"type": ["string", "null"]},
          "project": {"type": ["string", "null"]},
          "blockerReason": {"type": ["string", "null"]}
        }
      }
    }
  }
}`

type schemas struct {
	message *jsonschema.Schema
	bulk    *jsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	c := jsonschema.NewCompiler()
	for url, src := range map[string]string{messageSchemaURL: messageSchema, bulkSchemaURL: bulkSchema} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("failed to parse schema %s: %w", url, err)
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", url, err)
		}
	}
	msg, err := c.Compile(messageSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema from %s: %w", messageSchemaURL, err)
	}
	bulk, err := c.Compile(bulkSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema from %s: %w", bulkSchemaURL, err)
	}
	return &schemas{message: msg, bulk: bulk}, nil
}

func validate(schema *jsonschema.Schema, data []byte) error {
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	}
	return nil
}

// extractJSON returns the outermost JSON object in a model reply, which may
// be wrapped in prose or a fenced code block.
func extractJSON(reply string) ([]byte, error) {
	s := strings.TrimSpace(reply)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return nil, ErrNoJSON
	}
	return []byte(s[start : end+1]), nil
}
