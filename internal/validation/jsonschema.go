package validation

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/flowcraft/pkg/schema"
)

const documentSchemaURL = "https://flowcraft.dev/schemas/document.json"

// documentSchemaJSON is the JSON Schema for transport documents.
const documentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowcraft.dev/schemas/document.json",
  "type": "object",
  "required": ["nodes", "connections"],
  "properties": {
    "id": { "type": "string" },
    "title": { "type": "string" },
    "nodes": {
      "type": "array",
      "items": { "$ref": "#/$defs/node" }
    },
    "connections": {
      "type": "array",
      "items": { "$ref": "#/$defs/connection" }
    },
    "metadata": {
      "type": "object",
      "properties": {
        "created": { "type": "string" },
        "modified": { "type": "string" },
        "version": { "type": "string" }
      }
    }
  },
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": { "type": "string" },
        "text": { "type": "string" },
        "position": {
          "type": "object",
          "properties": {
            "x": { "type": "number" },
            "y": { "type": "number" }
          }
        },
        "size": {
          "type": "object",
          "properties": {
            "width": { "type": "number", "minimum": 0 },
            "height": { "type": "number", "minimum": 0 }
          }
        }
      }
    },
    "connection": {
      "type": "object",
      "required": ["source", "target"],
      "properties": {
        "id": { "type": "string" },
        "source": { "type": "string" },
        "target": { "type": "string" },
        "type": { "type": "string" },
        "label": { "type": "string" }
      }
    }
  }
}`

var (
	docSchemaOnce sync.Once
	docSchema     *jsonschema.Schema
	docSchemaErr  error
)

func documentSchema() (*jsonschema.Schema, error) {
	docSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.AssertFormat()

		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchemaJSON))
		if err != nil {
			docSchemaErr = fmt.Errorf("unmarshal document schema: %w", err)
			return
		}
		if err := c.AddResource(documentSchemaURL, doc); err != nil {
			docSchemaErr = fmt.Errorf("add document schema resource: %w", err)
			return
		}
		docSchema, docSchemaErr = c.Compile(documentSchemaURL)
		if docSchemaErr != nil {
			docSchemaErr = fmt.Errorf("compile document schema: %w", docSchemaErr)
		}
	})
	return docSchema, docSchemaErr
}

// ValidateDocumentJSON checks raw bytes against the transport document schema.
// Failures are MALFORMED_DOCUMENT errors listing each violation.
func ValidateDocumentJSON(data []byte) error {
	s, err := documentSchema()
	if err != nil {
		return schema.NewError(schema.ErrCodeExecution, "document schema unavailable").WithCause(err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return schema.NewError(schema.ErrCodeMalformedDocument, "document is not valid JSON").WithCause(err)
	}

	if err := s.Validate(inst); err != nil {
		return toFlowError(err)
	}
	return nil
}

// toFlowError converts a jsonschema.ValidationError into a MALFORMED_DOCUMENT
// FlowError with one entry per leaf violation.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeMalformedDocument, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeMalformedDocument, verr.Error())
	}

	msg := violations[0]
	if len(violations) > 1 {
		msg = fmt.Sprintf("document has %d structural errors", len(violations))
	}
	return schema.NewError(schema.ErrCodeMalformedDocument, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// prefixed with their instance location.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
