package design

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/taskchain/pkg/schema"
)

const programSchemaURL = "https://taskchain.dev/schemas/program.json"

// programSchemaJSON is the JSON Schema for ProgramDocument.
const programSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://taskchain.dev/schemas/program.json",
  "type": "object",
  "required": ["name", "body"],
  "properties": {
    "name": {
      "type": "string",
      "minLength": 1
    },
    "config": {
      "type": "object",
      "properties": {
        "registration_capacity": { "type": "integer", "minimum": 1 },
        "max_concurrent_action_executions": { "type": "integer", "minimum": 1 }
      },
      "additionalProperties": false
    },
    "events": {
      "type": "array",
      "items": { "$ref": "#/$defs/event" }
    },
    "body": { "$ref": "#/$defs/node" },
    "shutdown": {
      "allOf": [
        { "$ref": "#/$defs/node" },
        { "required": ["sync"] }
      ]
    }
  },
  "additionalProperties": false,
  "$defs": {
    "event": {
      "type": "object",
      "required": ["tag", "source"],
      "properties": {
        "tag": { "type": "string", "minLength": 1 },
        "source": {
          "type": "string",
          "pattern": "^(local|ipc|timer:.+|cron:.+)$"
        }
      },
      "additionalProperties": false
    },
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/node" }
    },
    "node": {
      "type": "object",
      "properties": {
        "id": {
          "type": "string",
          "pattern": "^[A-Za-z_][A-Za-z0-9_.-]*(#[0-9]+)?$"
        },
        "invoke": { "type": "string", "minLength": 1 },
        "sequence": { "$ref": "#/$defs/nodes" },
        "concurrency": { "$ref": "#/$defs/nodes" },
        "max_concurrent": { "type": "integer", "minimum": 1 },
        "select": { "$ref": "#/$defs/nodes" },
        "graph": { "$ref": "#/$defs/nodes" },
        "after": {
          "type": "array",
          "minItems": 1,
          "uniqueItems": true,
          "items": { "type": "string", "minLength": 1 }
        },
        "sync": { "$ref": "#/$defs/sync" },
        "trigger": { "$ref": "#/$defs/node" },
        "on": { "type": "string", "minLength": 1 },
        "catch": { "$ref": "#/$defs/node" },
        "filter": {
          "type": "array",
          "items": { "type": "string", "enum": ["user", "timeout", "all"] }
        },
        "if": { "type": "string", "minLength": 1 },
        "then": { "$ref": "#/$defs/node" },
        "else": { "$ref": "#/$defs/node" }
      },
      "oneOf": [
        { "required": ["invoke"] },
        { "required": ["sequence"] },
        { "required": ["concurrency"] },
        { "required": ["select"] },
        { "required": ["graph"] },
        { "required": ["sync"] },
        { "required": ["trigger"] },
        { "required": ["catch"] },
        { "required": ["if"] }
      ],
      "dependentRequired": {
        "trigger": ["on"],
        "on": ["trigger"],
        "filter": ["catch"],
        "if": ["then"],
        "then": ["if"],
        "else": ["if"]
      },
      "additionalProperties": false
    },
    "sync": {
      "type": "object",
      "properties": {
        "notify": { "type": "string", "minLength": 1 },
        "listen": { "type": "string", "minLength": 1 },
        "value": { "type": "integer", "minimum": 0, "maximum": 4294967295 }
      },
      "oneOf": [
        { "required": ["notify"] },
        { "required": ["listen"] }
      ],
      "dependentRequired": {
        "value": ["notify"]
      },
      "additionalProperties": false
    }
  }
}`

var (
	compileOnce   sync.Once
	programSchema *jsonschema.Schema
	compileErr    error
)

func loadProgramSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.AssertFormat()

		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(programSchemaJSON))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal program schema: %w", err)
			return
		}
		if err := c.AddResource(programSchemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add program schema resource: %w", err)
			return
		}
		programSchema, compileErr = c.Compile(programSchemaURL)
	})
	return programSchema, compileErr
}

// checkSchema validates doc against the program JSON Schema and reports
// each violated leaf as one issue.
func checkSchema(doc *schema.ProgramDocument) *schema.ValidationResult {
	res := &schema.ValidationResult{}

	sch, err := loadProgramSchema()
	if err != nil {
		res.Addf("", schema.ErrCodeInternal, "%s", err.Error())
		return res
	}

	value, err := toJSONValue(doc)
	if err != nil {
		res.Addf("", schema.ErrCodeValidation, "serialize program document: %s", err.Error())
		return res
	}

	if err := sch.Validate(value); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			res.Addf("", schema.ErrCodeValidation, "%s", err.Error())
			return res
		}
		collectViolations(verr, res)
	}
	return res
}

// toJSONValue round-trips v through encoding/json so numbers become
// json.Number, as the jsonschema library expects.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

func collectViolations(verr *jsonschema.ValidationError, res *schema.ValidationResult) {
	if len(verr.Causes) == 0 {
		res.Addf("/"+strings.Join(verr.InstanceLocation, "/"), schema.ErrCodeValidation, "%s", verr.Error())
		return
	}
	for _, cause := range verr.Causes {
		collectViolations(cause, res)
	}
}
