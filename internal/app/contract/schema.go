package contract

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var artifactSchema = compileSchema("artifact.json", artifactSchemaSource)

func compileSchema(name, source string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(name, strings.NewReader(source)); err != nil {
		panic(err)
	}
	return compiler.MustCompile(name)
}

const artifactSchemaSource = `{
  "type": "object",
  "required": ["consumer", "provider", "interactions"],
  "properties": {
    "consumer": {"$ref": "#/$defs/pacticipant"},
    "provider": {"$ref": "#/$defs/pacticipant"},
    "formatVersion": {"type": "string"},
    "interactions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["description", "request", "response"],
        "properties": {
          "description": {"type": "string", "minLength": 1},
          "providerState": {"type": "string"},
          "request": {
            "type": "object",
            "required": ["method", "path"],
            "properties": {
              "method": {"type": "string"},
              "path": {"type": "string"},
              "query": {"type": ["string", "object"]},
              "headers": {"$ref": "#/$defs/headers"},
              "matchingRules": {"$ref": "#/$defs/rules"}
            }
          },
          "response": {
            "type": "object",
            "required": ["status"],
            "properties": {
              "status": {"type": "integer", "minimum": 100, "maximum": 599},
              "headers": {"$ref": "#/$defs/headers"},
              "matchingRules": {"$ref": "#/$defs/rules"}
            }
          }
        }
      }
    }
  },
  "$defs": {
    "pacticipant": {
      "type": "object",
      "required": ["name"],
      "properties": {"name": {"type": "string", "minLength": 1}}
    },
    "headers": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "rules": {
      "type": "object",
      "propertyNames": {"pattern": "^\\$"},
      "additionalProperties": {"type": "object"}
    }
  }
}`
