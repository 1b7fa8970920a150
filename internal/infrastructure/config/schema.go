package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const configSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "trello": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "key": {"type": "string"},
        "token": {"type": "string"},
        "boards": {"type": "array", "items": {"type": "string", "minLength": 1}},
        "base_url": {"type": "string"}
      }
    },
    "lists": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "backlog": {"$ref": "#/definitions/names"},
        "doing": {"$ref": "#/definitions/names"},
        "waiting": {"$ref": "#/definitions/names"},
        "done": {"$ref": "#/definitions/names"},
        "ignored": {"$ref": "#/definitions/names"}
      }
    },
    "aging_days": {"type": "integer", "minimum": 1},
    "max_action_cards": {"type": "integer", "minimum": 0},
    "throttle_ms": {"type": "integer", "minimum": 0},
    "request_timeout": {"type": "string"},
    "concurrency": {"type": "integer", "minimum": 0},
    "top_aged": {"type": "integer", "minimum": 0},
    "top_assignees": {"type": "integer", "minimum": 0},
    "data_dir": {"type": "string"},
    "dashboard": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "addr": {"type": "string"},
        "refresh_interval": {"type": "string"}
      }
    },
    "webhook": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "secret": {"type": "string"},
        "callback_url": {"type": "string"}
      }
    },
    "notify": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["url"],
        "properties": {
          "name": {"type": "string"},
          "url": {"type": "string", "minLength": 1},
          "secret": {"type": "string"},
          "events": {"type": "array", "items": {"type": "string", "enum": ["snapshot.published", "health.degraded", "health.recovered"]}},
          "min_health": {"type": "integer", "minimum": 0, "maximum": 100},
          "max_retries": {"type": "integer", "minimum": 0},
          "retry_delay": {"type": "string"},
          "disabled": {"type": "boolean"}
        }
      }
    },
    "log": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"type": "string", "enum": ["debug", "info", "warn", "error"]}
      }
    }
  },
  "definitions": {
    "names": {"type": "array", "items": {"type": "string"}}
  }
}`

var configSchemaLoader = gojsonschema.NewStringLoader(configSchemaJSON)

// validateSchema checks the raw YAML document shape before decoding.
func validateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if doc == nil {
		return nil
	}

	result, err := gojsonschema.Validate(configSchemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to validate config: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
