package config

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ConfigSchema is the JSON Schema for config file validation
const ConfigSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "server": {
      "type": "object",
      "properties": {
        "host": {
          "type": "string"
        },
        "port": {
          "type": "integer",
          "minimum": 1,
          "maximum": 65535
        }
      }
    },
    "provider": {
      "type": "object",
      "properties": {
        "name": {
          "type": "string",
          "enum": ["anthropic", "openai"]
        },
        "api_key": {
          "type": "string"
        },
        "model": {
          "type": "string",
          "minLength": 1
        },
        "temperature": {
          "type": "number",
          "minimum": 0,
          "maximum": 2
        },
        "max_tokens": {
          "type": "integer",
          "minimum": 1
        },
        "system_prompt": {
          "type": "string"
        }
      }
    },
    "store": {
      "type": "object",
      "properties": {
        "path": {
          "type": "string"
        }
      }
    },
    "chat": {
      "type": "object",
      "properties": {
        "stream_idle_timeout": {
          "type": "integer",
          "minimum": 1
        },
        "session_page_size": {
          "type": "integer",
          "minimum": 1
        }
      }
    },
    "retention": {
      "type": "object",
      "properties": {
        "enabled": {
          "type": "boolean"
        },
        "max_age_days": {
          "type": "integer",
          "minimum": 1
        },
        "schedule": {
          "type": "string"
        },
        "archive_dir": {
          "type": "string"
        }
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {
          "type": "string",
          "enum": ["trace", "debug", "info", "warn", "error"]
        },
        "file": {
          "type": "string"
        },
        "pretty": {
          "type": "boolean"
        }
      }
    },
    "data_dir": {
      "type": "string"
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(ConfigSchema)

// ValidateSchema validates raw config bytes against the config schema
func ValidateSchema(data []byte) error {
	documentLoader := gojsonschema.NewBytesLoader(data)
	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var errMsg string
		for i, err := range result.Errors() {
			if i > 0 {
				errMsg += "; "
			}
			errMsg += err.String()
		}
		return fmt.Errorf("schema validation errors: %s", errMsg)
	}

	return nil
}
