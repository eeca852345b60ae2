// Package validator provides JSON schema validation for pipeline submissions.
package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator validates pipeline submissions against the embedded schema.
type Validator struct {
	pipelineSchema *jsonschema.Schema
}

// ValidationError represents a validation failure.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationResult holds the result of a validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// New creates a new validator with the embedded pipeline schema.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	if err := compiler.AddResource("pipeline.json", strings.NewReader(pipelineSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add pipeline schema: %w", err)
	}

	pipelineSchema, err := compiler.Compile("pipeline.json")
	if err != nil {
		return nil, fmt.Errorf("compile pipeline schema: %w", err)
	}

	return &Validator{pipelineSchema: pipelineSchema}, nil
}

// ValidatePipeline validates a decoded pipeline submission.
func (v *Validator) ValidatePipeline(pipeline map[string]interface{}) *ValidationResult {
	return v.validate(v.pipelineSchema, pipeline)
}

// ValidatePipelineJSON validates a JSON-encoded pipeline submission.
func (v *Validator) ValidatePipelineJSON(data []byte) *ValidationResult {
	var pipeline map[string]interface{}
	if err := json.Unmarshal(data, &pipeline); err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{Path: "$", Message: fmt.Sprintf("invalid JSON: %v", err)},
			},
		}
	}
	return v.ValidatePipeline(pipeline)
}

func (v *Validator) validate(schema *jsonschema.Schema, data interface{}) *ValidationResult {
	err := schema.Validate(data)
	if err == nil {
		return &ValidationResult{Valid: true}
	}

	result := &ValidationResult{Valid: false}
	if verr, ok := err.(*jsonschema.ValidationError); ok {
		result.Errors = extractErrors(verr)
	} else {
		result.Errors = []ValidationError{
			{Path: "$", Message: err.Error()},
		}
	}
	return result
}

// extractErrors recursively extracts validation errors.
func extractErrors(verr *jsonschema.ValidationError) []ValidationError {
	var errors []ValidationError

	if verr.Message != "" {
		errors = append(errors, ValidationError{
			Path:    verr.InstanceLocation,
			Message: verr.Message,
		})
	}
	for _, cause := range verr.Causes {
		errors = append(errors, extractErrors(cause)...)
	}
	return errors
}

const pipelineSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "pipeline.json",
  "title": "Pipeline Submission",
  "description": "Schema for orchestrator pipeline submissions",
  "type": "object",
  "required": ["jobs"],
  "properties": {
    "name": {
      "type": "string",
      "description": "Human-readable pipeline name"
    },
    "jobs": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/$defs/job"},
      "description": "Jobs in the pipeline graph"
    },
    "metadata": {
      "type": "object",
      "description": "Submission metadata"
    }
  },
  "$defs": {
    "job": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {
          "type": "string",
          "pattern": "^[a-zA-Z][a-zA-Z0-9._-]*$",
          "description": "Unique job identifier"
        },
        "type": {
          "type": "string",
          "description": "Handler type to invoke"
        },
        "depends_on": {
          "type": "array",
          "items": {"type": "string"},
          "description": "IDs of jobs this depends on"
        },
        "config": {
          "type": "object",
          "description": "Handler configuration"
        },
        "condition": {
          "type": "object",
          "properties": {
            "expression": {
              "type": "string",
              "maxLength": 4096,
              "description": "Expression over dependency outputs"
            }
          }
        },
        "retry": {
          "type": "object",
          "properties": {
            "max_retries": {
              "type": "integer",
              "minimum": 0,
              "maximum": 10
            },
            "base_delay": {"type": "integer", "minimum": 0},
            "backoff_multiplier": {"type": "number", "minimum": 1}
          }
        },
        "timeout": {
          "type": "integer",
          "minimum": 0,
          "description": "Timeout in nanoseconds"
        },
        "resources": {
          "type": "object",
          "properties": {
            "max_duration_ms": {"type": "integer", "minimum": 0},
            "max_memory_mb": {"type": "number", "minimum": 0},
            "max_cpu_percent": {"type": "number", "minimum": 0}
          }
        },
        "critical": {
          "type": "boolean",
          "description": "Checkpoint before this job's level dispatches"
        },
        "fan_out": {
          "type": "object",
          "required": ["template", "parameters"],
          "properties": {
            "template": {
              "type": "object",
              "required": ["type"],
              "properties": {
                "type": {"type": "string"},
                "name_pattern": {"type": "string"},
                "config": {"type": "object"}
              }
            },
            "parameters": {
              "type": "array",
              "minItems": 1,
              "items": {
                "type": "object",
                "required": ["name", "values"],
                "properties": {
                  "name": {"type": "string"},
                  "values": {"type": "array", "minItems": 1}
                }
              }
            }
          }
        },
        "fan_in": {
          "type": "object",
          "required": ["source", "aggregation"],
          "properties": {
            "source": {
              "type": "string",
              "description": "ID of the paired fan-out job"
            },
            "aggregation": {
              "type": "string",
              "enum": ["collect-all", "best-metric", "worst-metric", "average-metrics", "majority-vote", "custom"]
            },
            "metric_field": {"type": "string"},
            "reducer_name": {"type": "string"}
          }
        }
      }
    }
  }
}`
