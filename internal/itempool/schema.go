package itempool

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// poolFileSchemaURL identifies the pool file schema inside the compiler.
const poolFileSchemaURL = "schema://aiq/item-pool.json"

// PoolFileSchema is the JSON schema of a pool file. Item parameters are typed
// but not required here: an item missing "a" or "b" is refused individually
// by the loader instead of failing the whole file.
var PoolFileSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"version": map[string]any{
			"type":        "string",
			"pattern":     `^v[0-9]+(\.[0-9]+){0,2}$`,
			"description": "Calibration version, semver with a leading v",
		},
		"sessions_served": map[string]any{
			"type":    "integer",
			"minimum": 0,
		},
		"items": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":       map[string]any{"type": "string", "minLength": 1},
					"category": map[string]any{"type": "string", "minLength": 1},
					"a":        map[string]any{"type": "number"},
					"b":        map[string]any{"type": "number"},
					"c":        map[string]any{"type": "number"},
					"calibration": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"sample_size": map[string]any{"type": "integer", "minimum": 0},
							"se_a":        map[string]any{"type": "number", "minimum": 0},
							"se_b":        map[string]any{"type": "number", "minimum": 0},
							"se_c":        map[string]any{"type": "number", "minimum": 0},
						},
						"additionalProperties": false,
					},
					"exposure_count": map[string]any{"type": "integer", "minimum": 0},
				},
				"required":             []any{"id", "category"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []any{"version", "items"},
	"additionalProperties": false,
}

var (
	compiledOnce   sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

// poolSchema compiles PoolFileSchema on first use.
func poolSchema() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		// The compiler wants a plain decoded JSON value, so round-trip the map.
		raw, err := json.Marshal(PoolFileSchema)
		if err != nil {
			compileErr = fmt.Errorf("marshal schema definition: %w", err)
			return
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			compileErr = fmt.Errorf("parse schema definition: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(poolFileSchemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(poolFileSchemaURL)
	})
	return compiledSchema, compileErr
}

// ValidateDocument checks raw pool file JSON against PoolFileSchema.
func ValidateDocument(raw []byte) error {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	schema, err := poolSchema()
	if err != nil {
		return fmt.Errorf("compile pool schema: %w", err)
	}
	if err := schema.Validate(parsed); err != nil {
		return fmt.Errorf("pool file schema validation failed: %w", err)
	}
	return nil
}
