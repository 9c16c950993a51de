// Package mcp exposes the routing/caching core as a small set of
// MCP-shaped tools: four retrieval-flavoured tools that delegate the
// actual retrieval to an injected collaborator while this core decides the
// model tier and consults the semantic cache, plus escalate_query, which
// is handled entirely locally.
package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ToolDefinition is the MCP-facing description of one tool, returned from
// a tools/list call.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

var supportedLanguages = []string{
	"go", "python", "javascript", "typescript", "java", "rust", "c", "cpp", "other",
}

// retrievalSchema builds the JSON schema shared by the four retrieval
// tools: they differ only in name and description, never in shape.
func retrievalSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Natural language or code query to search/explain/relate.",
				"minLength":   1,
			},
			"limit": map[string]any{
				"type":    "integer",
				"minimum": 1,
				"maximum": 50,
				"default": 10,
			},
			"language": map[string]any{
				"type": "string",
				"enum": toAnySlice(supportedLanguages),
			},
			"file_pattern": map[string]any{
				"type": "string",
			},
			"min_score": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": 1,
			},
		},
		"required":             []any{"query"},
		"additionalProperties": false,
	}
}

func escalateQuerySchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
			"model": map[string]any{
				"type":    "string",
				"enum":    []any{"medium", "large"},
				"default": "large",
			},
			"reason": map[string]any{
				"type": "string",
			},
			"duration": map[string]any{
				"type":    "string",
				"enum":    []any{"single", "session"},
				"default": "single",
			},
			"session_id": map[string]any{
				"type": "string",
			},
		},
		"required":             []any{"query"},
		"additionalProperties": false,
	}
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// validateArgs validates raw tool arguments against schema before they
// are unmarshalled into a typed struct, rather than relying on Go's zero
// values to paper over malformed input.
func validateArgs(schema map[string]any, args json.RawMessage) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	schemaLoader := gojsonschema.NewGoLoader(schema)
	docLoader := gojsonschema.NewBytesLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("mcp: schema validation failed: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("mcp: invalid arguments: %s", strings.Join(errs, "; "))
	}
	return nil
}
