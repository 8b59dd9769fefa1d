package brain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/wytcherly/foreman/pkg/core"
)

// ErrMalformedDecision is returned when a model response is not a usable decision.
var ErrMalformedDecision = errors.New("malformed decision")

const decisionSchemaURL = "decision.schema.json"

// DecisionSchema is the JSON schema every model response must satisfy.
// Action values are not restricted; unknown actions pass through.
const DecisionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["summary", "target_found", "target_tag", "action"],
  "properties": {
    "summary": {"type": "string"},
    "target_found": {"type": "boolean"},
    "target_tag": {"type": "string"},
    "action": {
      "type": "object",
      "required": ["action"],
      "properties": {
        "action": {"type": "string"},
        "target": {"type": "string"},
        "direction": {"type": "string"},
        "speed": {"type": "string"}
      }
    }
  }
}`

var sanitizeReplacer = strings.NewReplacer(
	"}]]", "}]",
	"}}]", "}]",
	"```json", "",
	"```", "",
	":float}", ":0.0}",
	":float,", ":0.0,",
)

// Sanitize repairs the common defects of small-model JSON output: code
// fences, doubled closing brackets and literal type names in place of numbers.
func Sanitize(raw string) string {
	return strings.TrimSpace(sanitizeReplacer.Replace(raw))
}

// DecisionParser validates and decodes model responses.
type DecisionParser struct {
	schema *jsonschema.Schema
}

// NewDecisionParser compiles the decision schema.
func NewDecisionParser() (*DecisionParser, error) {
	s, err := jsonschema.CompileString(decisionSchemaURL, DecisionSchema)
	if err != nil {
		return nil, fmt.Errorf("compile decision schema: %w", err)
	}
	return &DecisionParser{schema: s}, nil
}

// Parse sanitizes raw, checks it against the schema and decodes it.
func (p *DecisionParser) Parse(raw string) (core.Decision, error) {
	clean := Sanitize(raw)

	var doc any
	if err := json.Unmarshal([]byte(clean), &doc); err != nil {
		return core.Decision{}, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}
	if err := p.schema.Validate(doc); err != nil {
		return core.Decision{}, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}

	var d core.Decision
	if err := json.Unmarshal([]byte(clean), &d); err != nil {
		return core.Decision{}, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}
	return d, nil
}
