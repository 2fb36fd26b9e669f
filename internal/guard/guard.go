// Package guard implements the guarded JSON decoder: an LLM call whose
// output is validated against a JSON schema and repaired by re-prompting
// on failure, up to a fixed number of attempts.
package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/WessleyAI/wessley-mvp/pkg/fn"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Generator is the subset of the LLM adapter the guard needs.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// DefaultRepairAttempts is the number of repair round-trips attempted
// after the initial generation, matching the original pipeline's
// guarded_json(retries=2).
const DefaultRepairAttempts = 2

// Decode runs prompt through llm, validates the output against schema,
// and on failure re-prompts with a repair prompt embedding the bad
// output, the schema, and the validation error — up to attempts times.
// It returns a nil map (not an error) if every attempt still fails
// validation; the caller treats that as a degraded, not failed, stage.
func Decode(ctx context.Context, llm Generator, prompt string, schema []byte, attempts int) (map[string]any, error) {
	if attempts <= 0 {
		attempts = DefaultRepairAttempts
	}

	compiled, err := compileSchema(schema)
	if err != nil {
		return nil, fmt.Errorf("guard: compile schema: %w", err)
	}

	out, err := llm.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("guard: generate: %w", err)
	}

	obj, verr := validate(out, compiled)
	for i := 0; i < attempts; i++ {
		if verr == nil {
			return obj, nil
		}
		out, err = llm.Complete(ctx, fixPrompt(out, schema, verr))
		if err != nil {
			return nil, fmt.Errorf("guard: repair generate: %w", err)
		}
		obj, verr = validate(out, compiled)
	}
	if verr != nil {
		return nil, nil
	}
	return obj, nil
}

func compileSchema(schema []byte) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", bytes.NewReader(schema)); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}

func validate(js string, schema *jsonschema.Schema) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(js), &obj); err != nil {
		return nil, err
	}
	if err := schema.Validate(obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func fixPrompt(bad string, schema []byte, verr error) string {
	return fmt.Sprintf(
		"You fix JSON. Return ONLY valid JSON matching this schema.\nSchema:\n%s\nBroken JSON:\n%s\nError:\n%s\n",
		string(schema), bad, verr,
	)
}

// RetryOpts exposes fn's default retry policy for callers that want to
// wrap Decode itself in network-level retry, independent of the guard's
// own repair loop.
var RetryOpts = fn.DefaultRetry
