package guard

import (
	"context"
	"testing"
)

var testSchema = []byte(`{
  "type": "object",
  "properties": {"name": {"type": "string"}},
  "required": ["name"]
}`)

type fakeLLM struct {
	outputs []string
	calls   int
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	out := f.outputs[f.calls]
	if f.calls < len(f.outputs)-1 {
		f.calls++
	}
	return out, nil
}

func TestDecode_ValidOnFirstTry(t *testing.T) {
	llm := &fakeLLM{outputs: []string{`{"name":"ok"}`}}
	obj, err := Decode(context.Background(), llm, "prompt", testSchema, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj["name"] != "ok" {
		t.Fatalf("got %v", obj)
	}
}

func TestDecode_RepairsAfterInvalidOutput(t *testing.T) {
	llm := &fakeLLM{outputs: []string{`not json`, `{"name":"fixed"}`}}
	obj, err := Decode(context.Background(), llm, "prompt", testSchema, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj["name"] != "fixed" {
		t.Fatalf("got %v", obj)
	}
}

func TestDecode_ExhaustsRetriesReturnsNil(t *testing.T) {
	llm := &fakeLLM{outputs: []string{`{}`, `{}`, `{}`}}
	obj, err := Decode(context.Background(), llm, "prompt", testSchema, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj != nil {
		t.Fatalf("expected nil result after exhausting retries, got %v", obj)
	}
}
