// Package registry serves prompt templates and JSON schemas from embedded
// assets. Each asset is read on its first request and cached for the
// lifetime of the process; nothing is loaded at construction, so a
// missing asset surfaces as an error on the first request for it, not at
// startup.
package registry

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/WessleyAI/wessley-mvp/internal/domain"
)

//go:embed assets/prompts/*.txt assets/schemas/*.json
var assets embed.FS

// Task names for the general (non-extraction) prompts.
const (
	TaskClassify  = "classify"
	TaskSummarize = "summarize"
	TaskPII       = "pii"
)

// Registry serves prompt templates and JSON schemas by name, caching each
// asset after its first read.
type Registry struct {
	mu      sync.Mutex
	prompts map[string]string
	schemas map[domain.DocType][]byte
}

// New constructs a Registry. It does not eagerly load assets; the first
// caller of each asset pays the read cost, subsequent callers hit cache.
func New() *Registry {
	return &Registry{
		prompts: make(map[string]string),
		schemas: make(map[domain.DocType][]byte),
	}
}

// Prompt returns the named prompt template with its placeholder
// substituted for text. Both {TEXT} and {{TEXT}} are accepted so older
// single-brace templates keep working alongside newer double-brace ones.
func (r *Registry) Prompt(name, text string) (string, error) {
	tmpl, err := r.loadPrompt(name)
	if err != nil {
		return "", err
	}
	out := strings.ReplaceAll(tmpl, "{{TEXT}}", text)
	out = strings.ReplaceAll(out, "{TEXT}", text)
	return out, nil
}

// ExtractionPrompt returns the extraction prompt for the given doc type.
func (r *Registry) ExtractionPrompt(dt domain.DocType, text string) (string, error) {
	return r.Prompt("extract_"+string(dt), text)
}

// Schema returns the raw JSON schema bytes for the given doc type's
// extraction task.
func (r *Registry) Schema(dt domain.DocType) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.schemas[dt]; ok {
		return b, nil
	}
	b, err := assets.ReadFile(fmt.Sprintf("assets/schemas/%s_v1.json", dt))
	if err != nil {
		return nil, fmt.Errorf("registry: load schema for %s: %w", dt, err)
	}
	r.schemas[dt] = b
	return b, nil
}

func (r *Registry) loadPrompt(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.prompts[name]; ok {
		return s, nil
	}
	b, err := assets.ReadFile("assets/prompts/" + name + ".txt")
	if err != nil {
		return "", fmt.Errorf("registry: load prompt %s: %w", name, err)
	}
	s := string(b)
	r.prompts[name] = s
	return s, nil
}
