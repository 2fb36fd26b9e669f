// Package classifier wraps a gRPC document-type classifier model server.
package classifier

import (
	"context"
	"fmt"

	"github.com/WessleyAI/wessley-mvp/internal/domain"
	"github.com/WessleyAI/wessley-mvp/internal/errkind"
)

// EngineClient is the narrow gRPC-client-shaped interface the adapter
// drives; supplied by the caller the same way the OCR adapter takes its
// engine client.
type EngineClient interface {
	Classify(ctx context.Context, text string) (docType string, confidence float64, err error)
}

// MinConfidence is the floor below which a prediction is coerced to
// DocUnknown rather than trusted, matching the original pipeline's
// classification confidence threshold.
const MinConfidence = 0.60

// Adapter classifies a document's raw text into one of the closed
// doc_type set.
type Adapter struct {
	engine  EngineClient
	loaded  bool
}

// New constructs an Adapter. loaded mirrors whether the classifier model
// was actually loaded at startup — when false, Classify always returns
// NotAvailable without ever calling engine, matching a model server that
// is known to be unusable rather than transiently down.
func New(engine EngineClient, loaded bool) *Adapter {
	return &Adapter{engine: engine, loaded: loaded}
}

// Classify returns the predicted doc type and confidence, or a
// NotAvailable error if the model is not loaded.
func (a *Adapter) Classify(ctx context.Context, text string) (domain.DocType, float64, error) {
	if !a.loaded {
		return domain.DocUnknown, 0, errkind.New(errkind.NotAvailable, fmt.Errorf("classifier: model not loaded"))
	}

	dt, conf, err := a.engine.Classify(ctx, text)
	if err != nil {
		return domain.DocUnknown, 0, errkind.New(errkind.Transient, fmt.Errorf("classifier: classify: %w", err))
	}

	result := domain.DocType(dt)
	if !domain.ValidDocTypes[result] {
		result = domain.DocUnknown
	}
	if conf < MinConfidence {
		result = domain.DocUnknown
	}
	return result, conf, nil
}
