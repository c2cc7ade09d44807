// Package extract defines the OCR collaborator contract and the strict typed
// boundary that turns its loosely-shaped output into claim data the rest of
// the pipeline can trust.
package extract

import (
	"context"
	"encoding/json"
)

// Engine is the external OCR/field-extraction collaborator. It is a black
// box: the core only requires text blocks, a fields document, and confidence
// scores. Any error is treated as a transient extraction failure.
type Engine interface {
	Extract(ctx context.Context, file []byte, hint string) (RawExtraction, error)
}

// RawExtraction is the engine's output before the typed boundary. Fields is
// deliberately untyped here; Boundary.ToClaim is the single place where it
// becomes structured data.
type RawExtraction struct {
	TextBlocks      []TextBlock        `json:"text_blocks,omitempty"`
	Fields          json.RawMessage    `json:"fields"`
	Confidence      float64            `json:"confidence"`
	FieldConfidence map[string]float64 `json:"field_confidence,omitempty"`
}

type TextBlock struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// ExtractionError wraps any engine failure. The extraction worker translates
// it into a terminal-but-retryable job failure.
type ExtractionError struct {
	Cause error
}

func (e *ExtractionError) Error() string { return "extraction failed: " + e.Cause.Error() }
func (e *ExtractionError) Unwrap() error { return e.Cause }
