// Package ocr defines the text-recognition boundary for voucher images.
// The capture flow only needs plain text back; which engine produces it
// (a managed OCR API, a local model, a test stub) is an integration detail
// hidden behind TextExtractor.
package ocr

import (
	"context"
	"errors"
)

// ErrUnreadable indicates the engine processed the image but could not
// recover usable text from it. Callers should ask the submitter for a
// clearer picture rather than retrying.
var ErrUnreadable = errors.New("image text not readable")

// TextExtractor recognizes text in a stored voucher image.
type TextExtractor interface {
	// ExtractText returns the recognized text of the image at blobRef along
	// with the engine's mean confidence in [0, 100]. Implementations return
	// ErrUnreadable when recognition succeeds technically but yields nothing
	// usable.
	ExtractText(ctx context.Context, blobRef string) (text string, confidence float64, err error)
}

// Static is a TextExtractor that always returns the same text. It serves
// deployments where an upstream gateway already ran OCR and forwarded the
// text alongside the image, and it keeps tests independent of any engine.
type Static struct {
	Text       string
	Confidence float64
}

// ExtractText implements TextExtractor.
func (s Static) ExtractText(context.Context, string) (string, float64, error) {
	if s.Text == "" {
		return "", 0, ErrUnreadable
	}
	return s.Text, s.Confidence, nil
}
