package scanning

import (
	"context"
	"errors"

	"github.com/zombor/bill-check/internal/analysis"
)

var (
	// ErrExtractionFailed is returned when the extraction backend could not be reached or gave no answer
	ErrExtractionFailed = errors.New("bill extraction failed")
	// ErrMalformedResponse is returned when the backend answered with something that is not a bill
	ErrMalformedResponse = errors.New("malformed extraction response")
	// ErrUnsupportedImage is returned when an upload cannot be decoded as a bill image or PDF
	ErrUnsupportedImage = errors.New("unsupported bill image")
)

// Extractor reads a photographed or scanned bill into a BillRecord
type Extractor interface {
	// ExtractBill analyzes a bill image/PDF and extracts its structured content
	ExtractBill(ctx context.Context, imageData []byte, contentType string) (*analysis.BillRecord, error)
	// Close closes the extractor and releases resources
	Close() error
}
