package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/bill-check/internal/analysis"
	"github.com/zombor/bill-check/internal/scanning"
)

// IDGenerator generates unique IDs for scans
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// BillAnalyzer turns an extracted bill into a fairness report
type BillAnalyzer interface {
	Analyze(ctx context.Context, bill *analysis.BillRecord) (*analysis.Report, error)
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemTimeSource struct{}

func (systemTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles scan operations
type Service struct {
	db          DB
	extractor   scanning.Extractor
	analyzer    BillAnalyzer
	storage     Storage
	metrics     *Metrics
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with UUID scan IDs and the system clock.
// metrics may be nil.
func NewService(db DB, extractor scanning.Extractor, analyzer BillAnalyzer, storage Storage, metrics *Metrics) *Service {
	return NewServiceWithDeps(db, extractor, analyzer, storage, metrics, uuidGenerator{}, systemTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor scanning.Extractor, analyzer BillAnalyzer, storage Storage, metrics *Metrics, idGen IDGenerator, timeSrc TimeSource) *Service {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Service{
		db:          db,
		extractor:   extractor,
		analyzer:    analyzer,
		storage:     storage,
		metrics:     metrics,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips special characters and shortens long phone-generated names
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(repeatedSpaces.ReplaceAllString(base, " "))

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "bill"
	}

	return base + ext
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, analysis.ErrInvalidBillData):
		return OutcomeInvalidBill
	case errors.Is(err, scanning.ErrUnsupportedImage):
		return OutcomeUnsupportedImage
	case errors.Is(err, scanning.ErrExtractionFailed), errors.Is(err, scanning.ErrMalformedResponse):
		return OutcomeExtractionFailed
	default:
		return OutcomeError
	}
}

// ScanBill stores an uploaded bill image, extracts and analyzes it, and saves the result.
// The stored image is removed again if any step fails.
func (s *Service) ScanBill(ctx context.Context, filename string, data []byte, contentType string) (scan *Scan, err error) {
	started := time.Now()
	defer func() {
		var report *analysis.Report
		if scan != nil {
			report = scan.Report
		}
		s.metrics.observe(SourceImage, outcomeOf(err), started, report)
	}()

	if s.extractor == nil {
		return nil, fmt.Errorf("%w: no extractor configured", scanning.ErrExtractionFailed)
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	discard := func() {
		if err := s.storage.Delete(savedPath); err != nil {
			slog.Warn("Failed to remove stored bill image", "filename", savedPath, "error", err)
		}
	}

	bill, err := s.extractor.ExtractBill(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to extract bill",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		discard()
		return nil, fmt.Errorf("extracting bill: %w", err)
	}

	report, err := s.analyzer.Analyze(ctx, bill)
	if err != nil {
		discard()
		return nil, fmt.Errorf("analyzing bill: %w", err)
	}

	scan = &Scan{
		ID:          id,
		Source:      SourceImage,
		Filename:    savedPath,
		ContentType: contentType,
		Report:      report,
		CreatedAt:   now,
	}
	if err := s.db.SaveScan(scan); err != nil {
		discard()
		return nil, fmt.Errorf("saving scan to database: %w", err)
	}

	slog.Info("Bill scanned",
		"id", id,
		"provider", report.Bill.Provider.Name,
		"items", report.Summary.TotalItems,
		"overpriced", report.Summary.OverpricedCount,
	)
	return scan, nil
}

// AnalyzeBill analyzes an already structured bill and saves the result
func (s *Service) AnalyzeBill(ctx context.Context, bill *analysis.BillRecord) (scan *Scan, err error) {
	started := time.Now()
	defer func() {
		var report *analysis.Report
		if scan != nil {
			report = scan.Report
		}
		s.metrics.observe(SourceJSON, outcomeOf(err), started, report)
	}()

	report, err := s.analyzer.Analyze(ctx, bill)
	if err != nil {
		return nil, fmt.Errorf("analyzing bill: %w", err)
	}

	scan = &Scan{
		ID:        s.idGenerator.Generate(),
		Source:    SourceJSON,
		Report:    report,
		CreatedAt: s.timeSource.Now(),
	}
	if err := s.db.SaveScan(scan); err != nil {
		return nil, fmt.Errorf("saving scan to database: %w", err)
	}
	return scan, nil
}

// GetScan retrieves a scan by ID
func (s *Service) GetScan(id string) (*Scan, error) {
	scan, err := s.db.GetScan(id)
	if err != nil {
		return nil, fmt.Errorf("getting scan: %w", err)
	}
	return scan, nil
}

// ListHistory returns every scan as a history item, newest first
func (s *Service) ListHistory() ([]HistoryItem, error) {
	scans, err := s.db.ListScans()
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}

	sort.SliceStable(scans, func(i, j int) bool {
		return scans[i].CreatedAt.After(scans[j].CreatedAt)
	})

	items := make([]HistoryItem, 0, len(scans))
	for _, scan := range scans {
		items = append(items, scan.History())
	}
	return items, nil
}

// DeleteScan removes a scan and its image
func (s *Service) DeleteScan(id string) error {
	scan, err := s.db.GetScan(id)
	if err != nil {
		return fmt.Errorf("getting scan for deletion: %w", err)
	}

	if scan.Filename != "" {
		if err := s.storage.Delete(scan.Filename); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete file", "filename", scan.Filename, "error", err)
		}
	}

	if err := s.db.DeleteScan(id); err != nil {
		return fmt.Errorf("deleting scan from database: %w", err)
	}
	return nil
}

// GetScanImage retrieves the uploaded image for a scan
func (s *Service) GetScanImage(id string) ([]byte, string, error) {
	scan, err := s.db.GetScan(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting scan: %w", err)
	}
	if scan.Filename == "" {
		return nil, "", fmt.Errorf("%w: scan %s has no image", ErrScanNotFound, id)
	}

	data, err := s.storage.Get(scan.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting scan image: %w", err)
	}
	return data, scan.ContentType, nil
}
