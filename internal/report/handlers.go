package report

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/zombor/bill-check/internal/analysis"
	"github.com/zombor/bill-check/internal/pricing"
	"github.com/zombor/bill-check/internal/scanning"
)

const (
	maxUploadSize   = int64(50 << 20) // high-resolution phone photos
	maxBillJSONSize = int64(1 << 20)
	tooLargeMessage = "File is too large. Maximum size is 50MB. Please compress or resize your image."
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeServiceError maps service errors onto HTTP status codes
func writeServiceError(w http.ResponseWriter, err error) {
	var invalid *analysis.InvalidBillDataError
	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    invalid.Error(),
			"problems": invalid.Problems,
		})
	case errors.Is(err, analysis.ErrInvalidBillData):
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, scanning.ErrUnsupportedImage):
		writeError(w, "Unsupported file. Please upload a JPEG, PNG, GIF, HEIC or PDF bill.", http.StatusBadRequest)
	case errors.Is(err, scanning.ErrMalformedResponse):
		writeError(w, "Failed to parse bill data. Please try scanning again.", http.StatusBadGateway)
	case errors.Is(err, scanning.ErrExtractionFailed):
		writeError(w, "Failed to analyze bill", http.StatusBadGateway)
	case errors.Is(err, ErrScanNotFound):
		writeError(w, "Report not found", http.StatusNotFound)
	case errors.Is(err, fs.ErrNotExist):
		writeError(w, "Image not found", http.StatusNotFound)
	default:
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// tierGlyph is the traffic light shown next to each line item
func tierGlyph(t pricing.Tier) string {
	switch t {
	case pricing.TierOverpriced:
		return "🔴"
	case pricing.TierElevated:
		return "🟡"
	case pricing.TierFair:
		return "🟢"
	}
	return ""
}

type itemView struct {
	analysis.ItemAnalysis
	Flag string `json:"flag"`
}

type reportView struct {
	ID            string              `json:"id"`
	Source        Source              `json:"source"`
	CreatedAt     time.Time           `json:"createdAt"`
	HasImage      bool                `json:"hasImage"`
	ExtractedData analysis.BillRecord `json:"extractedData"`
	Procedures    []itemView          `json:"procedures"`
	Summary       analysis.Summary    `json:"summary"`
	GeneratedAt   time.Time           `json:"generatedAt"`
}

func newReportView(scan *Scan, items []analysis.ItemAnalysis) reportView {
	view := reportView{
		ID:         scan.ID,
		Source:     scan.Source,
		CreatedAt:  scan.CreatedAt,
		HasImage:   scan.Filename != "",
		Procedures: make([]itemView, 0, len(items)),
	}
	if scan.Report != nil {
		view.ExtractedData = scan.Report.Bill
		view.Summary = scan.Report.Summary
		view.GeneratedAt = scan.Report.GeneratedAt
	}
	for _, item := range items {
		view.Procedures = append(view.Procedures, itemView{
			ItemAnalysis: item,
			Flag:         tierGlyph(item.Comparison.Tier),
		})
	}
	return view
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// contentTypeFor falls back to the file extension when the part has no Content-Type
func contentTypeFor(declared, filename string) string {
	if declared = strings.ToLower(strings.TrimSpace(declared)); declared != "" && declared != "application/octet-stream" {
		return declared
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleScanBill accepts a multipart upload in the "image" (or "file") field
func (s *Server) handleScanBill(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, tooLargeMessage, http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		f, header, err = r.FormFile("file")
	}
	if err != nil {
		writeError(w, "No image file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		writeError(w, "No image file provided", http.StatusBadRequest)
		return
	}

	contentType := contentTypeFor(header.Header.Get("Content-Type"), header.Filename)

	scan, err := s.service.ScanBill(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error scanning bill", "filename", header.Filename, "error", err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newReportView(scan, scan.Report.Items))
}

// handleAnalyzeBill analyzes a BillRecord posted as JSON
func (s *Server) handleAnalyzeBill(w http.ResponseWriter, r *http.Request) {
	var bill analysis.BillRecord
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBillJSONSize)).Decode(&bill); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	bill.Provider.State = strings.ToUpper(strings.TrimSpace(bill.Provider.State))

	scan, err := s.service.AnalyzeBill(r.Context(), &bill)
	if err != nil {
		slog.Warn("Error analyzing bill", "error", err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newReportView(scan, scan.Report.Items))
}

// handleListReports returns the scan history
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListHistory()
	if err != nil {
		slog.Error("Error listing reports", "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// handleGetReport returns a report, optionally re-ordered by severity or filtered to one tier
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	scan, err := s.service.GetScan(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var items []analysis.ItemAnalysis
	if scan.Report != nil {
		items = scan.Report.Items
	}

	if flag := r.URL.Query().Get("flag"); flag != "" {
		tier, err := pricing.ParseTier(flag)
		if err != nil {
			writeError(w, "flag must be one of fair, elevated, overpriced", http.StatusBadRequest)
			return
		}
		items = analysis.FilterByTier(items, tier)
	}

	switch r.URL.Query().Get("sort") {
	case "", "bill":
	case "severity":
		items = analysis.SortForDisplay(items)
	default:
		writeError(w, "sort must be bill or severity", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, newReportView(scan, items))
}

// handleGetReportImage returns the uploaded bill image
func (s *Server) handleGetReportImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetScanImage(r.PathValue("id"))
	if err != nil {
		if !errors.Is(err, ErrScanNotFound) && !errors.Is(err, fs.ErrNotExist) {
			slog.Error("Error reading report image", "id", r.PathValue("id"), "error", err)
		}
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write(data); err != nil {
		slog.Warn("Error writing report image", "id", r.PathValue("id"), "error", err)
	}
}

// handleDeleteReport deletes a report and its image
func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteScan(r.PathValue("id")); err != nil {
		if !errors.Is(err, ErrScanNotFound) {
			slog.Error("Error deleting report", "error", err)
		}
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMedicareRate serves reference rates in the shape HTTPRateSource consumes
func (s *Server) handleMedicareRate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, locality, state := q.Get("cptCode"), q.Get("locality"), strings.ToUpper(q.Get("state"))
	if code == "" || locality == "" || state == "" {
		writeError(w, "Missing required parameters: cptCode, locality, state", http.StatusBadRequest)
		return
	}

	rate := s.reference.Rates.GetRate(r.Context(), code, locality, state)
	if rate == nil {
		writeError(w, "Rate not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

type percentilesView struct {
	CPTCode      string   `json:"cptCode"`
	ZipCode      string   `json:"zipCode"`
	Percentile50 *float64 `json:"percentile50"`
	Percentile80 *float64 `json:"percentile80"`
	Percentile95 *float64 `json:"percentile95"`
	Note         string   `json:"note,omitempty"`
}

// handlePrivateRange serves private insurance percentiles when a range source is configured
func (s *Server) handlePrivateRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, zip := q.Get("cptCode"), q.Get("zipCode")
	if code == "" || zip == "" {
		writeError(w, "Missing required parameters: cptCode, zipCode", http.StatusBadRequest)
		return
	}

	view := percentilesView{CPTCode: code, ZipCode: zip}
	if s.reference.Ranges == nil {
		view.Note = "Private insurance rates not available"
		writeJSON(w, http.StatusOK, view)
		return
	}

	rng, err := s.reference.Ranges.GetRange(r.Context(), code, zip)
	if err != nil {
		slog.Warn("Private insurance range unavailable", "cpt_code", code, "zip", zip, "error", err)
		writeError(w, "Failed to fetch private insurance rates", http.StatusBadGateway)
		return
	}
	if rng != nil {
		view.Percentile50, view.Percentile80 = &rng.Low, &rng.High
	}
	writeJSON(w, http.StatusOK, view)
}

// handleLocalities lists the Medicare localities of a state
func (s *Server) handleLocalities(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		writeError(w, "Missing required parameter: state", http.StatusBadRequest)
		return
	}

	localities, ok := s.reference.Localities.Localities(state)
	if !ok {
		writeError(w, "State not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, localities)
}

// handleProcedures searches the CPT catalog
func (s *Server) handleProcedures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reference.Procedures.Search(r.URL.Query().Get("q")))
}
