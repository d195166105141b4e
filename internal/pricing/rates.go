package pricing

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FeeScheduleURL documents where Medicare reference rates are published
const FeeScheduleURL = "https://www.cms.gov/medicare/payment/fee-schedules/physician"

// ErrRateUnavailable is returned by a RateSource that could not answer
var ErrRateUnavailable = errors.New("reference rate unavailable")

//go:embed data/rates.yaml
var defaultRatesYAML []byte

// ReferenceRate is a Medicare payment benchmark for one CPT code in one locality
type ReferenceRate struct {
	CPTCode         string  `json:"cptCode"`
	Description     string  `json:"description"`
	FacilityRate    float64 `json:"facilityRate,omitempty"`
	NonFacilityRate float64 `json:"nonFacilityRate,omitempty"`
	Locality        string  `json:"locality"`
	LocalityName    string  `json:"localityName"`
	Year            int     `json:"year"`
	EffectiveDate   string  `json:"effectiveDate"`
	SourceURL       string  `json:"sourceUrl,omitempty"`
}

// EffectiveRate prefers the non-facility rate and falls back to the facility rate
func (r *ReferenceRate) EffectiveRate() float64 {
	if r == nil {
		return 0
	}
	if r.NonFacilityRate > 0 {
		return r.NonFacilityRate
	}
	if r.FacilityRate > 0 {
		return r.FacilityRate
	}
	return 0
}

// RateSource answers reference rate queries.
// A nil rate with a nil error means the code is not known to this source;
// Lookup then consults its fallback table.
type RateSource interface {
	GetRate(ctx context.Context, code, locality, state string) (*ReferenceRate, error)
}

// HTTPRateSource queries a reference rate service over HTTP
type HTTPRateSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRateSource creates a rate source for the service at baseURL
func NewHTTPRateSource(baseURL string, timeout time.Duration) *HTTPRateSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRateSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// GetRate fetches a rate. Any transport problem or non-200 response is an ErrRateUnavailable.
func (h *HTTPRateSource) GetRate(ctx context.Context, code, locality, state string) (*ReferenceRate, error) {
	q := url.Values{}
	q.Set("cptCode", code)
	q.Set("locality", locality)
	q.Set("state", state)

	var rate ReferenceRate
	if err := getJSON(ctx, h.client, h.baseURL+"/api/rates/medicare?"+q.Encode(), &rate); err != nil {
		return nil, err
	}
	return &rate, nil
}

func getJSON(ctx context.Context, client *http.Client, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrRateUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrRateUnavailable, err)
	}
	return nil
}

// TableRate is a fallback rate pair
type TableRate struct {
	Facility    float64 `yaml:"facility"`
	NonFacility float64 `yaml:"non_facility"`
}

// RateTable is an immutable, locality-insensitive fallback rate table keyed by CPT code
type RateTable struct {
	rates map[string]TableRate
}

// NewRateTable copies rates into a new table
func NewRateTable(rates map[string]TableRate) *RateTable {
	t := &RateTable{rates: make(map[string]TableRate, len(rates))}
	for code, r := range rates {
		t.rates[strings.TrimSpace(code)] = r
	}
	return t
}

// DefaultRateTable returns the embedded fallback table
func DefaultRateTable() *RateTable {
	t, err := parseRateTable(defaultRatesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded rates dataset: %v", err))
	}
	return t
}

// LoadRateTable reads a fallback table in the embedded YAML layout from path
func LoadRateTable(path string) (*RateTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rates file: %w", err)
	}
	return parseRateTable(data)
}

func parseRateTable(data []byte) (*RateTable, error) {
	var rates map[string]TableRate
	if err := yaml.Unmarshal(data, &rates); err != nil {
		return nil, fmt.Errorf("unmarshaling rates: %w", err)
	}
	return NewRateTable(rates), nil
}

// Get returns the table entry for code
func (t *RateTable) Get(code string) (TableRate, bool) {
	r, ok := t.rates[code]
	return r, ok
}

// Len returns the number of codes in the table
func (t *RateTable) Len() int {
	return len(t.rates)
}

// Lookup resolves reference rates from a primary source, degrading to a fallback table
type Lookup struct {
	primary   RateSource
	table     *RateTable
	catalog   *Catalog
	directory *Directory
	now       func() time.Time
}

// NewLookup creates a Lookup. primary may be nil, in which case only the table is consulted.
func NewLookup(primary RateSource, table *RateTable, catalog *Catalog, directory *Directory) *Lookup {
	return &Lookup{
		primary:   primary,
		table:     table,
		catalog:   catalog,
		directory: directory,
		now:       time.Now,
	}
}

// GetRate returns the reference rate for code, or nil when neither the primary source nor the table knows it.
// Primary source failures are never returned.
func (l *Lookup) GetRate(ctx context.Context, code, locality, state string) *ReferenceRate {
	if l.primary != nil {
		rate, err := l.primary.GetRate(ctx, code, locality, state)
		switch {
		case err != nil:
			slog.Debug("Reference rate service unavailable, using fallback table",
				"cpt_code", code,
				"locality", locality,
				"state", state,
				"error", err,
			)
		case rate == nil:
			slog.Debug("Reference rate service has no rate, using fallback table",
				"cpt_code", code,
				"locality", locality,
				"state", state,
			)
		default:
			return rate
		}
	}
	return l.fromTable(code, locality, state)
}

func (l *Lookup) fromTable(code, locality, state string) *ReferenceRate {
	entry, ok := l.table.Get(code)
	if !ok {
		return nil
	}
	now := l.now()
	return &ReferenceRate{
		CPTCode:         code,
		Description:     l.catalog.Describe(code),
		FacilityRate:    entry.Facility,
		NonFacilityRate: entry.NonFacility,
		Locality:        locality,
		LocalityName:    l.directory.DisplayName(state, locality),
		Year:            now.Year(),
		EffectiveDate:   now.Format("2006-01-02"),
		SourceURL:       FeeScheduleURL,
	}
}
