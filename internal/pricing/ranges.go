package pricing

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PriceRange is what private insurers typically pay for a code in an area
type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// RangeSource answers private insurance percentile queries
type RangeSource interface {
	GetRange(ctx context.Context, code, zip string) (*PriceRange, error)
}

// HTTPRangeSource queries a FAIR Health style percentile service over HTTP
type HTTPRangeSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRangeSource creates a range source for the service at baseURL
func NewHTTPRangeSource(baseURL string, timeout time.Duration) *HTTPRangeSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRangeSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type percentileResponse struct {
	Percentile50 *float64 `json:"percentile50"`
	Percentile80 *float64 `json:"percentile80"`
}

// GetRange returns the 50th-80th percentile band, or nil when the service has no data
func (h *HTTPRangeSource) GetRange(ctx context.Context, code, zip string) (*PriceRange, error) {
	q := url.Values{}
	q.Set("cptCode", code)
	q.Set("zipCode", zip)

	var resp percentileResponse
	if err := getJSON(ctx, h.client, h.baseURL+"/api/rates/fair-health?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Percentile80 == nil || *resp.Percentile80 <= 0 {
		return nil, nil
	}

	r := &PriceRange{High: *resp.Percentile80}
	if resp.Percentile50 != nil {
		r.Low = *resp.Percentile50
	}
	return r, nil
}
