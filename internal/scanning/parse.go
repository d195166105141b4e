package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/bill-check/internal/analysis"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// flexNumber accepts 12.5, "12.50", "$1,234.50" and null
type flexNumber struct {
	Value float64
	Set   bool
}

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = flexNumber{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
		if s == "" {
			*n = flexNumber{}
			return nil
		}
		negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
		s = strings.Trim(s, "()")
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q", s)
		}
		if negative {
			v = -v
		}
		*n = flexNumber{Value: v, Set: true}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = flexNumber{Value: v, Set: true}
	return nil
}

func (n flexNumber) ptr() *float64 {
	if !n.Set {
		return nil
	}
	v := n.Value
	return &v
}

// flexString accepts strings, bare numbers (CPT codes are often read as numbers) and null
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*s = ""
	case len(b) > 0 && b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(strings.TrimSpace(v))
	default:
		var v json.Number
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v.String())
	}
	return nil
}

type billJSON struct {
	Provider struct {
		Name    flexString `json:"name"`
		Address flexString `json:"address"`
		City    flexString `json:"city"`
		State   flexString `json:"state"`
		Zip     flexString `json:"zip"`
		NPI     flexString `json:"npi"`
	} `json:"provider"`
	Patient struct {
		Name          flexString `json:"name"`
		AccountNumber flexString `json:"accountNumber"`
	} `json:"patient"`
	DateOfService         flexString     `json:"dateOfService"`
	Procedures            []lineItemJSON `json:"procedures"`
	TotalCharges          flexNumber     `json:"totalCharges"`
	InsurancePayment      flexNumber     `json:"insurancePayment"`
	Adjustments           flexNumber     `json:"adjustments"`
	PatientResponsibility flexNumber     `json:"patientResponsibility"`
}

type lineItemJSON struct {
	Description  flexString `json:"description"`
	CPTCode      flexString `json:"cptCode"`
	ICD10Code    flexString `json:"icd10Code"`
	Quantity     flexNumber `json:"quantity"`
	ChargeAmount flexNumber `json:"chargeAmount"`
	Units        flexNumber `json:"units"`
}

// extractJSONObject cuts the outermost JSON object out of a model reply
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	start := strings.Index(text, "{")
	if start == -1 {
		return "", fmt.Errorf("%w: no JSON object found in response", ErrMalformedResponse)
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return "", fmt.Errorf("%w: unterminated JSON object in response", ErrMalformedResponse)
	}
	return text[start : end+1], nil
}

// parseBillJSON turns a model reply into a BillRecord.
// Field-level validation is left to analysis.Validate.
func parseBillJSON(text string) (*analysis.BillRecord, error) {
	object, err := extractJSONObject(text)
	if err != nil {
		return nil, err
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(object), &keys); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling json: %v", ErrMalformedResponse, err)
	}
	for _, required := range []string{"provider", "procedures"} {
		if raw, ok := keys[required]; !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return nil, fmt.Errorf("%w: incomplete bill data, missing %q", ErrMalformedResponse, required)
		}
	}

	var data billJSON
	if err := json.Unmarshal([]byte(object), &data); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling bill: %v", ErrMalformedResponse, err)
	}

	bill := &analysis.BillRecord{
		Provider: analysis.Provider{
			Name:    string(data.Provider.Name),
			Address: string(data.Provider.Address),
			City:    string(data.Provider.City),
			State:   strings.ToUpper(string(data.Provider.State)),
			Zip:     string(data.Provider.Zip),
			NPI:     string(data.Provider.NPI),
		},
		Patient: analysis.Patient{
			Name:          string(data.Patient.Name),
			AccountNumber: string(data.Patient.AccountNumber),
		},
		DateOfService:         normalizeDate(string(data.DateOfService)),
		Procedures:            make([]analysis.LineItem, 0, len(data.Procedures)),
		TotalCharges:          data.TotalCharges.Value,
		InsurancePayment:      data.InsurancePayment.ptr(),
		Adjustments:           data.Adjustments.ptr(),
		PatientResponsibility: data.PatientResponsibility.ptr(),
	}

	for _, p := range data.Procedures {
		bill.Procedures = append(bill.Procedures, analysis.LineItem{
			Description:  string(p.Description),
			CPTCode:      strings.ToUpper(string(p.CPTCode)),
			ICD10Code:    strings.ToUpper(string(p.ICD10Code)),
			Quantity:     orOne(p.Quantity),
			ChargeAmount: p.ChargeAmount.Value,
			Units:        orOne(p.Units),
		})
	}

	return bill, nil
}

func orOne(n flexNumber) float64 {
	if !n.Set || n.Value <= 0 {
		return 1
	}
	return n.Value
}

// normalizeDate rewrites known layouts as YYYY-MM-DD and leaves anything else untouched
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return s
}
