package pricing

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// RestOfStateLocality is the catch-all locality code every state falls back to.
	RestOfStateLocality = "99"
	metroLocality       = "01"
)

//go:embed data/localities.yaml
var defaultLocalitiesYAML []byte

// Locality is a single Medicare pricing locality within a state
type Locality struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
}

// Directory maps state codes to their Medicare localities
type Directory struct {
	states map[string][]Locality
}

// NewDirectory builds a Directory from a state -> localities table.
// The slices are copied so later changes by the caller are not observed.
func NewDirectory(states map[string][]Locality) *Directory {
	d := &Directory{states: make(map[string][]Locality, len(states))}
	for state, localities := range states {
		d.states[strings.ToUpper(strings.TrimSpace(state))] = append([]Locality(nil), localities...)
	}
	return d
}

// DefaultDirectory returns the Directory built from the embedded locality dataset
func DefaultDirectory() *Directory {
	d, err := parseDirectory(defaultLocalitiesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded localities dataset: %v", err))
	}
	return d
}

// LoadDirectory reads a locality dataset in the embedded YAML layout from path
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading localities file: %w", err)
	}
	return parseDirectory(data)
}

func parseDirectory(data []byte) (*Directory, error) {
	var states map[string][]Locality
	if err := yaml.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("unmarshaling localities: %w", err)
	}
	return NewDirectory(states), nil
}

// Resolve picks the locality code for a provider's state and returns it with its display name.
//
// The hint (city or zip) is not geocoded: any non-empty hint selects the
// state's "01" locality when one exists. This is a known approximation that
// favours the largest metro area until a real zip-to-locality mapping exists.
func (d *Directory) Resolve(state, hint string) (string, string) {
	localities, ok := d.lookup(state)
	if !ok {
		return RestOfStateLocality, unknownLocalityName(state)
	}

	code := RestOfStateLocality
	if strings.TrimSpace(hint) != "" && hasCode(localities, metroLocality) {
		code = metroLocality
	}
	return code, d.DisplayName(state, code)
}

// DisplayName returns the human-readable name of a locality
func (d *Directory) DisplayName(state, code string) string {
	localities, ok := d.lookup(state)
	if !ok {
		return unknownLocalityName(state)
	}
	if name, ok := nameOf(localities, code); ok {
		return name
	}
	if name, ok := nameOf(localities, RestOfStateLocality); ok {
		return name
	}
	return "Unknown"
}

// Localities returns the ordered localities of a state
func (d *Directory) Localities(state string) ([]Locality, bool) {
	localities, ok := d.lookup(state)
	if !ok {
		return nil, false
	}
	return append([]Locality(nil), localities...), true
}

func (d *Directory) lookup(state string) ([]Locality, bool) {
	localities, ok := d.states[strings.ToUpper(strings.TrimSpace(state))]
	return localities, ok
}

func unknownLocalityName(state string) string {
	return fmt.Sprintf("%s - Unknown Locality", state)
}

func hasCode(localities []Locality, code string) bool {
	_, ok := nameOf(localities, code)
	return ok
}

func nameOf(localities []Locality, code string) (string, bool) {
	for _, l := range localities {
		if l.Code == code {
			return l.Name, true
		}
	}
	return "", false
}
