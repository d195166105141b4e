package pricing

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/procedures.yaml
var defaultProceduresYAML []byte

// Procedure describes a CPT code
type Procedure struct {
	Code            string `yaml:"code" json:"code"`
	Description     string `yaml:"description" json:"description"`
	Category        string `yaml:"category" json:"category"`
	LongDescription string `yaml:"long_description" json:"longDescription,omitempty"`
}

// Catalog is a read-only set of known CPT codes
type Catalog struct {
	order []string
	codes map[string]Procedure
}

// NewCatalog builds a Catalog preserving the order of procedures
func NewCatalog(procedures []Procedure) *Catalog {
	c := &Catalog{codes: make(map[string]Procedure, len(procedures))}
	for _, p := range procedures {
		if _, dup := c.codes[p.Code]; !dup {
			c.order = append(c.order, p.Code)
		}
		c.codes[p.Code] = p
	}
	return c
}

// DefaultCatalog returns the embedded list of common CPT codes
func DefaultCatalog() *Catalog {
	var procedures []Procedure
	if err := yaml.Unmarshal(defaultProceduresYAML, &procedures); err != nil {
		panic(fmt.Sprintf("embedded procedures dataset: %v", err))
	}
	return NewCatalog(procedures)
}

// Get returns the procedure for a CPT code
func (c *Catalog) Get(code string) (Procedure, bool) {
	p, ok := c.codes[strings.TrimSpace(code)]
	return p, ok
}

// Describe returns the short description of a code, or a generic label
func (c *Catalog) Describe(code string) string {
	if p, ok := c.Get(code); ok {
		return p.Description
	}
	return fmt.Sprintf("CPT Code %s", code)
}

// Search returns procedures whose code, description or category contain term (case-insensitive)
func (c *Catalog) Search(term string) []Procedure {
	term = strings.ToLower(strings.TrimSpace(term))
	results := make([]Procedure, 0)
	for _, code := range c.order {
		p := c.codes[code]
		if strings.Contains(strings.ToLower(p.Code), term) ||
			strings.Contains(strings.ToLower(p.Description), term) ||
			strings.Contains(strings.ToLower(p.Category), term) {
			results = append(results, p)
		}
	}
	return results
}
