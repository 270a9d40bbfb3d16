package pricing

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed data/locations.yaml
var defaultLocationsYAML []byte

// TaxRule describes the tax policy for one named office destination.
type TaxRule struct {
	Name    string  `yaml:"name" json:"name"`
	ZipCode string  `yaml:"zipCode" json:"zipCode"`
	Region  string  `yaml:"region" json:"region"`
	Country string  `yaml:"country" json:"country"`
	Rate    float64 `yaml:"rate" json:"rate"`
}

type ruleFile struct {
	Locations []TaxRule `yaml:"locations"`
}

// DefaultRules returns the built-in office tax table.
func DefaultRules() ([]TaxRule, error) {
	return LoadRules(bytes.NewReader(defaultLocationsYAML))
}

// LoadRules decodes a YAML tax table.
func LoadRules(r io.Reader) ([]TaxRule, error) {
	var file ruleFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("pricing: decode tax table: %w", err)
	}
	return file.Locations, nil
}

// LoadRulesFile reads a tax table from disk. An empty path selects the built-in table.
func LoadRulesFile(path string) ([]TaxRule, error) {
	if path == "" {
		return DefaultRules()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pricing: open tax table: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}
