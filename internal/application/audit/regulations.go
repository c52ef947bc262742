package audit

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed regulations.yaml
var regulationsYAML []byte

type Regulation struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	Highlight   bool   `yaml:"highlight" json:"highlight,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
}

type RegulationCategory struct {
	Title string       `yaml:"title" json:"title"`
	Items []Regulation `yaml:"items" json:"items"`
}

var loadRegulations = sync.OnceValues(func() ([]RegulationCategory, error) {
	var out []RegulationCategory
	if err := yaml.Unmarshal(regulationsYAML, &out); err != nil {
		return nil, fmt.Errorf("parse regulations catalogue: %w", err)
	}
	return out, nil
})

// Regulations returns the reference catalogue of rules the auditor applies.
func Regulations() ([]RegulationCategory, error) {
	return loadRegulations()
}
