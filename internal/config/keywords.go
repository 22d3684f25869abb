package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Keywords holds the heuristic keyword sets used for routing and
// calculation-type detection. Categories are tuned as data.
type Keywords struct {
	Table      []string `yaml:"table"`
	Math       []string `yaml:"math"`
	Difference []string `yaml:"difference"`
	Ratio      []string `yaml:"ratio"`
	Percentage []string `yaml:"percentage"`
}

func DefaultKeywords() Keywords {
	return Keywords{
		Table: []string{
			"yoy", "year-over-year", "fiscal year", "fy", "2022", "2023", "2024",
			"segment", "total", "revenue", "expense", "debt", "equity",
			"compared to", "versus", "vs", "%",
		},
		Math: []string{
			"calculate", "compute", "difference", "ratio", "percentage",
			"change", "growth", "increase", "decrease",
		},
		Difference: []string{"change", "difference", "increase", "decrease"},
		Ratio:      []string{"ratio", "compared to", "per"},
		Percentage: []string{"percentage", "%", "percent", "yoy"},
	}
}

// LoadKeywords returns the defaults overlaid with any category present in
// the YAML file at path. An empty path returns the defaults.
func LoadKeywords(path string) (Keywords, error) {
	kw := DefaultKeywords()
	if path == "" {
		return kw, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Keywords{}, fmt.Errorf("read keywords file: %w", err)
	}
	var override Keywords
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return Keywords{}, fmt.Errorf("parse keywords file: %w", err)
	}
	if len(override.Table) > 0 {
		kw.Table = override.Table
	}
	if len(override.Math) > 0 {
		kw.Math = override.Math
	}
	if len(override.Difference) > 0 {
		kw.Difference = override.Difference
	}
	if len(override.Ratio) > 0 {
		kw.Ratio = override.Ratio
	}
	if len(override.Percentage) > 0 {
		kw.Percentage = override.Percentage
	}
	return kw, nil
}
