package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
)

type taxonomyFile struct {
	DefaultID  int               `yaml:"default_id"`
	Categories []domain.Category `yaml:"categories"`
}

// LoadTaxonomy returns the built-in taxonomy when path is empty, otherwise
// the categories defined in the YAML file at path.
func LoadTaxonomy(path string) (domain.Taxonomy, error) {
	if strings.TrimSpace(path) == "" {
		return domain.DefaultTaxonomy(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Taxonomy{}, fmt.Errorf("read taxonomy file: %w", err)
	}
	return ParseTaxonomy(raw)
}

func ParseTaxonomy(raw []byte) (domain.Taxonomy, error) {
	var file taxonomyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return domain.Taxonomy{}, fmt.Errorf("parse taxonomy yaml: %w", err)
	}
	if len(file.Categories) == 0 {
		return domain.Taxonomy{}, fmt.Errorf("taxonomy file defines no categories")
	}
	taxonomy, err := domain.NewTaxonomy(file.Categories, file.DefaultID)
	if err != nil {
		return domain.Taxonomy{}, fmt.Errorf("taxonomy file: %w", err)
	}
	return taxonomy, nil
}
