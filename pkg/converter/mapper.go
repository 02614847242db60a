// Package converter turns parsed Tricount entries into import records.
package converter

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CategoryMapping maps a cleaned Tricount category to a Firefly III category.
type CategoryMapping struct {
	Tricount string `yaml:"tricount"`
	Firefly  string `yaml:"firefly"`
}

// MappingConfig represents the complete category mapping configuration.
type MappingConfig struct {
	DefaultCurrency string            `yaml:"default_currency"`
	Categories      []CategoryMapping `yaml:"categories"`
}

// Mapper maps Tricount category names to Firefly III category names.
type Mapper struct {
	config     MappingConfig
	categories map[string]string
}

// NewMapper creates a Mapper from a YAML configuration file.
// A missing file yields an identity mapping.
func NewMapper(configPath string) (*Mapper, error) {
	if configPath == "" {
		return newMapper(MappingConfig{}), nil
	}

	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return newMapper(MappingConfig{}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config MappingConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, m := range config.Categories {
		if strings.TrimSpace(m.Tricount) == "" {
			return nil, fmt.Errorf("category mapping %d has no tricount name", i)
		}
	}

	return newMapper(config), nil
}

func newMapper(config MappingConfig) *Mapper {
	m := &Mapper{
		config:     config,
		categories: make(map[string]string, len(config.Categories)),
	}
	for _, mapping := range config.Categories {
		m.categories[strings.ToLower(strings.TrimSpace(mapping.Tricount))] = strings.TrimSpace(mapping.Firefly)
	}
	return m
}

// FireflyCategory returns the Firefly III category for a Tricount category.
// Unmapped names are returned unchanged. A mapping to "" drops the category.
func (m *Mapper) FireflyCategory(name string) string {
	if mapped, ok := m.categories[strings.ToLower(strings.TrimSpace(name))]; ok {
		return mapped
	}
	return name
}

// DefaultCurrency returns the configured fallback currency, if any.
func (m *Mapper) DefaultCurrency() string {
	return m.config.DefaultCurrency
}

// HasMapping checks if an explicit mapping exists for a category.
func (m *Mapper) HasMapping(name string) bool {
	_, ok := m.categories[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// GetAllMappings returns a copy of every explicit mapping.
func (m *Mapper) GetAllMappings() map[string]string {
	result := make(map[string]string, len(m.categories))
	for k, v := range m.categories {
		result[k] = v
	}
	return result
}
