package classification

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"triage_worker/core/domain"

	"gopkg.in/yaml.v3"
)

//go:embed worker_rules.yaml
var defaultCatalogYAML []byte

// =============================================================================
// Rule Catalogue
// =============================================================================

// RuleCatalog holds the keyword and pattern evidence for each category.
// It never carries rule order; see priorityOrder.
type RuleCatalog struct {
	Version int                    `yaml:"version"`
	Rules   map[string]CatalogRule `yaml:"rules"`
}

// CatalogRule is the evidence definition for one category.
type CatalogRule struct {
	Keywords []string         `yaml:"keywords"`
	Patterns []CatalogPattern `yaml:"patterns"`
}

// CatalogPattern is a named regular expression.
type CatalogPattern struct {
	Name  string `yaml:"name"`
	Regex string `yaml:"regex"`
}

// DefaultRuleCatalog returns the catalogue embedded in the binary.
func DefaultRuleCatalog() (*RuleCatalog, error) {
	return ParseRuleCatalog(defaultCatalogYAML)
}

// LoadRuleCatalog reads a catalogue file. An empty path yields the default.
func LoadRuleCatalog(path string) (*RuleCatalog, error) {
	if path == "" {
		return DefaultRuleCatalog()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule catalogue: %w", err)
	}
	return ParseRuleCatalog(data)
}

// ParseRuleCatalog decodes and validates a YAML catalogue.
func ParseRuleCatalog(data []byte) (*RuleCatalog, error) {
	var catalog RuleCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse rule catalogue: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// Validate checks that every category has evidence and every name is known.
func (c *RuleCatalog) Validate() error {
	for name := range c.Rules {
		if _, err := domain.ParseCategory(name); err != nil {
			return fmt.Errorf("rule catalogue: %w", err)
		}
	}

	for _, category := range domain.Categories() {
		def, ok := c.Rules[category.String()]
		if !ok {
			return fmt.Errorf("rule catalogue: missing rule for %s", category)
		}
		if len(def.Keywords) == 0 && len(def.Patterns) == 0 {
			return fmt.Errorf("rule catalogue: rule for %s has no keywords or patterns", category)
		}
		for _, kw := range def.Keywords {
			if strings.TrimSpace(strings.TrimSuffix(kw, "*")) == "" {
				return fmt.Errorf("rule catalogue: empty keyword in %s", category)
			}
		}
		for _, p := range def.Patterns {
			if p.Name == "" {
				return fmt.Errorf("rule catalogue: unnamed pattern in %s", category)
			}
			if _, err := regexp.Compile(p.Regex); err != nil {
				return fmt.Errorf("rule catalogue: pattern %s in %s: %w", p.Name, category, err)
			}
		}
	}
	return nil
}

// ruleFor returns the evidence definition for a category.
func (c *RuleCatalog) ruleFor(category domain.Category) CatalogRule {
	return c.Rules[category.String()]
}
