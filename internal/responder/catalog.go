// Package responder picks canned replies for a transcript by category.
package responder

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Category is a named bucket of reply templates
type Category struct {
	Name      string   `yaml:"name"`
	Pattern   string   `yaml:"pattern"`
	Templates []string `yaml:"templates"`

	matcher *regexp.Regexp
}

// Catalog is the ordered, read-only set of categories
type Catalog struct {
	Default    string     `yaml:"default"`
	Categories []Category `yaml:"categories"`

	byName map[string]*Category
}

// DefaultCatalog returns the catalog shipped with the binary
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads a catalog from path, or the built-in one when path is empty
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %q: %w", path, err)
	}

	catalog, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %q: %w", path, err)
	}
	return catalog, nil
}

// ParseCatalog decodes and validates a YAML catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("invalid catalog YAML: %w", err)
	}
	if err := catalog.compile(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

func (c *Catalog) compile() error {
	if c.Default == "" {
		return errors.New("default category is required")
	}

	c.byName = make(map[string]*Category, len(c.Categories))
	for i := range c.Categories {
		category := &c.Categories[i]
		if category.Name == "" {
			return fmt.Errorf("category %d: name is required", i+1)
		}
		if _, exists := c.byName[category.Name]; exists {
			return fmt.Errorf("category %q defined twice", category.Name)
		}
		if len(category.Templates) == 0 {
			return fmt.Errorf("category %q has no templates", category.Name)
		}

		if category.Pattern != "" {
			matcher, err := regexp.Compile("(?i)" + category.Pattern)
			if err != nil {
				return fmt.Errorf("category %q: invalid pattern: %w", category.Name, err)
			}
			category.matcher = matcher
		} else if category.Name != c.Default {
			return fmt.Errorf("category %q: pattern is required", category.Name)
		}

		c.byName[category.Name] = category
	}

	if _, ok := c.byName[c.Default]; !ok {
		return fmt.Errorf("default category %q is not defined", c.Default)
	}
	return nil
}

// Classify returns the first category whose pattern matches text, or the default
func (c *Catalog) Classify(text string) string {
	for i := range c.Categories {
		category := &c.Categories[i]
		if category.matcher == nil || category.Name == c.Default {
			continue
		}
		if category.matcher.MatchString(text) {
			return category.Name
		}
	}
	return c.Default
}

// Templates returns the templates of a category
func (c *Catalog) Templates(name string) []string {
	category, ok := c.byName[name]
	if !ok {
		return nil
	}
	return category.Templates
}
