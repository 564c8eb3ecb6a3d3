package quiz

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/mcdev12/globalquiz/go/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTheme      = "Programming"
	DefaultDifficulty = "Medium"
)

//go:embed assets/programming.yaml
var defaultCatalogYAML []byte

// Document is the on-disk YAML layout of a catalog
type Document struct {
	Theme      string            `yaml:"theme"`
	Difficulty string            `yaml:"difficulty"`
	Questions  []models.Question `yaml:"questions"`
}

// ParseYAML decodes and validates a catalog document
func ParseYAML(data []byte) (*Catalog, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	if doc.Theme == "" {
		doc.Theme = DefaultTheme
	}
	if doc.Difficulty == "" {
		doc.Difficulty = DefaultDifficulty
	}

	return NewCatalog(doc.Theme, doc.Difficulty, doc.Questions)
}

// LoadFile reads a catalog document from path
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseYAML(data)
}

// Default returns the built-in programming catalog
func Default() *Catalog {
	c, err := ParseYAML(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}
