// Package catalog holds the color palettes and design styles offered to users.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultYAML []byte

type Palette struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Colors      []string `yaml:"colors" json:"colors"`
}

type Style struct {
	ID              string   `yaml:"id" json:"id"`
	Name            string   `yaml:"name" json:"name"`
	Description     string   `yaml:"description" json:"description"`
	Materials       []string `yaml:"materials" json:"materials"`
	Characteristics string   `yaml:"characteristics" json:"characteristics"`
}

type Catalog struct {
	palettes []Palette
	styles   []Style
}

type document struct {
	Palettes []Palette `yaml:"palettes"`
	Styles   []Style   `yaml:"styles"`
}

// Parse decodes a catalog document and rejects duplicate or empty ids.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := map[string]bool{}
	for _, p := range doc.Palettes {
		if err := checkID("palette", p.ID, seen); err != nil {
			return nil, err
		}
		if len(p.Colors) == 0 {
			return nil, fmt.Errorf("palette %q has no colors", p.ID)
		}
	}
	seen = map[string]bool{}
	for _, s := range doc.Styles {
		if err := checkID("style", s.ID, seen); err != nil {
			return nil, err
		}
	}
	return &Catalog{palettes: doc.Palettes, styles: doc.Styles}, nil
}

func checkID(kind, id string, seen map[string]bool) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s with empty id", kind)
	}
	if seen[id] {
		return fmt.Errorf("duplicate %s id %q", kind, id)
	}
	seen[id] = true
	return nil
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Palettes() []Palette {
	return append([]Palette(nil), c.palettes...)
}

func (c *Catalog) Styles() []Style {
	return append([]Style(nil), c.styles...)
}

// Palette looks a palette up by id or case-insensitive name.
func (c *Catalog) Palette(key string) (Palette, bool) {
	for _, p := range c.palettes {
		if matches(p.ID, p.Name, key) {
			return p, true
		}
	}
	return Palette{}, false
}

// Style looks a style up by id or case-insensitive name.
func (c *Catalog) Style(key string) (Style, bool) {
	for _, s := range c.styles {
		if matches(s.ID, s.Name, key) {
			return s, true
		}
	}
	return Style{}, false
}

func matches(id, name, key string) bool {
	key = strings.TrimSpace(key)
	return key != "" && (strings.EqualFold(id, key) || strings.EqualFold(name, key))
}
