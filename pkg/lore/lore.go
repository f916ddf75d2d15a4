// Package lore holds the static keyword knowledge base injected into
// game master prompts.
package lore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Entry is one keyword and the text the model is told about it.
type Entry struct {
	Keyword     string
	Description string

	folded string
}

type Category struct {
	Name    string
	Entries []Entry
}

// Store is a read-only category → keyword → description mapping.
// Categories and keywords keep their document order. A Store is safe
// for concurrent use.
type Store struct {
	categories []Category
}

// New builds a store from categories in the given order.
func New(categories []Category) *Store {
	fold := cases.Fold()
	out := make([]Category, 0, len(categories))
	for _, c := range categories {
		cat := Category{Name: c.Name, Entries: make([]Entry, 0, len(c.Entries))}
		for _, e := range c.Entries {
			e.folded = fold.String(e.Keyword)
			if strings.TrimSpace(e.folded) == "" {
				continue
			}
			cat.Entries = append(cat.Entries, e)
		}
		out = append(out, cat)
	}
	return &Store{categories: out}
}

// Empty returns a store with no entries.
func Empty() *Store {
	return &Store{}
}

// Load reads the lore file at path. A missing or malformed file yields
// an empty store; the problem is logged, never returned.
func Load(path string, logger *slog.Logger) *Store {
	s, err := LoadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("Lore file not found, continuing without lore", "path", path)
		} else {
			logger.Warn("Failed to load lore, continuing without lore", "path", path, "error", err)
		}
		return Empty()
	}
	logger.Info("Lore loaded", "path", path, "categories", len(s.categories), "entries", s.Len())
	return s
}

// LoadFile is the strict variant of Load.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lore file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML or JSON lore document.
func Parse(data []byte) (*Store, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse lore: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return Empty(), nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("lore root must be a mapping of categories (line %d)", root.Line)
	}

	categories := make([]Category, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		name, body := root.Content[i], root.Content[i+1]
		if body.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("category %q must be a mapping of keywords (line %d)", name.Value, body.Line)
		}
		cat := Category{Name: name.Value}
		for j := 0; j+1 < len(body.Content); j += 2 {
			kw, desc := body.Content[j], body.Content[j+1]
			if desc.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("keyword %q in %q must have a text description (line %d)", kw.Value, name.Value, desc.Line)
			}
			cat.Entries = append(cat.Entries, Entry{Keyword: kw.Value, Description: desc.Value})
		}
		categories = append(categories, cat)
	}
	return New(categories), nil
}

// Lookup returns every entry whose keyword occurs in message, one per
// line, annotated with category and keyword. No match returns "".
func (s *Store) Lookup(message string) string {
	if s == nil || len(s.categories) == 0 {
		return ""
	}
	folded := cases.Fold().String(message)
	upper := cases.Upper(language.Und)

	var lines []string
	for _, c := range s.categories {
		for _, e := range c.Entries {
			if strings.Contains(folded, e.folded) {
				lines = append(lines, fmt.Sprintf("[LORE %s: %s]: %s", upper.String(c.Name), e.Keyword, e.Description))
			}
		}
	}
	return strings.Join(lines, "\n")
}

// Len is the total number of entries.
func (s *Store) Len() int {
	n := 0
	for _, c := range s.categories {
		n += len(c.Entries)
	}
	return n
}

// Categories returns the categories in document order.
func (s *Store) Categories() []Category {
	return s.categories
}

// Entries returns the entries of the named category, or nil when there is
// no such category.
func (s *Store) Entries(category string) []Entry {
	for _, c := range s.categories {
		if c.Name == category {
			return c.Entries
		}
	}
	return nil
}
