package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jwebster45206/party-engine/pkg/lore"
	"golang.org/x/text/cases"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <lore.yaml>\n", os.Args[0])
		os.Exit(1)
	}

	filename := os.Args[1]
	validator := &LoreValidator{out: os.Stdout}

	if err := validator.validateFile(filename); err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Lore file is valid!")
}

type LoreValidator struct {
	out    io.Writer
	errors []string
}

func (v *LoreValidator) validateFile(filename string) error {
	fmt.Fprintf(v.out, "Validating %s...\n", filename)

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml", ".json":
	default:
		return fmt.Errorf("lore file must have a .yaml, .yml or .json extension: %s", filepath.Base(filename))
	}

	store, err := lore.LoadFile(filename)
	if err != nil {
		return fmt.Errorf("file %s failed to load: %w", filename, err)
	}

	v.errors = nil
	v.validateStore(store)

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}
	return nil
}

// validateStore reports each category and flags empty descriptions and
// keywords that match the same text as an earlier one.
func (v *LoreValidator) validateStore(store *lore.Store) {
	if store.Len() == 0 {
		v.addError("lore file has no entries")
		return
	}

	fold := cases.Fold()
	seen := make(map[string]string)
	for _, c := range store.Categories() {
		fmt.Fprintf(v.out, "  %s: %d entries\n", c.Name, len(c.Entries))
		if strings.TrimSpace(c.Name) == "" {
			v.addError("category with an empty name")
		}
		for _, e := range c.Entries {
			where := c.Name + "/" + e.Keyword
			if strings.TrimSpace(e.Description) == "" {
				v.addError(fmt.Sprintf("%s has an empty description", where))
			}
			key := strings.TrimSpace(fold.String(e.Keyword))
			if first, ok := seen[key]; ok {
				v.addError(fmt.Sprintf("%s duplicates keyword %s", where, first))
				continue
			}
			seen[key] = where
		}
	}
}

func (v *LoreValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}
