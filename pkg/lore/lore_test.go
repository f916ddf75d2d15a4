package lore

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

const sampleYAML = `
monsters:
  goblin: Small green raiders.
  dragon: Ancient and wary.
places:
  red door: A warm forge.
`

func TestLookup(t *testing.T) {
	store, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	tests := []struct {
		name     string
		message  string
		expected string
	}{
		{
			name:     "single keyword",
			message:  "there is a goblin here",
			expected: "[LORE MONSTERS: goblin]: Small green raiders.",
		},
		{
			name:     "no match",
			message:  "quiet room",
			expected: "",
		},
		{
			name:     "case insensitive",
			message:  "I open the RED DOOR",
			expected: "[LORE PLACES: red door]: A warm forge.",
		},
		{
			name:    "category then keyword order",
			message: "the red door hides a dragon and a goblin",
			expected: "[LORE MONSTERS: goblin]: Small green raiders.\n" +
				"[LORE MONSTERS: dragon]: Ancient and wary.\n" +
				"[LORE PLACES: red door]: A warm forge.",
		},
		{
			name:     "substring inside a longer word",
			message:  "hobgoblins everywhere",
			expected: "[LORE MONSTERS: goblin]: Small green raiders.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, store.Lookup(tt.message))
		})
	}
}

func TestParse_JSONKeepsDocumentOrder(t *testing.T) {
	store, err := Parse([]byte(`{"places": {"zeta": "last letter", "alpha": "first letter"}, "monsters": {"orc": "tusks"}}`))
	require.NoError(t, err)

	cats := store.Categories()
	require.Len(t, cats, 2)
	assert.Equal(t, "places", cats[0].Name)
	assert.Equal(t, "zeta", cats[0].Entries[0].Keyword)
	assert.Equal(t, "alpha", cats[0].Entries[1].Keyword)
	assert.Equal(t, 3, store.Len())
	require.Len(t, store.Entries("monsters"), 1)
	assert.Equal(t, "tusks", store.Entries("monsters")[0].Description)
	assert.Nil(t, store.Entries("items"))

	assert.Equal(t, "[LORE PLACES: zeta]: last letter\n[LORE PLACES: alpha]: first letter",
		store.Lookup("alpha and zeta"))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"root is a list", "- goblin\n- dragon\n"},
		{"category is a scalar", "monsters: goblin\n"},
		{"description is a list", "monsters:\n  goblin: [a, b]\n"},
		{"invalid syntax", "monsters: {goblin: \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	store, err := Parse([]byte(""))
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, "", store.Lookup("goblin"))
}

func TestLoad_DegradesToEmpty(t *testing.T) {
	dir := t.TempDir()

	missing := Load(filepath.Join(dir, "nope.yaml"), testLogger())
	assert.Equal(t, 0, missing.Len())
	assert.Equal(t, "", missing.Lookup("goblin"))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"monsters": [1, 2]}`), 0o644))
	assert.Equal(t, 0, Load(bad, testLogger()).Len())
}

func TestLoad_BundledLore(t *testing.T) {
	store := Load(filepath.Join("..", "..", "data", "lore.yaml"), testLogger())
	require.Greater(t, store.Len(), 0)

	got := store.Lookup("there is a goblin here")
	assert.True(t, strings.HasPrefix(got, "[LORE MONSTERS: goblin]: "))
}

func TestNilStoreLookup(t *testing.T) {
	var s *Store
	assert.Equal(t, "", s.Lookup("goblin"))
}
