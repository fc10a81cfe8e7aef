package taxonomy

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/ppiankov/shadowscore/internal/model"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Entry is one category of the closed taxonomy
type Entry struct {
	ID          model.Category `yaml:"id" json:"id"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Aliases     []string       `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Taxonomy is a versioned, read-only list of category identifiers with
// the phrases that map free text onto them
type Taxonomy struct {
	Version    string  `yaml:"version" json:"version"`
	Categories []Entry `yaml:"categories" json:"categories"`

	byName  map[string]model.Category
	phrases []phrase // longest first, then declaration order
}

type phrase struct {
	tokens   []string
	category model.Category
	order    int
}

var (
	defaultOnce sync.Once
	defaultTax  *Taxonomy
)

// Default returns the embedded taxonomy
func Default() *Taxonomy {
	defaultOnce.Do(func() {
		t, err := Parse(defaultYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded taxonomy: %v", err))
		}
		defaultTax = t
	})
	return defaultTax
}

// Load reads a taxonomy from a YAML file
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("taxonomy %s: %w", path, err)
	}
	return t, nil
}

// LoadOrDefault loads path, or returns the embedded taxonomy when path is empty
func LoadOrDefault(path string) (*Taxonomy, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Parse decodes and indexes a YAML taxonomy document
func Parse(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := t.index(); err != nil {
		return nil, err
	}
	return &t, nil
}

// New builds a taxonomy from entries in declaration order
func New(version string, entries []Entry) (*Taxonomy, error) {
	t := &Taxonomy{Version: version, Categories: entries}
	if err := t.index(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Taxonomy) index() error {
	if len(t.Categories) == 0 {
		return fmt.Errorf("taxonomy has no categories")
	}

	t.byName = make(map[string]model.Category)
	t.phrases = t.phrases[:0]
	seen := make(map[model.Category]bool)

	for order, entry := range t.Categories {
		id := model.Category(strings.ToLower(strings.TrimSpace(string(entry.ID))))
		if id == "" {
			return fmt.Errorf("category %d has an empty id", order)
		}
		if id == model.CategoryUnknown {
			return fmt.Errorf("category id %q is reserved", id)
		}
		if seen[id] {
			return fmt.Errorf("duplicate category id %q", id)
		}
		seen[id] = true
		t.Categories[order].ID = id
		// Ids always resolve to themselves, even if an earlier alias used the same words
		t.byName[nameKey(string(id))] = id

		names := append([]string{string(id)}, entry.Aliases...)
		for _, name := range names {
			tokens := Tokenize(name)
			if len(tokens) == 0 {
				continue
			}
			// First declaration of an alias wins
			if _, ok := t.byName[nameKey(name)]; !ok {
				t.byName[nameKey(name)] = id
			}
			t.phrases = append(t.phrases, phrase{tokens: tokens, category: id, order: order})
		}
	}

	sort.SliceStable(t.phrases, func(i, j int) bool {
		if len(t.phrases[i].tokens) != len(t.phrases[j].tokens) {
			return len(t.phrases[i].tokens) > len(t.phrases[j].tokens)
		}
		return t.phrases[i].order < t.phrases[j].order
	})

	return nil
}

// Lookup resolves a category id or alias given verbatim (e.g. a structured hint)
func (t *Taxonomy) Lookup(name string) (model.Category, bool) {
	c, ok := t.byName[nameKey(name)]
	return c, ok
}

// Contains reports whether c is a declared category
func (t *Taxonomy) Contains(c model.Category) bool {
	for _, entry := range t.Categories {
		if entry.ID == c {
			return true
		}
	}
	return false
}

// IDs returns the category identifiers in declaration order
func (t *Taxonomy) IDs() []model.Category {
	ids := make([]model.Category, len(t.Categories))
	for i, entry := range t.Categories {
		ids[i] = entry.ID
	}
	return ids
}

// Match finds the category whose phrase occurs in tokens, preferring the
// longest phrase and then the earliest declared category
func (t *Taxonomy) Match(tokens []string) (model.Category, string, bool) {
	for _, p := range t.phrases {
		if containsRun(tokens, p.tokens) {
			return p.category, strings.Join(p.tokens, " "), true
		}
	}
	return model.CategoryUnknown, "", false
}

// Classify tokenizes text and matches it against the taxonomy
func (t *Taxonomy) Classify(text string) model.Category {
	c, _, _ := t.Match(Tokenize(text))
	return c
}

// Tokenize lower-cases s and splits it into alphanumeric runs
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func nameKey(s string) string {
	return strings.Join(Tokenize(s), " ")
}

// containsRun reports whether needle appears contiguously in haystack
func containsRun(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return true
	}
	return false
}
