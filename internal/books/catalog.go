// Package books holds the catalog of known audiobooks: their titles, the
// keywords that mark a question as being about them, and the built-in
// summary used as grounding text when the user has not supplied their own.
package books

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

//go:embed default.yaml
var defaultCatalog []byte

// Book is one catalog entry.
type Book struct {
	ID       string   `yaml:"id"`
	Title    string   `yaml:"title"`
	Keywords []string `yaml:"keywords"`
	Summary  string   `yaml:"summary"`
}

// Catalog is an immutable set of books keyed by id.
type Catalog struct {
	books map[string]Book
	order []string
}

type catalogFile struct {
	Books []Book `yaml:"books"`
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("books: embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog file. An empty path returns the embedded catalog.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog. Keywords are lowercased and trimmed.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{books: make(map[string]Book, len(file.Books))}
	for _, b := range file.Books {
		b.ID = strings.TrimSpace(b.ID)
		if b.ID == "" {
			return nil, fmt.Errorf("parse catalog: book without id")
		}
		if _, dup := c.books[b.ID]; dup {
			return nil, fmt.Errorf("parse catalog: duplicate book id %q", b.ID)
		}
		if b.Title == "" {
			b.Title = b.ID
		}
		keywords := b.Keywords[:0]
		for _, kw := range b.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		b.Keywords = keywords
		c.books[b.ID] = b
		c.order = append(c.order, b.ID)
	}
	return c, nil
}

// Get returns the book with the given id.
func (c *Catalog) Get(id string) (Book, bool) {
	b, ok := c.books[id]
	return b, ok
}

// List returns the books in file order.
func (c *Catalog) List() []Book {
	out := make([]Book, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.books[id])
	}
	return out
}

// Mentions reports whether text contains one of the book's keywords.
func (b Book) Mentions(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range b.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
