// Package intent maps a raw utterance to what the user wants done with it.
package intent

import (
	"regexp"
	"strings"

	"sidekick/internal/books"
	"sidekick/internal/domain"
)

var (
	notePattern   = regexp.MustCompile(`(?is)^(note|take a note|remember this|remember)\s*[:\-]?\s*(.*)$`)
	definePattern = regexp.MustCompile(`(?is)^define\s+(.+)$`)
	factPattern   = regexp.MustCompile(`(?is)^(who|what|when|where|why|how)\b.+`)
)

// Classify returns the intent of text. book is the currently selected book, or nil.
// First match wins: note, define, book, fact, unknown.
func Classify(text string, book *books.Book) domain.ParsedIntent {
	trimmed := strings.TrimSpace(text)

	if m := notePattern.FindStringSubmatch(trimmed); m != nil {
		return domain.ParsedIntent{Kind: domain.IntentNote, Payload: strings.TrimSpace(m[2])}
	}
	if m := definePattern.FindStringSubmatch(trimmed); m != nil {
		return domain.ParsedIntent{Kind: domain.IntentDefine, Payload: strings.TrimSpace(m[1])}
	}
	if book != nil && book.Mentions(text) {
		return domain.ParsedIntent{Kind: domain.IntentBook, Payload: text, BookID: book.ID}
	}
	if factPattern.MatchString(trimmed) {
		return domain.ParsedIntent{Kind: domain.IntentFact, Payload: text}
	}
	return domain.ParsedIntent{Kind: domain.IntentUnknown, Payload: trimmed}
}

// Classifier classifies against whichever book is currently selected.
type Classifier struct {
	catalog *books.Catalog
	current func() string
}

// NewClassifier returns a classifier that looks up the current book id on every call.
func NewClassifier(catalog *books.Catalog, current func() string) *Classifier {
	if catalog == nil {
		catalog = books.Default()
	}
	if current == nil {
		current = func() string { return "" }
	}
	return &Classifier{catalog: catalog, current: current}
}

// Classify implements the precedence described on the package-level Classify.
func (c *Classifier) Classify(text string) domain.ParsedIntent {
	if book, ok := c.catalog.Get(c.current()); ok {
		return Classify(text, &book)
	}
	return Classify(text, nil)
}
