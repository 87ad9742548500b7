package intent

import (
	"testing"

	"sidekick/internal/books"
	"sidekick/internal/domain"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	book, _ := books.Default().Get("treasure-island")

	tests := []struct {
		name    string
		in      string
		kind    domain.IntentKind
		payload string
		bookID  string
	}{
		{name: "note colon", in: "Note: buy more coffee", kind: domain.IntentNote, payload: "buy more coffee"},
		{name: "note dash", in: "note - chapter three matters", kind: domain.IntentNote, payload: "chapter three matters"},
		{name: "note empty", in: "NOTE", kind: domain.IntentNote, payload: ""},
		{name: "note no separator", in: "note the map is fake", kind: domain.IntentNote, payload: "the map is fake"},
		{name: "take a note", in: "take a note: silver lies", kind: domain.IntentNote, payload: "silver lies"},
		{name: "remember this", in: "Remember this - the apple barrel", kind: domain.IntentNote, payload: "the apple barrel"},
		{name: "remember", in: "remember to check the map", kind: domain.IntentNote, payload: "to check the map"},
		{name: "note beats book", in: "note: Long John Silver is sly", kind: domain.IntentNote, payload: "Long John Silver is sly"},
		{name: "define", in: "Define   galleon ", kind: domain.IntentDefine, payload: "galleon"},
		{name: "define beats book", in: "define black spot", kind: domain.IntentDefine, payload: "black spot"},
		{name: "fact", in: "What is a galleon?", kind: domain.IntentFact, payload: "What is a galleon?"},
		{name: "book", in: "Tell me about Long John Silver", kind: domain.IntentBook, payload: "Tell me about Long John Silver", bookID: "treasure-island"},
		{name: "book beats fact", in: "Who is Ben Gunn?", kind: domain.IntentBook, payload: "Who is Ben Gunn?", bookID: "treasure-island"},
		{name: "interrogative needs word boundary", in: "however it goes", kind: domain.IntentUnknown, payload: "however it goes"},
		{name: "unknown trimmed", in: "  tell me a joke  ", kind: domain.IntentUnknown, payload: "tell me a joke"},
		{name: "empty", in: "", kind: domain.IntentUnknown, payload: ""},
		{name: "whitespace", in: " \n\t ", kind: domain.IntentUnknown, payload: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.in, &book)
			if got.Kind != tc.kind || got.Payload != tc.payload || got.BookID != tc.bookID {
				t.Fatalf("Classify(%q) = %+v, want kind=%s payload=%q book=%q", tc.in, got, tc.kind, tc.payload, tc.bookID)
			}
		})
	}
}

func TestClassifyWithoutBook(t *testing.T) {
	t.Parallel()

	got := Classify("Tell me about Long John Silver", nil)
	if got.Kind != domain.IntentUnknown {
		t.Fatalf("expected unknown without a selected book, got %+v", got)
	}
}

func TestClassifierFollowsCurrentBook(t *testing.T) {
	t.Parallel()

	current := "treasure-island"
	c := NewClassifier(books.Default(), func() string { return current })

	if got := c.Classify("who is jim hawkins"); got.Kind != domain.IntentBook {
		t.Fatalf("expected book intent, got %+v", got)
	}
	current = "unknown-book"
	if got := c.Classify("who is jim hawkins"); got.Kind != domain.IntentFact {
		t.Fatalf("expected fact intent once book changes, got %+v", got)
	}
}
