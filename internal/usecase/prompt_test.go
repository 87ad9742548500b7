package usecase

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateGroundingLargeBlob(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	for sb.Len() < 50000 {
		sb.WriteString("Jim hides in the apple barrel and overhears the mutineers plotting. ")
		if sb.Len()%7 == 0 {
			sb.WriteString("\n\n")
		}
	}
	blob := sb.String()

	got, truncated := truncateGrounding(blob, DefaultGroundingMaxChars)
	if !truncated {
		t.Fatalf("expected truncation")
	}
	if n := utf8.RuneCountInString(got); n > DefaultGroundingMaxChars {
		t.Fatalf("truncated text has %d runes, limit %d", n, DefaultGroundingMaxChars)
	}
	if !strings.HasSuffix(got, truncatedMarker) {
		t.Fatalf("expected visible marker")
	}

	body := strings.TrimSuffix(got, "\n\n"+truncatedMarker)
	if !strings.HasPrefix(blob, body) {
		t.Fatalf("truncated body must be a prefix of the original")
	}
	if !strings.HasSuffix(body, ".") {
		t.Fatalf("expected cut on a sentence boundary, got ...%q", body[len(body)-20:])
	}
	if next := blob[len(body)]; next != ' ' && next != '\n' {
		t.Fatalf("cut split a word: next byte %q", next)
	}
	if len(body) < DefaultGroundingMaxChars/2 {
		t.Fatalf("cut discarded too much: %d bytes", len(body))
	}
}

func TestTruncateGroundingPrefersParagraph(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 60) + "\n\n" + strings.Repeat("b ", 40)
	got, truncated := truncateGrounding(text, 90)
	if !truncated || got != strings.Repeat("a", 60)+"\n\n"+truncatedMarker {
		t.Fatalf("unexpected cut %q", got)
	}
}

func TestTruncateGroundingFallsBackToWhitespace(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("word ", 100)
	got, truncated := truncateGrounding(text, 64)
	if !truncated || utf8.RuneCountInString(got) > 64 {
		t.Fatalf("unexpected cut %q", got)
	}
	body := strings.TrimSuffix(got, "\n\n"+truncatedMarker)
	for _, w := range strings.Fields(body) {
		if w != "word" {
			t.Fatalf("word was split: %q", w)
		}
	}
}

func TestTruncateGroundingDropsUnbrokenToken(t *testing.T) {
	t.Parallel()

	got, truncated := truncateGrounding(strings.Repeat("x", 50000), 10000)
	if !truncated || got != truncatedMarker {
		t.Fatalf("expected only the marker for a single oversized token, got %d runes", utf8.RuneCountInString(got))
	}

	got, _ = truncateGrounding("Ahoy "+strings.Repeat("y", 50000), 10000)
	if got != "Ahoy\n\n"+truncatedMarker {
		t.Fatalf("expected the partial token to be dropped, got %q", got[:min(len(got), 40)])
	}
}

func TestTruncateGroundingShortTextUntouched(t *testing.T) {
	t.Parallel()

	got, truncated := truncateGrounding("  short context  ", 100)
	if truncated || got != "short context" {
		t.Fatalf("unexpected %q, %v", got, truncated)
	}
}

func TestBookPrompt(t *testing.T) {
	t.Parallel()

	got := bookPrompt("Treasure Island", "Jim is the narrator.", "Who narrates?")
	for _, want := range []string{
		"You are answering a question about Treasure Island.",
		"BOOK CONTEXT FOR TREASURE ISLAND:\nJim is the narrator.",
		"USER QUESTION: Who narrates?",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}
}

func TestPreviewCountsRunes(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", 100)
	if got := preview(long); utf8.RuneCountInString(got) != previewRunes || !utf8.ValidString(got) {
		t.Fatalf("unexpected preview %q", got)
	}
	if got := preview(" short "); got != "short" {
		t.Fatalf("unexpected preview %q", got)
	}
}
