package usecase

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultGroundingMaxChars bounds the book context injected ahead of a
	// question.
	DefaultGroundingMaxChars = 10000

	truncatedMarker = "[truncated]"
	notedReply      = "Noted."
	previewRunes    = 80
)

func definePrompt(term string) string {
	return "Provide a one sentence definition for: " + term
}

func factPrompt(question string) string {
	return "Answer briefly (2 sentences max): " + question
}

func noteCleanupPrompt(note string) string {
	return "Please correct punctuation and make very light edits for clarity while keeping the original words and order as much as possible. Return only the corrected text.\n\n" + note
}

func bookPrompt(title string, grounding string, question string) string {
	return fmt.Sprintf(
		"You are answering a question about %s. Use the detailed book information below to provide accurate, specific answers. If the question isn't directly about the book content, answer normally.\n\n"+
			"BOOK CONTEXT FOR %s:\n%s\n\n"+
			"USER QUESTION: %s\n\n"+
			"Please provide a helpful answer using the book context when relevant. Keep responses concise (1-2 sentences for simple questions, more detail for complex questions).",
		title, strings.ToUpper(title), grounding, question,
	)
}

// truncateGrounding cuts text to at most limit runes, marker included. The cut
// lands on a paragraph break when one is reasonably close, then on a sentence
// end, then on whitespace, so words are never split.
func truncateGrounding(text string, limit int) (string, bool) {
	text = strings.TrimSpace(text)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, false
	}

	suffix := "\n\n" + truncatedMarker
	budget := limit - utf8.RuneCountInString(suffix)
	if budget <= 0 {
		return truncatedMarker, true
	}

	cut := text[:runeOffset(text, budget)]
	floor := len(cut) / 2
	paragraph, sentence := strings.LastIndex(cut, "\n\n"), lastSentenceEnd(cut)
	switch {
	case paragraph > floor:
		cut = cut[:paragraph]
	case sentence > floor:
		cut = cut[:sentence]
	case !boundaryAt(text, len(cut)):
		// A partial token is dropped, even when it is the whole window.
		cut = cut[:max(0, strings.LastIndexFunc(cut, unicode.IsSpace))]
	}
	if cut = strings.TrimSpace(cut); cut == "" {
		return truncatedMarker, true
	}
	return cut + suffix, true
}

// runeOffset returns the byte offset of the n-th rune in s.
func runeOffset(s string, n int) int {
	for i := range s {
		if n == 0 {
			return i
		}
		n--
	}
	return len(s)
}

// lastSentenceEnd returns the byte offset just past the last sentence
// terminator in s that is followed by whitespace, or -1.
func lastSentenceEnd(s string) int {
	for i := len(s) - 2; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			if s[i+1] == ' ' || s[i+1] == '\n' {
				return i + 1
			}
		}
	}
	return -1
}

func boundaryAt(s string, offset int) bool {
	if offset >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[offset:])
	return unicode.IsSpace(r)
}

func preview(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return text[:runeOffset(text, previewRunes)]
}
