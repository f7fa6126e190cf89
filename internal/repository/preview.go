package repository

import (
	"strings"
	"unicode"
)

// GeneratePreviewText generates a list-view preview from body text
// (truncated at a word boundary where possible, ellipsis appended).
func GeneratePreviewText(bodyText string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = 200
	}

	text := strings.TrimSpace(bodyText)
	if text == "" {
		return ""
	}

	if len(text) <= maxLength {
		return text
	}

	truncated := text[:maxLength]
	lastSpace := strings.LastIndexFunc(truncated, unicode.IsSpace)

	// Keep at least half the budget; a single enormous word is cut mid-word.
	if lastSpace > maxLength/2 {
		truncated = truncated[:lastSpace]
	}

	return strings.TrimSpace(truncated) + "..."
}
