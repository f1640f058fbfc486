package services

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var plainTextPolicy = bluemonday.StrictPolicy()

// cleanText strips markup from customer and staff free text and trims it to limit runes.
func cleanText(raw string, limit int) string {
	stripped := html.UnescapeString(plainTextPolicy.Sanitize(raw))
	stripped = strings.TrimSpace(stripped)
	if limit > 0 {
		if runes := []rune(stripped); len(runes) > limit {
			stripped = strings.TrimSpace(string(runes[:limit]))
		}
	}
	return stripped
}

const (
	maxReasonLength = 500
	maxNotesLength  = 2000
)
