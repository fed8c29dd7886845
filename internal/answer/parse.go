package answer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shiokaze/tazune/internal/models"
)

// Wire-format tokens shared with the rendering layer. These literals must
// not change: existing renderers match them exactly.
const (
	citationOpen    = "[ITEM:"
	citationClose   = "[/ITEM]"
	followUpsMarker = "---FOLLOWUPS---"
)

const maxFollowUps = 3

// citationPattern matches an inline citation marker: [ITEM:<id>]@<handle>[/ITEM]
var citationPattern = regexp.MustCompile(`\[ITEM:([^\]]+)\]@([^\[]*)\[/ITEM\]`)

// bulletPrefix strips leading list markers from follow-up lines: "-", "*",
// "1.", "2)", and similar.
var bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)

// CitationMarker renders the inline citation token for an item.
func CitationMarker(itemID, handle string) string {
	return fmt.Sprintf("%s%s]@%s%s", citationOpen, itemID, handle, citationClose)
}

// Citation is one parsed inline marker. Resolved is true when the cited item
// id appears in the retrieved set; unresolved markers render as plain text.
type Citation struct {
	ItemID   string
	Handle   string
	Resolved bool
}

// ParseCitations extracts citation markers from text in order of appearance
// and resolves each against the retrieved items.
func ParseCitations(text string, retrieved []*models.Item) []Citation {
	known := make(map[string]bool, len(retrieved))
	for _, item := range retrieved {
		known[item.ID] = true
	}

	matches := citationPattern.FindAllStringSubmatch(text, -1)
	citations := make([]Citation, 0, len(matches))
	for _, m := range matches {
		citations = append(citations, Citation{
			ItemID:   m[1],
			Handle:   m[2],
			Resolved: known[m[1]],
		})
	}
	return citations
}

// SplitAnswer splits the full generated text at the follow-ups marker. The
// text before the marker is the answer, with citation markers retained; the
// text after is parsed into at most three non-empty follow-up questions with
// bullet and number prefixes stripped.
func SplitAnswer(full string) (answerText string, followUps []string) {
	before, after, found := strings.Cut(full, followUpsMarker)
	answerText = strings.TrimSpace(before)
	if !found {
		return answerText, nil
	}

	for _, line := range strings.Split(after, "\n") {
		line = strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		followUps = append(followUps, line)
		if len(followUps) == maxFollowUps {
			break
		}
	}
	return answerText, followUps
}
