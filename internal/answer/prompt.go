package answer

import (
	"fmt"
	"strings"

	"github.com/shiokaze/tazune/internal/models"
)

const answerPromptTemplate = `You answer questions about the user's personal bookmark archive.
Ground every claim in the archived items below. When you use an item, cite it
inline with the exact marker [ITEM:itemId]@handle[/ITEM] using that item's id
and author handle. Do not invent items or ids. If the archive has nothing
relevant, say so plainly.

After the answer, append a line containing exactly ---FOLLOWUPS--- and then up
to three short follow-up questions the user might ask next, one per line.

Archived items:
%s`

// buildContextBlock renders up to max retrieved items as a numbered grounding
// block: index, item id, author, date, content.
func buildContextBlock(items []*models.Item, max int) string {
	if max > 0 && len(items) > max {
		items = items[:max]
	}
	if len(items) == 0 {
		return "(no matching items found)"
	}

	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. [id: %s] @%s (%s) on %s:\n%s\n\n",
			i+1, item.ID, item.AuthorID, item.AuthorName,
			item.PostedAt.Format("2006-01-02"), strings.TrimSpace(item.Content))
	}
	return strings.TrimSpace(b.String())
}

// buildSystemPrompt embeds the grounding block into the fixed instruction prompt.
func buildSystemPrompt(items []*models.Item, max int) string {
	return fmt.Sprintf(answerPromptTemplate, buildContextBlock(items, max))
}
