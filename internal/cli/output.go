// Package cli formats command output for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shiokaze/tazune/internal/models"
	"github.com/shiokaze/tazune/pkg/utils"
)

// OutputFormat selects how results are rendered.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch s {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

const contentPreviewRunes = 200

// WriteItems writes retrieved items to w in the given format.
func WriteItems(w io.Writer, items []*models.Item, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"items": items,
			"total": len(items),
		})
	}
	fmt.Fprintf(w, "\nFound %d item(s)\n\n", len(items))
	for i, item := range items {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "%d. @%s (%s) on %s  [id: %s]\n",
			i+1, item.AuthorID, item.AuthorName, item.PostedAt.Format("2006-01-02"), item.ID)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(item.Content, contentPreviewRunes))
	}
	return nil
}

// WriteTurns writes conversation history to w, oldest first.
func WriteTurns(w io.Writer, turns []*models.ConversationTurn, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{"turns": turns})
	}
	for _, turn := range turns {
		label := "you"
		if turn.Role == models.RoleAssistant {
			label = "tazune"
		}
		fmt.Fprintf(w, "[%s] %s\n%s\n", turn.CreatedAt.Format("2006-01-02 15:04"), label, turn.Text)
		if len(turn.GroundingIDs) > 0 {
			fmt.Fprintf(w, "  sources: %s\n", strings.Join(turn.GroundingIDs, ", "))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteAnswer writes a completed answer with its follow-ups and sources.
func WriteAnswer(w io.Writer, answer *models.Answer) {
	if len(answer.FollowUps) > 0 {
		fmt.Fprintln(w, "\nYou could also ask:")
		for _, f := range answer.FollowUps {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}
	if len(answer.Sources) > 0 {
		ids := make([]string, len(answer.Sources))
		for i, s := range answer.Sources {
			ids[i] = s.ID
		}
		fmt.Fprintf(w, "\nSources: %s\n", strings.Join(ids, ", "))
	}
}
