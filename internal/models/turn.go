package models

import "time"

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one persisted message in the conversation. Turns are
// append-only; GroundingIDs lists the items an assistant turn was based on.
type ConversationTurn struct {
	ID           string    `json:"id" db:"id"`
	Role         string    `json:"role" db:"role"`
	Text         string    `json:"text" db:"text"`
	GroundingIDs []string  `json:"grounding_ids,omitempty" db:"-"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
