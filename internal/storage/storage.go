// Package storage defines the persistence contract for archived items,
// embeddings, and conversation history.
package storage

import (
	"context"

	"github.com/shiokaze/tazune/internal/models"
)

// Store defines the backing-store operations the pipeline reads from and the
// conversation operations it writes to. Items and embeddings are produced by
// the external archiver; this side only reads them.
type Store interface {
	// Item operations. ListItems returns items sorted by posted_at descending;
	// limit <= 0 means no limit.
	CreateItem(ctx context.Context, item *models.Item) error
	ListItems(ctx context.Context, limit int) ([]*models.Item, error)
	CountItems(ctx context.Context) (int64, error)

	// Embedding operations. UpsertEmbedding replaces any existing vector for
	// the item; embeddings are otherwise immutable.
	UpsertEmbedding(ctx context.Context, emb *models.Embedding) error
	ListEmbeddings(ctx context.Context) ([]*models.Embedding, error)

	// Conversation operations. ListTurns returns turns newest-first.
	// AppendExchange persists a user turn and its assistant turn atomically:
	// either both land or neither does.
	AppendTurn(ctx context.Context, turn *models.ConversationTurn) error
	AppendExchange(ctx context.Context, user, assistant *models.ConversationTurn) error
	ListTurns(ctx context.Context, limit int) ([]*models.ConversationTurn, error)
	ClearTurns(ctx context.Context) error

	Close() error
}
