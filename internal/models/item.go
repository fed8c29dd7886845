// Package models defines core data structures for archived items, search
// parameters, and conversation turns.
package models

import "time"

// Item represents a single archived post. Items are produced by the external
// bookmark store; the pipeline only reads them.
type Item struct {
	ID         string    `json:"id" db:"id"`
	AuthorID   string    `json:"author_id" db:"author_id"`
	AuthorName string    `json:"author_name" db:"author_name"`
	Content    string    `json:"content" db:"content"`
	PostedAt   time.Time `json:"posted_at" db:"posted_at"`
	MediaURLs  []string  `json:"media_urls,omitempty" db:"-"`
}

// Embedding is a fixed-length vector for one item, tagged with the model that
// produced it. Vectors from different model tags are never compared.
type Embedding struct {
	ItemID   string    `json:"item_id" db:"item_id"`
	Vector   []float32 `json:"-" db:"-"`
	ModelTag string    `json:"model_tag" db:"model_tag"`
}
