// Package storage provides the SQLite implementation of the Store interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shiokaze/tazune/internal/models"
)

// SQLiteStore implements Store using SQLite. The same database file is shared
// with the external archiver app, so the schema uses IF NOT EXISTS throughout.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL,
		author_name TEXT,
		content TEXT NOT NULL,
		posted_at TIMESTAMP NOT NULL,
		media_urls TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_items_posted_at ON items(posted_at);

	CREATE TABLE IF NOT EXISTS embeddings (
		item_id TEXT PRIMARY KEY,
		vector BLOB NOT NULL,
		model_tag TEXT NOT NULL,
		FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS conversation_turns (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		grounding_ids TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_turns_created_at ON conversation_turns(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateItem inserts an item.
func (s *SQLiteStore) CreateItem(ctx context.Context, item *models.Item) error {
	mediaJSON, err := json.Marshal(item.MediaURLs)
	if err != nil {
		return fmt.Errorf("failed to marshal media urls: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO items (id, author_id, author_name, content, posted_at, media_urls)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.AuthorID, item.AuthorName, item.Content, item.PostedAt, string(mediaJSON),
	)
	return err
}

// ListItems returns items sorted by posted_at descending. limit <= 0 returns all.
func (s *SQLiteStore) ListItems(ctx context.Context, limit int) ([]*models.Item, error) {
	query := `SELECT id, author_id, author_name, content, posted_at, media_urls
	          FROM items ORDER BY posted_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		var item models.Item
		var mediaJSON sql.NullString
		if err := rows.Scan(&item.ID, &item.AuthorID, &item.AuthorName, &item.Content, &item.PostedAt, &mediaJSON); err != nil {
			return nil, err
		}
		if mediaJSON.Valid && mediaJSON.String != "" {
			if err := json.Unmarshal([]byte(mediaJSON.String), &item.MediaURLs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal media urls: %w", err)
			}
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// CountItems returns the number of items.
func (s *SQLiteStore) CountItems(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&count)
	return count, err
}

// UpsertEmbedding inserts or replaces the embedding for an item.
func (s *SQLiteStore) UpsertEmbedding(ctx context.Context, emb *models.Embedding) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embeddings (item_id, vector, model_tag) VALUES (?, ?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET vector = excluded.vector, model_tag = excluded.model_tag`,
		emb.ItemID, float32SliceToBytes(emb.Vector), emb.ModelTag,
	)
	return err
}

// ListEmbeddings returns all stored embeddings.
func (s *SQLiteStore) ListEmbeddings(ctx context.Context) ([]*models.Embedding, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT item_id, vector, model_tag FROM embeddings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var embeddings []*models.Embedding
	for rows.Next() {
		var emb models.Embedding
		var blob []byte
		if err := rows.Scan(&emb.ItemID, &blob, &emb.ModelTag); err != nil {
			return nil, err
		}
		emb.Vector = bytesToFloat32Slice(blob)
		embeddings = append(embeddings, &emb)
	}
	return embeddings, rows.Err()
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertTurn(ctx context.Context, db execer, turn *models.ConversationTurn) error {
	groundingJSON, err := json.Marshal(turn.GroundingIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal grounding ids: %w", err)
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO conversation_turns (id, role, text, grounding_ids, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		turn.ID, turn.Role, turn.Text, string(groundingJSON), turn.CreatedAt,
	)
	return err
}

// AppendTurn persists a conversation turn. Turns are append-only.
func (s *SQLiteStore) AppendTurn(ctx context.Context, turn *models.ConversationTurn) error {
	return insertTurn(ctx, s.db, turn)
}

// AppendExchange persists a question and its answer in one transaction, so a
// failure cannot leave a user turn without its assistant turn.
func (s *SQLiteStore) AppendExchange(ctx context.Context, user, assistant *models.ConversationTurn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := insertTurn(ctx, tx, user); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := insertTurn(ctx, tx, assistant); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ListTurns returns conversation turns newest-first. limit <= 0 returns all.
func (s *SQLiteStore) ListTurns(ctx context.Context, limit int) ([]*models.ConversationTurn, error) {
	query := `SELECT id, role, text, grounding_ids, created_at
	          FROM conversation_turns ORDER BY created_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []*models.ConversationTurn
	for rows.Next() {
		var turn models.ConversationTurn
		var groundingJSON sql.NullString
		if err := rows.Scan(&turn.ID, &turn.Role, &turn.Text, &groundingJSON, &turn.CreatedAt); err != nil {
			return nil, err
		}
		if groundingJSON.Valid && groundingJSON.String != "" {
			if err := json.Unmarshal([]byte(groundingJSON.String), &turn.GroundingIDs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal grounding ids: %w", err)
			}
		}
		turns = append(turns, &turn)
	}
	return turns, rows.Err()
}

// ClearTurns deletes all conversation history.
func (s *SQLiteStore) ClearTurns(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM conversation_turns")
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
