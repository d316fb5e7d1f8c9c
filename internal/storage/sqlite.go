package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/ragpipe/internal/models"
	"github.com/hyperjump/ragpipe/pkg/utils"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
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

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		uuid TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		embedder TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS collection_items (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		PRIMARY KEY (collection, id),
		FOREIGN KEY (collection) REFERENCES collections(name) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_items_collection_position ON collection_items(collection, position);
	`
	_, err := db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// CreateCollection inserts a collection. UUID and CreatedAt are filled in when empty.
func (s *SQLiteStorage) CreateCollection(ctx context.Context, c *models.Collection) error {
	if c.UUID == "" {
		c.UUID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, uuid, dimensions, embedder, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.UUID, c.Dimensions, c.Embedder, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", c.Name, err)
	}
	return nil
}

// GetCollection returns a collection by name, or ErrCollectionNotFound.
func (s *SQLiteStorage) GetCollection(ctx context.Context, name string) (*models.Collection, error) {
	var c models.Collection
	err := s.db.QueryRowContext(ctx,
		`SELECT name, uuid, dimensions, embedder, created_at FROM collections WHERE name = ?`, name,
	).Scan(&c.Name, &c.UUID, &c.Dimensions, &c.Embedder, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertItems stores chunks with their embeddings in one transaction.
func (s *SQLiteStorage) InsertItems(ctx context.Context, collection string, chunks []models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertItems(ctx, tx, collection, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceItems deletes every item of a collection and stores chunks in its place. Both
// steps run in one transaction, so a failed insert leaves the previous items intact.
func (s *SQLiteStorage) ReplaceItems(ctx context.Context, collection string, chunks []models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM collection_items WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("failed to delete items: %w", err)
	}
	if err := insertItems(ctx, tx, collection, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

func insertItems(ctx context.Context, tx *sql.Tx, collection string, chunks []models.Chunk) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO collection_items (collection, id, position, content, embedding) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ch := range chunks {
		if _, err := stmt.ExecContext(ctx, collection, ch.ID, ch.Index, ch.Text, utils.EncodeVector(ch.Embedding)); err != nil {
			return fmt.Errorf("failed to insert item %s: %w", ch.ID, err)
		}
	}
	return nil
}

// ListItems returns every item of a collection in position order.
func (s *SQLiteStorage) ListItems(ctx context.Context, collection string) ([]models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, position, content, embedding FROM collection_items WHERE collection = ? ORDER BY position`,
		collection,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var ch models.Chunk
		var blob []byte
		if err := rows.Scan(&ch.ID, &ch.Index, &ch.Text, &blob); err != nil {
			return nil, err
		}
		if ch.Embedding, err = utils.DecodeVector(blob); err != nil {
			return nil, fmt.Errorf("item %s: %w", ch.ID, err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// CountItems returns the number of items in a collection.
func (s *SQLiteStorage) CountItems(ctx context.Context, collection string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collection_items WHERE collection = ?`, collection).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
