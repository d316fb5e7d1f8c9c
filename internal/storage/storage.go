// Package storage persists named collections of embedded chunks.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/ragpipe/internal/models"
)

// ErrCollectionNotFound is returned when a named collection does not exist.
var ErrCollectionNotFound = errors.New("collection not found")

// Storage defines collection and item persistence operations.
type Storage interface {
	// Collection operations
	CreateCollection(ctx context.Context, c *models.Collection) error
	GetCollection(ctx context.Context, name string) (*models.Collection, error)

	// Item operations
	InsertItems(ctx context.Context, collection string, chunks []models.Chunk) error
	ListItems(ctx context.Context, collection string) ([]models.Chunk, error)
	ReplaceItems(ctx context.Context, collection string, chunks []models.Chunk) error
	CountItems(ctx context.Context, collection string) (int64, error)

	Close() error
}
