// Package models defines core data structures for documents, chunks, collections, and answers.
package models

import "time"

// Document is the raw text extracted from one source file. Documents only live in memory
// for the duration of an ingestion run.
type Document struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Chunk is a bounded substring of a document, the unit of retrieval.
// ID is the decimal string of Index (no zero padding), so lexical order of IDs does not
// match positional order beyond ten items.
type Chunk struct {
	ID        string    `json:"id" db:"id"`
	Index     int       `json:"index" db:"position"`
	Text      string    `json:"text" db:"content"`
	Embedding []float32 `json:"-" db:"embedding"`
}

// Collection describes a persistent named set of (id, text, embedding) triples.
type Collection struct {
	Name       string    `json:"name" db:"name"`
	UUID       string    `json:"uuid" db:"uuid"`
	Dimensions int       `json:"dimensions" db:"dimensions"`
	Embedder   string    `json:"embedder" db:"embedder"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Hit is a single ranked retrieval result.
type Hit struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}
