package models

import "fmt"

// QueryRequest is the input for a query or retrieval request.
type QueryRequest struct {
	Query    string `json:"query"`
	NResults int    `json:"n_results,omitempty"`
}

// Validate ensures the query is not empty and clamps NResults to [0, max].
// Zero means "use the configured default".
func (q *QueryRequest) Validate(max int) error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.NResults < 0 {
		q.NResults = 0
	}
	if max > 0 && q.NResults > max {
		q.NResults = max
	}
	return nil
}

// Answer is the result of running one query through the pipeline.
// Text is the raw generated output; no post-processing is applied.
type Answer struct {
	Query   string `json:"query"`
	Text    string `json:"answer"`
	Context string `json:"context"`
	Prompt  string `json:"-"`
	Hits    []Hit  `json:"hits"`
	TookMs  int64  `json:"took_ms"`
}

// RetrieveResponse is the result of a retrieval-only request.
type RetrieveResponse struct {
	Query string `json:"query"`
	Hits  []Hit  `json:"hits"`
}

// Status describes the READY collection and the models serving it.
type Status struct {
	Collection     Collection `json:"collection"`
	Items          int        `json:"items"`
	State          string     `json:"state"`
	DatabasePath   string     `json:"database_path"`
	DiskUsageBytes int64      `json:"disk_usage_bytes"`
	Generator      string     `json:"generator"`
	ChunkSize      int        `json:"chunk_size"`
	ChunkOverlap   int        `json:"chunk_overlap"`
}
