// Package cli renders answers, retrieval hits and collection status for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hyperjump/ragpipe/internal/models"
	"github.com/hyperjump/ragpipe/internal/pipeline"
	"github.com/hyperjump/ragpipe/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const snippetLength = 200

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// WriteAnswer writes ans to w. In text mode the raw answer is printed as generated;
// sources adds the retrieved chunks below it.
func WriteAnswer(w io.Writer, ans *models.Answer, format OutputFormat, sources bool) error {
	if format == OutputJSON {
		return writeJSON(w, ans)
	}
	fmt.Fprintf(w, "\nResponse:\n%s\n", ans.Text)
	if sources && len(ans.Hits) > 0 {
		fmt.Fprintf(w, "\nSources (%d, %dms):\n", len(ans.Hits), ans.TookMs)
		writeHitsText(w, ans.Hits)
	}
	return nil
}

// WriteHits writes retrieval-only results.
func WriteHits(w io.Writer, query string, hits []models.Hit, format OutputFormat) error {
	if hits == nil {
		hits = []models.Hit{}
	}
	if format == OutputJSON {
		return writeJSON(w, models.RetrieveResponse{Query: query, Hits: hits})
	}
	fmt.Fprintf(w, "\nFound %d chunks for %q\n", len(hits), query)
	writeHitsText(w, hits)
	return nil
}

func writeHitsText(w io.Writer, hits []models.Hit) {
	for i, h := range hits {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | ID: %s | Score: %.4f\n", i+1, h.ID, h.Score)
		fmt.Fprintf(w, "%s\n", utils.Truncate(utils.OneLine(h.Text), snippetLength))
	}
}

// WriteStatus writes the collection status.
func WriteStatus(w io.Writer, st *models.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Collection:  %s (%s)\n", st.Collection.Name, st.State)
	fmt.Fprintf(w, "Items:       %d\n", st.Items)
	fmt.Fprintf(w, "Embedder:    %s (%d dimensions)\n", st.Collection.Embedder, st.Collection.Dimensions)
	if st.Generator != "" {
		fmt.Fprintf(w, "Generator:   %s\n", st.Generator)
	}
	fmt.Fprintf(w, "Chunking:    %d chars, %d overlap\n", st.ChunkSize, st.ChunkOverlap)
	if !st.Collection.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:     %s\n", st.Collection.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "Database:    %s (%s)\n", st.DatabasePath, FormatBytes(st.DiskUsageBytes))
	return nil
}

// WriteReport writes a one-paragraph summary of an ingestion run.
func WriteReport(w io.Writer, r *pipeline.Report) {
	if r.DataDirMissing {
		fmt.Fprintln(w, "Data directory not found; using existing collection.")
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "Skipped %s: %v\n", f.Path, f.Err)
	}
	switch {
	case r.Existing:
		fmt.Fprintf(w, "Loaded collection %q with %d items.\n", r.Collection.Name, r.Items)
	case r.Inserted == 0:
		fmt.Fprintf(w, "Collection %q already populated (%d items); %d new chunks ignored.\n",
			r.Collection.Name, r.Items, r.Chunks)
	default:
		fmt.Fprintf(w, "Indexed %d chunks from %d documents into %q in %s.\n",
			r.Inserted, r.Documents, r.Collection.Name, r.Took.Round(time.Millisecond))
	}
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
