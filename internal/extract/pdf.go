package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF concatenates page text in page order. Each page with text is followed by a
// newline; pages without text add nothing.
func extractPDF(content []byte) (text string, err error) {
	// The PDF reader panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, pageText)
	}
	return joinPages(pages), nil
}

func joinPages(pages []string) string {
	var buf strings.Builder
	for _, p := range pages {
		if p == "" {
			continue
		}
		buf.WriteString(p)
		buf.WriteByte('\n')
	}
	return buf.String()
}
