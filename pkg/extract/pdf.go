package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDF extracts text page by page. Pages that fail to parse are skipped.
type PDF struct {
	Logger *slog.Logger
}

func (p PDF) Extract(data []byte) (string, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r, pages, err := openPDF(data)
	if err != nil {
		return "", fmt.Errorf("error reading PDF: %w", err)
	}

	parts := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		text, err := pageText(r, i)
		if err != nil {
			logger.Warn("pdf page skipped", "page", i, "err", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("--- Page %d ---\n%s", i, text))
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: no page of the PDF produced text", ErrNoText)
	}
	return RepairCyrillic(strings.Join(parts, "\n\n")), nil
}

// openPDF converts parser panics on malformed input into errors.
func openPDF(data []byte) (r *pdf.Reader, pages int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, pages, err = nil, 0, fmt.Errorf("malformed PDF: %v", rec)
		}
	}()
	r, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, err
	}
	return r, r.NumPage(), nil
}

func pageText(r *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("page %d: %v", n, rec)
		}
	}()
	page := r.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	// GetPlainText fills the font map; it must not be nil.
	return page.GetPlainText(make(map[string]*pdf.Font))
}
