package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fumiama/go-docx"
)

// MaxDocxUncompressed caps the summed uncompressed size of a DOCX archive.
// archive/zip refuses entries that inflate past their declared size, so
// checking the headers bounds what the parser can allocate.
var MaxDocxUncompressed uint64 = 64 << 20

var ErrArchiveTooLarge = errors.New("document expands beyond the allowed size")

// DOCX reads the body paragraphs and tables of a Word document.
type DOCX struct{}

func (DOCX) Extract(data []byte) (string, error) {
	if err := checkArchive(data); err != nil {
		return "", fmt.Errorf("error reading DOCX: %w", err)
	}

	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("error reading DOCX: %w", err)
	}

	var (
		paragraphs []string
		runes      int
	)
	for _, it := range doc.Document.Body.Items {
		var text string
		switch v := it.(type) {
		case *docx.Paragraph:
			text = v.String()
		case *docx.Table:
			text = v.String()
		default:
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		paragraphs = append(paragraphs, text)
		// the caller truncates; anything past the limit is dropped anyway
		if runes += utf8.RuneCountInString(text); runes > MaxTextLength {
			break
		}
	}
	if len(paragraphs) == 0 {
		return "", fmt.Errorf("%w: document does not contain text", ErrNoText)
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

func checkArchive(data []byte) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	var total uint64
	for _, f := range zr.File {
		total += f.UncompressedSize64
		if f.UncompressedSize64 > MaxDocxUncompressed || total > MaxDocxUncompressed {
			return fmt.Errorf("%w (%s, limit %d MB)", ErrArchiveTooLarge, f.Name, MaxDocxUncompressed>>20)
		}
	}
	return nil
}
