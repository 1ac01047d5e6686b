package extract

import (
	"bytes"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Text decodes plain text and markdown. Non-UTF-8 input goes through
// charset detection.
type Text struct {
	Logger *slog.Logger
}

func (t Text) Extract(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), nil
	}

	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	charset, confidence := "", 0.0
	if res, err := chardet.NewTextDetector().DetectBest(data); err == nil && res != nil {
		charset, confidence = res.Charset, float64(res.Confidence)/100
	}
	logger.Info("detected encoding", "charset", charset, "confidence", confidence)
	if confidence < MinEncodingConfidence {
		logger.Warn("low confidence in encoding detection", "charset", charset, "confidence", confidence)
	}
	return decode(data, charset), nil
}

// decode converts data from charset to UTF-8. Undecodable bytes become
// U+FFFD, also when charset is unknown.
func decode(data []byte, charset string) string {
	if enc := lookupEncoding(charset); enc != nil {
		if out, err := enc.NewDecoder().Bytes(data); err == nil {
			return strings.ToValidUTF8(string(out), "\uFFFD")
		}
	}
	return strings.ToValidUTF8(string(data), "\uFFFD")
}

func lookupEncoding(name string) encoding.Encoding {
	if name == "" {
		return nil
	}
	if enc, err := htmlindex.Get(name); err == nil {
		return enc
	}
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc
	}
	return nil
}
