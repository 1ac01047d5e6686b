// Package extract turns uploaded documents into plain text. Formats are
// dispatched by file extension through a Registry of strategies.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"Copilot/pkg/apperr"
	"Copilot/pkg/cache"
	"Copilot/pkg/metrics"
)

const (
	MaxFileSize           = 10 << 20
	MaxTextLength         = 50000
	TruncationMarker      = "\n\n[...text truncated...]"
	MinEncodingConfidence = 0.7
)

var (
	ErrMissingFilename      = errors.New("file name is not specified")
	ErrUnsupportedExtension = errors.New("invalid file format")
	ErrFileTooLarge         = errors.New("file is too large")
	ErrNoText               = errors.New("no extractable text")
)

// ExtractionError wraps a parser failure with the file it came from.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract text from %s: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Upload is one attachment as received. Size is the size declared by the
// client; Body is read at most once.
type Upload struct {
	Filename    string
	Size        int64
	ContentType string
	Body        io.Reader
}

// File is the extracted result handed to the assembler.
type File struct {
	Name        string
	ContentType string
	Text        string
}

type Extractor struct {
	registry *Registry
	cache    *cache.Cache[string]
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Extractor)

func WithRegistry(r *Registry) Option { return func(e *Extractor) { e.registry = r } }

// WithCache memoizes extracted text by content hash.
func WithCache(c *cache.Cache[string]) Option { return func(e *Extractor) { e.cache = c } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Extractor) { e.metrics = m } }

func New(logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = DefaultRegistry(logger)
	}
	return e
}

// Check validates an upload's name and declared size without reading it.
// It returns the normalized extension.
func (e *Extractor) Check(u Upload) (string, error) {
	if strings.TrimSpace(u.Filename) == "" {
		return "", apperr.Wrap(apperr.KindValidation, ErrMissingFilename, "")
	}
	ext := strings.ToLower(filepath.Ext(u.Filename))
	if _, ok := e.registry.Lookup(ext); !ok {
		err := fmt.Errorf("%w %q, allowed: %s", ErrUnsupportedExtension, ext, strings.Join(e.registry.Extensions(), ", "))
		return "", apperr.Wrap(apperr.KindValidation, err, "")
	}
	if u.Size > MaxFileSize {
		return "", tooLarge()
	}
	return ext, nil
}

func (e *Extractor) Extract(ctx context.Context, u Upload) (File, error) {
	ext, err := e.Check(u)
	if err != nil {
		return File{}, err
	}
	if u.Body == nil {
		return File{}, e.fail(u.Filename, errors.New("empty upload body"))
	}

	data, err := io.ReadAll(io.LimitReader(u.Body, MaxFileSize+1))
	if err != nil {
		return File{}, e.fail(u.Filename, fmt.Errorf("read upload: %w", err))
	}
	if len(data) > MaxFileSize {
		return File{}, tooLarge()
	}
	if err := ctx.Err(); err != nil {
		return File{}, err
	}

	out := File{Name: u.Filename, ContentType: u.ContentType}

	key := cache.ContentKey(ext, data)
	if text, ok := e.cache.Get(key); ok {
		e.metrics.ExtractCacheHit()
		e.logger.Debug("extraction cache hit", "file", u.Filename)
		out.Text = text
		return out, nil
	}

	strategy, _ := e.registry.Lookup(ext)
	start := time.Now()
	text, err := strategy.Extract(data)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrNoText
	}
	e.metrics.ObserveExtraction(ext, err, time.Since(start))
	if err != nil {
		return File{}, e.fail(u.Filename, err)
	}

	text = truncate(text, u.Filename, e.logger)
	e.cache.Set(key, text)

	e.logger.Info("file processed", "file", u.Filename, "format", ext, "chars", utf8.RuneCountInString(text))
	out.Text = text
	return out, nil
}

func (e *Extractor) fail(filename string, err error) error {
	e.logger.Warn("text extraction failed", "file", filename, "err", err)
	return apperr.Wrap(apperr.KindValidation, &ExtractionError{Filename: filename, Err: err}, "")
}

func tooLarge() error {
	err := fmt.Errorf("%w, maximum is %d MB", ErrFileTooLarge, MaxFileSize>>20)
	return apperr.Wrap(apperr.KindValidation, err, "")
}

// truncate caps text at MaxTextLength runes and trims it. It walks the
// string instead of converting it, so oversized input is never copied.
func truncate(text, filename string, logger *slog.Logger) string {
	n := 0
	for i := range text {
		if n == MaxTextLength {
			logger.Warn("extracted text truncated", "file", filename, "bytes", len(text), "limit", MaxTextLength)
			return strings.TrimSpace(text[:i] + TruncationMarker)
		}
		n++
	}
	return strings.TrimSpace(text)
}
