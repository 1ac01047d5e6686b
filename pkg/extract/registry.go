package extract

import (
	"log/slog"
	"sort"
	"strings"
)

// Strategy extracts plain text from one document format.
type Strategy interface {
	Extract(data []byte) (string, error)
}

type StrategyFunc func(data []byte) (string, error)

func (f StrategyFunc) Extract(data []byte) (string, error) { return f(data) }

// Registry maps lowercase extensions (with the leading dot) to strategies.
type Registry struct {
	strategies map[string]Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

func (r *Registry) Register(s Strategy, exts ...string) {
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		r.strategies[ext] = s
	}
}

func (r *Registry) Lookup(ext string) (Strategy, bool) {
	s, ok := r.strategies[strings.ToLower(ext)]
	return s, ok
}

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.strategies))
	for ext := range r.strategies {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry handles .pdf, .docx, .doc, .txt and .md.
func DefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry()
	r.Register(PDF{Logger: logger}, ".pdf")
	r.Register(DOCX{}, ".docx", ".doc")
	r.Register(Text{Logger: logger}, ".txt", ".md")
	return r
}
