// Package prompts holds the per-domain system prompts. Templates are plain
// text files compiled into the binary.
package prompts

import (
	"embed"
	"fmt"
	"strings"
)

type Domain string

const (
	Legal      Domain = "legal"
	Marketing  Domain = "marketing"
	Finance    Domain = "finance"
	Sales      Domain = "sales"
	Management Domain = "management"
	HR         Domain = "hr"
	General    Domain = "general"
)

// Domains lists every supported domain in a stable order.
var Domains = []Domain{Legal, Marketing, Finance, Sales, Management, HR, General}

//go:embed templates/*.txt
var templateFS embed.FS

var templates = mustLoad()

func mustLoad() map[Domain]string {
	out := make(map[Domain]string, len(Domains))
	for _, d := range Domains {
		b, err := templateFS.ReadFile("templates/" + string(d) + ".txt")
		if err != nil {
			panic(fmt.Sprintf("prompts: missing template for %s: %v", d, err))
		}
		out[d] = strings.TrimSpace(string(b))
	}
	return out
}

// ParseDomain resolves a client-supplied domain. Empty or unknown values
// resolve to General.
func ParseDomain(s string) Domain {
	d := Domain(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := templates[d]; ok {
		return d
	}
	return General
}

func (d Domain) Valid() bool {
	_, ok := templates[d]
	return ok
}

// SystemPrompt returns the template for d, falling back to General.
func SystemPrompt(d Domain) string {
	if p, ok := templates[d]; ok {
		return p
	}
	return templates[General]
}
