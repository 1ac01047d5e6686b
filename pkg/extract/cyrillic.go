package extract

import (
	"unicode"

	"golang.org/x/text/encoding/charmap"
)

// RepairCyrillic undoes single-byte Cyrillic text that was decoded as
// Latin-1. The text is re-encoded to Latin-1 and decoded as CP1251 and
// KOI8-R; a variant wins only with strictly more Cyrillic letters, CP1251
// first.
func RepairCyrillic(s string) string {
	raw, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil {
		// runes outside Latin-1: not mojibake of this kind
		return s
	}

	best, bestCount := s, countCyrillic(s)
	for _, cm := range []*charmap.Charmap{charmap.Windows1251, charmap.KOI8R} {
		decoded, err := cm.NewDecoder().String(raw)
		if err != nil {
			continue
		}
		if n := countCyrillic(decoded); n > bestCount {
			best, bestCount = decoded, n
		}
	}
	return best
}

func countCyrillic(s string) int {
	n := 0
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) && unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
