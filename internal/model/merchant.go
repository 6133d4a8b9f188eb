package model

import "strings"

// Merchant represents a canonical merchant with the aliases it appears under
// on card statements (e.g. "Amazon" vs "AMZN Mktp US").
type Merchant struct {
	ID            string
	CanonicalName string
	Category      string
	Aliases       []string
}

// NameMatch describes how strongly a piece of free text matches a merchant.
type NameMatch int

// Match strengths, strongest first.
const (
	NameMatchNone NameMatch = iota
	NameMatchSubstring
	NameMatchAlias
	NameMatchCanonical
)

// MatchName reports how the given free text matches this merchant.
// Comparison is case-insensitive. An exact hit on the canonical name wins
// over an exact alias hit; substring containment in either direction is the
// only fuzzy heuristic.
func (m *Merchant) MatchName(text string) NameMatch {
	query := strings.ToLower(strings.TrimSpace(text))
	if query == "" {
		return NameMatchNone
	}

	canonical := strings.ToLower(m.CanonicalName)
	if query == canonical {
		return NameMatchCanonical
	}

	for _, alias := range m.Aliases {
		if query == strings.ToLower(alias) {
			return NameMatchAlias
		}
	}

	if strings.Contains(canonical, query) {
		return NameMatchSubstring
	}
	for _, alias := range m.Aliases {
		if strings.Contains(strings.ToLower(alias), query) {
			return NameMatchSubstring
		}
	}

	return NameMatchNone
}
