package match

import (
	"sort"

	"github.com/quibble-sh/quibble/internal/model"
)

// MerchantResolver matches merchant free text against canonical names and
// alias lists. It feeds the scorer's merchant dimension and is also exposed
// standalone for direct "who is this merchant" lookups.
type MerchantResolver struct {
	merchants []model.Merchant
}

// NewMerchantResolver creates a resolver over an immutable merchant snapshot.
func NewMerchantResolver(merchants []model.Merchant) *MerchantResolver {
	return &MerchantResolver{merchants: merchants}
}

// Resolve returns all merchants matching the given text, strongest match
// first: canonical-name hits rank above alias-only hits, which rank above
// substring hits. Ties order by canonical name then ID for determinism.
// No match returns an empty slice, never an error.
func (r *MerchantResolver) Resolve(text string) []model.Merchant {
	type scored struct {
		merchant model.Merchant
		strength model.NameMatch
	}

	var matches []scored
	for _, m := range r.merchants {
		if strength := m.MatchName(text); strength != model.NameMatchNone {
			matches = append(matches, scored{merchant: m, strength: strength})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].strength != matches[j].strength {
			return matches[i].strength > matches[j].strength
		}
		if matches[i].merchant.CanonicalName != matches[j].merchant.CanonicalName {
			return matches[i].merchant.CanonicalName < matches[j].merchant.CanonicalName
		}
		return matches[i].merchant.ID < matches[j].merchant.ID
	})

	result := make([]model.Merchant, len(matches))
	for i, m := range matches {
		result[i] = m.merchant
	}
	return result
}
