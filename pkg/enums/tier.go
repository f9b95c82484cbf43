package enums

import (
	"fmt"
	"strings"
)

// CustomerTier maps to the customer_tier enum in Postgres.
type CustomerTier string

const (
	TierBronze   CustomerTier = "bronze"
	TierSilver   CustomerTier = "silver"
	TierGold     CustomerTier = "gold"
	TierPlatinum CustomerTier = "platinum"
)

// validTiers is ordered by rank; the index is the tier rank.
var validTiers = []CustomerTier{
	TierBronze,
	TierSilver,
	TierGold,
	TierPlatinum,
}

// Tiers returns every tier from lowest to highest rank.
func Tiers() []CustomerTier {
	out := make([]CustomerTier, len(validTiers))
	copy(out, validTiers)
	return out
}

// String implements fmt.Stringer.
func (t CustomerTier) String() string {
	return string(t)
}

// IsValid reports whether the value is a known tier.
func (t CustomerTier) IsValid() bool {
	return t.Rank() >= 0
}

// Rank returns 0 (bronze) through 3 (platinum), or -1 for unknown tiers.
func (t CustomerTier) Rank() int {
	for i, candidate := range validTiers {
		if candidate == t {
			return i
		}
	}
	return -1
}

// AtLeast reports whether t ranks at or above min. Unknown tiers never qualify.
func (t CustomerTier) AtLeast(min CustomerTier) bool {
	rank := t.Rank()
	return rank >= 0 && rank >= min.Rank()
}

// ParseCustomerTier converts raw input into a CustomerTier.
func ParseCustomerTier(value string) (CustomerTier, error) {
	normalized := CustomerTier(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid customer tier %q", value)
}
