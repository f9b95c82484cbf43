package enums

import "fmt"

// ItemLoyaltyMode is the per menu item earning rule.
type ItemLoyaltyMode string

const (
	ItemModeSmart  ItemLoyaltyMode = "smart"
	ItemModeManual ItemLoyaltyMode = "manual"
	ItemModeNone   ItemLoyaltyMode = "none"
)

var validItemLoyaltyModes = []ItemLoyaltyMode{
	ItemModeSmart,
	ItemModeManual,
	ItemModeNone,
}

func (m ItemLoyaltyMode) String() string {
	return string(m)
}

// IsValid reports whether the value is a known item mode.
func (m ItemLoyaltyMode) IsValid() bool {
	for _, candidate := range validItemLoyaltyModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseItemLoyaltyMode converts raw input into an ItemLoyaltyMode.
func ParseItemLoyaltyMode(value string) (ItemLoyaltyMode, error) {
	for _, candidate := range validItemLoyaltyModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item loyalty mode %q", value)
}

// BlanketType selects the restaurant-wide earning rule.
type BlanketType string

const (
	BlanketSmart  BlanketType = "smart"
	BlanketManual BlanketType = "manual"
	BlanketSpend  BlanketType = "spend"
)

var validBlanketTypes = []BlanketType{
	BlanketSmart,
	BlanketManual,
	BlanketSpend,
}

func (b BlanketType) String() string {
	return string(b)
}

// IsValid reports whether the value is a known blanket type.
func (b BlanketType) IsValid() bool {
	for _, candidate := range validBlanketTypes {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBlanketType converts raw input into a BlanketType.
func ParseBlanketType(value string) (BlanketType, error) {
	for _, candidate := range validBlanketTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid blanket type %q", value)
}
