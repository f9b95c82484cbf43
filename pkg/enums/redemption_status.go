package enums

import "fmt"

// RedemptionStatus maps to the redemption_status enum in Postgres.
type RedemptionStatus string

const (
	RedemptionStatusPending RedemptionStatus = "pending"
	RedemptionStatusUsed    RedemptionStatus = "used"
	RedemptionStatusExpired RedemptionStatus = "expired"
)

var validRedemptionStatuses = []RedemptionStatus{
	RedemptionStatusPending,
	RedemptionStatusUsed,
	RedemptionStatusExpired,
}

// IsValid reports whether the value is a known redemption status.
func (s RedemptionStatus) IsValid() bool {
	for _, candidate := range validRedemptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// Only pending redemptions move, and only once.
func (s RedemptionStatus) CanTransitionTo(next RedemptionStatus) bool {
	if s != RedemptionStatusPending {
		return false
	}
	return next == RedemptionStatusUsed || next == RedemptionStatusExpired
}

// ParseRedemptionStatus converts raw input into RedemptionStatus.
func ParseRedemptionStatus(value string) (RedemptionStatus, error) {
	for _, candidate := range validRedemptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid redemption status %q", value)
}
