package enums

import "fmt"

// PointTransactionType maps to the point_transaction_type enum in Postgres.
type PointTransactionType string

const (
	PointTxPurchase   PointTransactionType = "purchase"
	PointTxRedemption PointTransactionType = "redemption"
	PointTxBonus      PointTransactionType = "bonus"
	PointTxReferral   PointTransactionType = "referral"
	PointTxSignup     PointTransactionType = "signup"
)

var validPointTransactionTypes = []PointTransactionType{
	PointTxPurchase,
	PointTxRedemption,
	PointTxBonus,
	PointTxReferral,
	PointTxSignup,
}

func (t PointTransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value matches the canonical transaction type enum.
func (t PointTransactionType) IsValid() bool {
	for _, candidate := range validPointTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsDebit reports whether the transaction type removes points from a balance.
func (t PointTransactionType) IsDebit() bool {
	return t == PointTxRedemption
}

// IsAdjustment reports whether the type may be posted as a manual credit.
func (t PointTransactionType) IsAdjustment() bool {
	return t == PointTxBonus || t == PointTxReferral || t == PointTxSignup
}

// ParsePointTransactionType converts raw input into PointTransactionType.
func ParsePointTransactionType(value string) (PointTransactionType, error) {
	for _, candidate := range validPointTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid point transaction type %q", value)
}
