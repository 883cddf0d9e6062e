package enums

import "fmt"

// PurchaseStatus represents the purchase lifecycle.
type PurchaseStatus string

const (
	PurchaseStatusPending             PurchaseStatus = "pending"
	PurchaseStatusPendingCodeDelivery PurchaseStatus = "pending_code_delivery"
	PurchaseStatusApproved            PurchaseStatus = "approved"
	PurchaseStatusRejected            PurchaseStatus = "rejected"
	PurchaseStatusExpired             PurchaseStatus = "expired"
)

var validPurchaseStatuses = []PurchaseStatus{
	PurchaseStatusPending,
	PurchaseStatusPendingCodeDelivery,
	PurchaseStatusApproved,
	PurchaseStatusRejected,
	PurchaseStatusExpired,
}

// String implements fmt.Stringer.
func (s PurchaseStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PurchaseStatus.
func (s PurchaseStatus) IsValid() bool {
	for _, candidate := range validPurchaseStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePurchaseStatus converts raw input into a PurchaseStatus.
func ParsePurchaseStatus(value string) (PurchaseStatus, error) {
	for _, candidate := range validPurchaseStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase status %q", value)
}
