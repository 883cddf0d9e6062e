package enums

import "fmt"

// RechargeCodeStatus tracks where a code sits in its lifecycle.
type RechargeCodeStatus string

const (
	RechargeCodeStatusAvailable RechargeCodeStatus = "available"
	RechargeCodeStatusSold      RechargeCodeStatus = "sold"
	RechargeCodeStatusExpired   RechargeCodeStatus = "expired"
)

var validRechargeCodeStatuses = []RechargeCodeStatus{
	RechargeCodeStatusAvailable,
	RechargeCodeStatusSold,
	RechargeCodeStatusExpired,
}

// String implements fmt.Stringer.
func (s RechargeCodeStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known RechargeCodeStatus.
func (s RechargeCodeStatus) IsValid() bool {
	for _, candidate := range validRechargeCodeStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether a code may move from s to next.
// Codes only ever leave the available state.
func (s RechargeCodeStatus) CanTransitionTo(next RechargeCodeStatus) bool {
	return s == RechargeCodeStatusAvailable &&
		(next == RechargeCodeStatusSold || next == RechargeCodeStatusExpired)
}

// ParseRechargeCodeStatus converts raw input into a RechargeCodeStatus.
func ParseRechargeCodeStatus(value string) (RechargeCodeStatus, error) {
	for _, candidate := range validRechargeCodeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid recharge code status %q", value)
}
