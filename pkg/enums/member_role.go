package enums

import "fmt"

// MemberRole represents the caller's role in the reseller hierarchy.
type MemberRole string

const (
	MemberRoleAdmin          MemberRole = "admin"
	MemberRoleMasterReseller MemberRole = "master_reseller"
	MemberRoleReseller       MemberRole = "reseller"
	MemberRoleCustomer       MemberRole = "customer"
)

var validMemberRoles = []MemberRole{
	MemberRoleAdmin,
	MemberRoleMasterReseller,
	MemberRoleReseller,
	MemberRoleCustomer,
}

// String implements fmt.Stringer.
func (m MemberRole) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MemberRole.
func (m MemberRole) IsValid() bool {
	for _, candidate := range validMemberRoles {
		if candidate == m {
			return true
		}
	}
	return false
}

// CanSell reports whether the role may drive checkout on behalf of buyers.
func (m MemberRole) CanSell() bool {
	switch m {
	case MemberRoleAdmin, MemberRoleMasterReseller, MemberRoleReseller:
		return true
	default:
		return false
	}
}

// ParseMemberRole converts raw input into a MemberRole.
func ParseMemberRole(value string) (MemberRole, error) {
	for _, candidate := range validMemberRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member role %q", value)
}
