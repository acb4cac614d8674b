package enums

import "fmt"

// Role is a marketplace capability carried in the access token.
type Role string

const (
	RoleLandowner          Role = "landowner"
	RoleBuyer              Role = "buyer"
	RoleFieldSupervisor    Role = "field_supervisor"
	RoleOperationalManager Role = "operational_manager"
	RoleFinancialManager   Role = "financial_manager"
)

var validRoles = []Role{
	RoleLandowner,
	RoleBuyer,
	RoleFieldSupervisor,
	RoleOperationalManager,
	RoleFinancialManager,
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
