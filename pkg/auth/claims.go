package auth

import (
	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID string
	Roles  []enums.Role
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued by the marketplace backend.
type AccessTokenClaims struct {
	UserID string       `json:"user_id"`
	Roles  []enums.Role `json:"roles"`
	jwt.RegisteredClaims
}

// HasRole reports whether the token grants role.
func (c *AccessTokenClaims) HasRole(role enums.Role) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}
