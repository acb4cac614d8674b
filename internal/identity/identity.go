package identity

import (
	"strings"
	"time"

	"github.com/angelmondragon/farmgate-checkout/internal/cart"
	"github.com/angelmondragon/farmgate-checkout/pkg/auth"
	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
)

// Identity is the caller behind one request. The zero value is a guest.
type Identity struct {
	UserID      string
	Roles       []enums.Role
	SessionID   string
	AccessToken string
	ExpiresAt   time.Time
}

// Guest returns the anonymous identity.
func Guest() Identity {
	return Identity{}
}

// FromClaims builds an identity from a verified access token.
func FromClaims(claims *auth.AccessTokenClaims, token string) Identity {
	if claims == nil {
		return Guest()
	}
	id := Identity{
		UserID:      strings.TrimSpace(claims.UserID),
		Roles:       append([]enums.Role(nil), claims.Roles...),
		SessionID:   claims.ID,
		AccessToken: token,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id
}

// Key is the cart identity key: the user id, or the guest key.
func (i Identity) Key() string {
	if i.IsGuest() {
		return cart.GuestKey
	}
	return i.UserID
}

func (i Identity) IsGuest() bool {
	return strings.TrimSpace(i.UserID) == ""
}

func (i Identity) HasRole(role enums.Role) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CanBuy reports the buyer capability.
func (i Identity) CanBuy() bool {
	return !i.IsGuest() && i.HasRole(enums.RoleBuyer)
}
