package session

import (
	"strconv"

	"github.com/angelmondragon/storefront/internal/gateway"
)

// Identity is either Guest (zero value) or an authenticated account.
type Identity struct {
	UserID      int64  `json:"id,omitempty"`
	Username    string `json:"username,omitempty"`
	Email       string `json:"email,omitempty"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

// Guest is the identity of a device without a valid token.
var Guest = Identity{}

func identityFrom(u gateway.User) Identity {
	return Identity{
		UserID:      u.ID,
		Username:    u.Username,
		Email:       u.Email,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
	}
}

func (i Identity) Authenticated() bool {
	return i.UserID > 0
}

func (i Identity) IsAdmin() bool {
	return i.Authenticated() && (i.IsStaff || i.IsSuperuser)
}

// Scope names the storage partition owned by this identity: the user id, or "guest".
func (i Identity) Scope() string {
	if !i.Authenticated() {
		return "guest"
	}
	return strconv.FormatInt(i.UserID, 10)
}
