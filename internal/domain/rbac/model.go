package rbac

import (
	"errors"
	"time"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleMinter    Role = "minter"
	RolePriceFeed Role = "pricefeed"
	RoleRedeemer  Role = "redeemer"
)

var ErrUnauthorized = errors.New("rbac: unauthorized")

// Grant is one row of the capability table: an account holding a role.
type Grant struct {
	Account   string
	Role      Role
	GrantedBy string
	CreatedAt time.Time
}

func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleMinter, RolePriceFeed, RoleRedeemer:
		return true
	}
	return false
}
