package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidRole(t *testing.T) {
	for _, r := range []Role{RoleAdmin, RoleMinter, RolePriceFeed, RoleRedeemer} {
		assert.True(t, ValidRole(r), string(r))
	}
	assert.False(t, ValidRole("superuser"))
	assert.False(t, ValidRole(""))
	assert.False(t, ValidRole("Admin"), "roles are case sensitive")
}
