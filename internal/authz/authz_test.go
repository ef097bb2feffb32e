package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerAndAdminAllowEverything(t *testing.T) {
	for _, role := range []Role{RoleOwner, RoleAdmin} {
		ctx := Context{Role: role}
		for _, res := range Resources {
			for _, act := range Actions {
				assert.True(t, CanPerform(ctx, res, act),
					"%s should be allowed %s on %s", role, act, res)
			}
		}
	}
}

func TestMemberDeniedSensitiveDeletes(t *testing.T) {
	ctx := Context{Role: RoleMember}

	denied := []Resource{ResourceContact, ResourceCompany, ResourceProduct, ResourceOrganization, ResourceMember}
	for _, res := range denied {
		assert.False(t, CanPerform(ctx, res, ActionDelete), "member delete on %s", res)
	}

	allowed := []Resource{ResourceDeal, ResourceTask, ResourceAgent, ResourceInbox}
	for _, res := range allowed {
		assert.True(t, CanPerform(ctx, res, ActionDelete), "member delete on %s", res)
	}
}

func TestMemberAllowedNonDeleteActions(t *testing.T) {
	ctx := Context{Role: RoleMember}
	for _, res := range Resources {
		for _, act := range []Action{ActionCreate, ActionRead, ActionUpdate} {
			assert.True(t, CanPerform(ctx, res, act), "member %s on %s", act, res)
		}
	}
}

func TestUnknownRoleDenied(t *testing.T) {
	ctx := Context{Role: Role("viewer")}
	for _, res := range Resources {
		for _, act := range Actions {
			assert.False(t, CanPerform(ctx, res, act))
		}
	}
}

func TestCanPerformDeterministic(t *testing.T) {
	ctx := Context{Role: RoleMember}
	first := CanPerform(ctx, ResourceContact, ActionDelete)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, CanPerform(ctx, ResourceContact, ActionDelete))
	}
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleOwner.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.True(t, RoleMember.Valid())
	assert.False(t, Role("superuser").Valid())
	assert.False(t, Role("").Valid())
}

func TestRequire(t *testing.T) {
	assert.NoError(t, Require(true))
	assert.Error(t, Require(false))
}
