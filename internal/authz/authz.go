// Package authz is the RBAC engine: a static decision table over
// (role, resource, action). Every mutating operation goes through the same
// checkpoint here, so policy changes and regressions are caught in one place.
package authz

import (
	"github.com/google/uuid"

	"github.com/kronos-crm/backend/pkg/apperr"
)

// Role is a user's role within one organization.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleMember
}

// Resource is a kind of tenant-scoped resource.
type Resource string

const (
	ResourceOrganization Resource = "organization"
	ResourceMember       Resource = "member"
	ResourceContact      Resource = "contact"
	ResourceCompany      Resource = "company"
	ResourceDeal         Resource = "deal"
	ResourceProduct      Resource = "product"
	ResourceTask         Resource = "task"
	ResourceAgent        Resource = "agent"
	ResourceInbox        Resource = "inbox"
)

// Action is an operation on a resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Resources and Actions enumerate the closed decision-table axes.
var (
	Resources = []Resource{
		ResourceOrganization, ResourceMember, ResourceContact, ResourceCompany,
		ResourceDeal, ResourceProduct, ResourceTask, ResourceAgent, ResourceInbox,
	}
	Actions = []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
	Roles   = []Role{RoleOwner, RoleAdmin, RoleMember}
)

// sensitiveDelete lists resources whose deletion is reserved for admin/owner.
var sensitiveDelete = map[Resource]bool{
	ResourceContact:      true,
	ResourceCompany:      true,
	ResourceProduct:      true,
	ResourceOrganization: true,
	ResourceMember:       true,
}

type tableKey struct {
	role     Role
	resource Resource
	action   Action
}

// decisions is the full (role, resource, action) -> allow table, built once.
var decisions = buildTable()

func buildTable() map[tableKey]bool {
	t := make(map[tableKey]bool, len(Roles)*len(Resources)*len(Actions))
	for _, role := range Roles {
		for _, res := range Resources {
			for _, act := range Actions {
				allowed := false
				switch role {
				case RoleOwner, RoleAdmin:
					allowed = true
				case RoleMember:
					allowed = !(act == ActionDelete && sensitiveDelete[res])
				}
				t[tableKey{role, res, act}] = allowed
			}
		}
	}
	return t
}

// Context is the request-scoped RBAC context, constructed once per request by
// the membership resolver and threaded through the action pipeline.
type Context struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	Role   Role
}

// CanPerform reports whether the context's role may perform action on
// resource. Pure table lookup: no I/O, no side effects, deterministic.
func CanPerform(ctx Context, resource Resource, action Action) bool {
	return decisions[tableKey{ctx.Role, resource, action}]
}

// Require turns a deny into a fatal authorization error. Invoked at the top
// of every mutating operation, before any persisted state is touched.
func Require(allowed bool) error {
	if !allowed {
		return apperr.ErrPermissionDenied
	}
	return nil
}
