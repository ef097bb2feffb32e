package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/kronos-crm/backend/internal/action"
	"github.com/kronos-crm/backend/internal/authz"
	"github.com/kronos-crm/backend/pkg/response"
)

// ContextOrg is the key for the resolved RBAC context in gin context.
const ContextOrg = "org_context"

// RequireOrg resolves the :slug organization, verifies the caller has an
// accepted membership with read access to resource, and stores the RBAC
// context for the handler. Call after JWT. Responds uniformly with 404
// whether the org is missing or the caller is not a member.
func RequireOrg(p *action.Pipeline, resource authz.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, err := p.Authorize(c.Request.Context(), CurrentUserID(c), c.Param("slug"), resource)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextOrg, ac)
		c.Next()
	}
}

// OrgContext returns the RBAC context stored by RequireOrg.
func OrgContext(c *gin.Context) authz.Context {
	v, ok := c.Get(ContextOrg)
	if !ok {
		return authz.Context{}
	}
	ac, _ := v.(authz.Context)
	return ac
}
