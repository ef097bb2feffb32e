// Package action composes the fixed execution order every mutating operation
// goes through: validate -> authenticate -> resolve membership -> require
// permission -> check quota (creates only) -> mutate -> invalidate tags.
// Each step fails fast; nothing is persisted before the mutation step, so no
// compensating rollback is needed.
package action

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kronos-crm/backend/internal/authz"
	"github.com/kronos-crm/backend/internal/quota"
	"github.com/kronos-crm/backend/pkg/apperr"
)

// MembershipResolver resolves (user, org slug) to an RBAC context. The bool
// result is false both when the org does not exist and when the user has no
// accepted membership; callers must not distinguish the two.
type MembershipResolver interface {
	ResolveMembership(ctx context.Context, userID uuid.UUID, orgSlug string) (authz.Context, bool, error)
}

// QuotaChecker reports live usage against the organization's plan limit.
type QuotaChecker interface {
	Check(ctx context.Context, orgID uuid.UUID, entity quota.Entity) (quota.Usage, error)
}

// Invalidator invalidates cache tags after a successful mutation.
type Invalidator interface {
	Invalidate(ctx context.Context, tags ...string) error
}

// Request describes one mutating operation.
type Request struct {
	// UserID is the authenticated caller; uuid.Nil means unauthenticated.
	UserID uuid.UUID
	// OrgSlug scopes the action to a tenant. Empty for non-org-scoped
	// actions (org creation, invite acceptance), which skip membership,
	// RBAC, and quota.
	OrgSlug string

	Resource authz.Resource
	Action   authz.Action
	// QuotaEntity is checked for create actions only; EntityNone skips it.
	QuotaEntity quota.Entity

	// Validate checks the already-bound input payload. Runs first.
	Validate func() error
	// Mutate performs the persisted change. Runs only after every guard
	// has passed.
	Mutate func(ctx context.Context, ac authz.Context) error
	// Tags computes the cache tags the mutation could stale.
	Tags func(ac authz.Context) []string
}

// Pipeline wires the resolver, quota checker, and cache invalidator in front
// of every mutation.
type Pipeline struct {
	resolver MembershipResolver
	quota    QuotaChecker
	cache    Invalidator
	logger   *zap.Logger
}

// NewPipeline creates the action pipeline.
func NewPipeline(resolver MembershipResolver, qc QuotaChecker, inv Invalidator, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{resolver: resolver, quota: qc, cache: inv, logger: logger}
}

// Run executes the pipeline for one request. The first failing step
// short-circuits: a denial or quota failure performs zero store writes and
// zero cache invalidations.
func (p *Pipeline) Run(ctx context.Context, req Request) error {
	if req.Validate != nil {
		if err := req.Validate(); err != nil {
			return err
		}
	}

	if req.UserID == uuid.Nil {
		return apperr.ErrAuthenticationRequired
	}

	ac := authz.Context{UserID: req.UserID}
	if req.OrgSlug != "" {
		resolved, ok, err := p.resolver.ResolveMembership(ctx, req.UserID, req.OrgSlug)
		if err != nil {
			return apperr.External("membership lookup", err)
		}
		if !ok {
			return apperr.ErrNotFound
		}
		ac = resolved

		if err := authz.Require(authz.CanPerform(ac, req.Resource, req.Action)); err != nil {
			return err
		}

		if req.Action == authz.ActionCreate && req.QuotaEntity != quota.EntityNone {
			usage, err := p.quota.Check(ctx, ac.OrgID, req.QuotaEntity)
			if err != nil {
				return err
			}
			if !usage.WithinQuota {
				return usage.Exceeded()
			}
		}
	}

	if err := req.Mutate(ctx, ac); err != nil {
		return err
	}

	if req.Tags != nil {
		if t := req.Tags(ac); len(t) > 0 {
			// The mutation is durable at this point; a failed
			// invalidation is logged and left to the TTL backstop.
			if err := p.cache.Invalidate(ctx, t...); err != nil {
				p.logger.Warn("tag invalidation failed",
					zap.Strings("tags", t), zap.Error(err))
			}
		}
	}
	return nil
}

// Authorize resolves membership and checks read permission for org-scoped
// reads. Handlers use it for cached queries that bypass Run.
func (p *Pipeline) Authorize(ctx context.Context, userID uuid.UUID, orgSlug string, resource authz.Resource) (authz.Context, error) {
	if userID == uuid.Nil {
		return authz.Context{}, apperr.ErrAuthenticationRequired
	}
	ac, ok, err := p.resolver.ResolveMembership(ctx, userID, orgSlug)
	if err != nil {
		return authz.Context{}, apperr.External("membership lookup", err)
	}
	if !ok {
		return authz.Context{}, apperr.ErrNotFound
	}
	if err := authz.Require(authz.CanPerform(ac, resource, authz.ActionRead)); err != nil {
		return authz.Context{}, err
	}
	return ac, nil
}
