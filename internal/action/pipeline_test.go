package action

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kronos-crm/backend/internal/authz"
	"github.com/kronos-crm/backend/internal/quota"
	"github.com/kronos-crm/backend/pkg/apperr"
)

type fakeResolver struct {
	ctx authz.Context
	ok  bool
	err error
}

func (f *fakeResolver) ResolveMembership(_ context.Context, userID uuid.UUID, _ string) (authz.Context, bool, error) {
	if f.err != nil {
		return authz.Context{}, false, f.err
	}
	ac := f.ctx
	ac.UserID = userID
	return ac, f.ok, nil
}

type fakeQuota struct {
	usage quota.Usage
	err   error
	calls int
}

func (f *fakeQuota) Check(_ context.Context, _ uuid.UUID, e quota.Entity) (quota.Usage, error) {
	f.calls++
	if f.err != nil {
		return quota.Usage{}, f.err
	}
	return f.usage, nil
}

type fakeInvalidator struct {
	tags []string
	err  error
}

func (f *fakeInvalidator) Invalidate(_ context.Context, tags ...string) error {
	f.tags = append(f.tags, tags...)
	return f.err
}

func newTestPipeline(role authz.Role, usage quota.Usage) (*Pipeline, *fakeQuota, *fakeInvalidator) {
	resolver := &fakeResolver{ctx: authz.Context{OrgID: uuid.New(), Role: role}, ok: true}
	qc := &fakeQuota{usage: usage}
	inv := &fakeInvalidator{}
	return NewPipeline(resolver, qc, inv, nil), qc, inv
}

func okUsage() quota.Usage {
	return quota.NewUsage(quota.EntityContact, 0, 100)
}

func TestRunHappyPath(t *testing.T) {
	p, _, inv := newTestPipeline(authz.RoleAdmin, okUsage())
	mutated := false

	err := p.Run(context.Background(), Request{
		UserID:      uuid.New(),
		OrgSlug:     "acme",
		Resource:    authz.ResourceContact,
		Action:      authz.ActionCreate,
		QuotaEntity: quota.EntityContact,
		Mutate: func(ctx context.Context, ac authz.Context) error {
			mutated = true
			require.NotEqual(t, uuid.Nil, ac.OrgID)
			return nil
		},
		Tags: func(ac authz.Context) []string { return []string{"contacts:" + ac.OrgID.String()} },
	})
	require.NoError(t, err)
	assert.True(t, mutated)
	assert.Len(t, inv.tags, 1)
}

func TestRunUnauthenticated(t *testing.T) {
	p, _, inv := newTestPipeline(authz.RoleAdmin, okUsage())
	mutated := false

	err := p.Run(context.Background(), Request{
		UserID:  uuid.Nil,
		OrgSlug: "acme",
		Mutate:  func(ctx context.Context, ac authz.Context) error { mutated = true; return nil },
	})
	assert.ErrorIs(t, err, apperr.ErrAuthenticationRequired)
	assert.False(t, mutated)
	assert.Empty(t, inv.tags)
}

func TestRunValidationRunsBeforeAuthentication(t *testing.T) {
	p, _, _ := newTestPipeline(authz.RoleAdmin, okUsage())

	err := p.Run(context.Background(), Request{
		UserID:   uuid.Nil,
		Validate: func() error { return apperr.Validation("bad input") },
		Mutate:   func(ctx context.Context, ac authz.Context) error { return nil },
	})
	var ve *apperr.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestRunDenialPerformsNoWork(t *testing.T) {
	p, qc, inv := newTestPipeline(authz.RoleMember, okUsage())
	mutated := false

	err := p.Run(context.Background(), Request{
		UserID:   uuid.New(),
		OrgSlug:  "acme",
		Resource: authz.ResourceContact,
		Action:   authz.ActionDelete, // sensitive delete, denied to member
		Mutate:   func(ctx context.Context, ac authz.Context) error { mutated = true; return nil },
		Tags:     func(ac authz.Context) []string { return []string{"contacts:x"} },
	})
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	assert.False(t, mutated)
	assert.Empty(t, inv.tags)
	assert.Zero(t, qc.calls)
}

func TestRunNonMemberGetsNotFound(t *testing.T) {
	resolver := &fakeResolver{ok: false}
	p := NewPipeline(resolver, &fakeQuota{usage: okUsage()}, &fakeInvalidator{}, nil)

	err := p.Run(context.Background(), Request{
		UserID:   uuid.New(),
		OrgSlug:  "other-org",
		Resource: authz.ResourceContact,
		Action:   authz.ActionUpdate,
		Mutate:   func(ctx context.Context, ac authz.Context) error { return nil },
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRunQuotaAtLimitBlocksCreate(t *testing.T) {
	p, _, inv := newTestPipeline(authz.RoleAdmin, quota.NewUsage(quota.EntityContact, 10, 10))
	mutated := false

	err := p.Run(context.Background(), Request{
		UserID:      uuid.New(),
		OrgSlug:     "acme",
		Resource:    authz.ResourceContact,
		Action:      authz.ActionCreate,
		QuotaEntity: quota.EntityContact,
		Mutate:      func(ctx context.Context, ac authz.Context) error { mutated = true; return nil },
		Tags:        func(ac authz.Context) []string { return []string{"contacts:x"} },
	})
	var qe *apperr.QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 10, qe.Current)
	assert.Equal(t, 10, qe.Limit)
	assert.False(t, mutated)
	assert.Empty(t, inv.tags)
}

func TestRunUnlimitedPlanPassesQuota(t *testing.T) {
	p, _, _ := newTestPipeline(authz.RoleAdmin, quota.NewUsage(quota.EntityContact, 1_000_000, quota.Unlimited))
	mutated := false

	err := p.Run(context.Background(), Request{
		UserID:      uuid.New(),
		OrgSlug:     "acme",
		Resource:    authz.ResourceContact,
		Action:      authz.ActionCreate,
		QuotaEntity: quota.EntityContact,
		Mutate:      func(ctx context.Context, ac authz.Context) error { mutated = true; return nil },
	})
	require.NoError(t, err)
	assert.True(t, mutated)
}

func TestRunQuotaSkippedForUpdates(t *testing.T) {
	p, qc, _ := newTestPipeline(authz.RoleAdmin, quota.NewUsage(quota.EntityContact, 10, 10))

	err := p.Run(context.Background(), Request{
		UserID:      uuid.New(),
		OrgSlug:     "acme",
		Resource:    authz.ResourceContact,
		Action:      authz.ActionUpdate,
		QuotaEntity: quota.EntityContact,
		Mutate:      func(ctx context.Context, ac authz.Context) error { return nil },
	})
	require.NoError(t, err)
	assert.Zero(t, qc.calls, "quota applies to creates only")
}

func TestRunQuotaSkippedForEntityNone(t *testing.T) {
	p, qc, _ := newTestPipeline(authz.RoleAdmin, okUsage())

	err := p.Run(context.Background(), Request{
		UserID:      uuid.New(),
		OrgSlug:     "acme",
		Resource:    authz.ResourceTask,
		Action:      authz.ActionCreate,
		QuotaEntity: quota.EntityNone,
		Mutate:      func(ctx context.Context, ac authz.Context) error { return nil },
	})
	require.NoError(t, err)
	assert.Zero(t, qc.calls)
}

func TestRunNonOrgScopedSkipsGuards(t *testing.T) {
	// Resolver errors would fail the run if membership were resolved.
	resolver := &fakeResolver{err: errors.New("must not be called")}
	qc := &fakeQuota{}
	p := NewPipeline(resolver, qc, &fakeInvalidator{}, nil)

	err := p.Run(context.Background(), Request{
		UserID: uuid.New(),
		Mutate: func(ctx context.Context, ac authz.Context) error { return nil },
	})
	require.NoError(t, err)
	assert.Zero(t, qc.calls)
}

func TestRunMutateErrorSkipsInvalidation(t *testing.T) {
	p, _, inv := newTestPipeline(authz.RoleAdmin, okUsage())
	boom := errors.New("insert failed")

	err := p.Run(context.Background(), Request{
		UserID:   uuid.New(),
		OrgSlug:  "acme",
		Resource: authz.ResourceContact,
		Action:   authz.ActionUpdate,
		Mutate:   func(ctx context.Context, ac authz.Context) error { return boom },
		Tags:     func(ac authz.Context) []string { return []string{"contacts:x"} },
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, inv.tags)
}

func TestRunInvalidationFailureDoesNotFailAction(t *testing.T) {
	resolver := &fakeResolver{ctx: authz.Context{OrgID: uuid.New(), Role: authz.RoleAdmin}, ok: true}
	inv := &fakeInvalidator{err: errors.New("redis down")}
	p := NewPipeline(resolver, &fakeQuota{usage: okUsage()}, inv, nil)

	err := p.Run(context.Background(), Request{
		UserID:   uuid.New(),
		OrgSlug:  "acme",
		Resource: authz.ResourceContact,
		Action:   authz.ActionUpdate,
		Mutate:   func(ctx context.Context, ac authz.Context) error { return nil },
		Tags:     func(ac authz.Context) []string { return []string{"contacts:x"} },
	})
	assert.NoError(t, err, "the mutation is durable; staleness is bounded by TTL")
}

func TestAuthorize(t *testing.T) {
	orgID := uuid.New()
	resolver := &fakeResolver{ctx: authz.Context{OrgID: orgID, Role: authz.RoleMember}, ok: true}
	p := NewPipeline(resolver, &fakeQuota{}, &fakeInvalidator{}, nil)

	ac, err := p.Authorize(context.Background(), uuid.New(), "acme", authz.ResourceContact)
	require.NoError(t, err)
	assert.Equal(t, orgID, ac.OrgID)

	_, err = p.Authorize(context.Background(), uuid.Nil, "acme", authz.ResourceContact)
	assert.ErrorIs(t, err, apperr.ErrAuthenticationRequired)

	resolver.ok = false
	_, err = p.Authorize(context.Background(), uuid.New(), "acme", authz.ResourceContact)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
