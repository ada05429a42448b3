package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/persona/internal/identity"
)

type directTable map[string]string

func (d directTable) OwnerOfActor(_ context.Context, actorID string) (string, error) {
	return d[actorID], nil
}

type actorTable map[string]identity.ActorRecord

func (a actorTable) ActorRecord(_ context.Context, actorID string) (identity.ActorRecord, error) {
	return a[actorID], nil
}

type vportTable map[string]string

func (v vportTable) OwnerOfVport(_ context.Context, vportID string) (string, error) {
	return v[vportID], nil
}

type brokenLookup struct{}

func (brokenLookup) OwnerOfActor(context.Context, string) (string, error) {
	return "", errors.New("timeout")
}

func newOwnershipResolver() *Resolver {
	return New(Deps{
		Ownership: directTable{"a-direct": "owner-direct"},
		Actors: actorTable{
			"a-direct":   {ActorID: "a-direct", Kind: identity.KindCitizen, PrincipalID: "someone-else"},
			"a-citizen":  {ActorID: "a-citizen", Kind: identity.KindCitizen, PrincipalID: "u-embedded"},
			"a-vport":    {ActorID: "a-vport", Kind: identity.KindVport, VportID: "v1"},
			"a-orphan":   {ActorID: "a-orphan", Kind: identity.KindVport, VportID: "v-gone"},
			"a-citizen0": {ActorID: "a-citizen0", Kind: identity.KindCitizen},
		},
		Vports: vportTable{"v1": "u-vport-owner"},
	})
}

func TestOwnerOf_FallbackChain(t *testing.T) {
	r := newOwnershipResolver()
	ctx := context.Background()

	tests := []struct {
		name    string
		actorID string
		want    string
	}{
		{"direct row wins", "a-direct", "owner-direct"},
		{"embedded citizen owner", "a-citizen", "u-embedded"},
		{"vport recorded owner", "a-vport", "u-vport-owner"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.OwnerOf(ctx, tc.actorID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestOwnerOf_AllSourcesEmpty(t *testing.T) {
	r := newOwnershipResolver()
	ctx := context.Background()

	for _, actorID := range []string{"a-orphan", "a-citizen0", "a-unknown", ""} {
		got, err := r.OwnerOf(ctx, actorID)
		assert.Empty(t, got)
		assert.True(t, identity.IsUnresolvableOwnership(err), "actor %q: %v", actorID, err)
	}
}

func TestOwnerOf_FailingTierFallsThrough(t *testing.T) {
	r := New(Deps{
		Ownership: brokenLookup{},
		Actors:    actorTable{"a1": {ActorID: "a1", Kind: identity.KindCitizen, PrincipalID: "u1"}},
	})
	got, err := r.OwnerOf(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got)
}

func TestAuthorize(t *testing.T) {
	r := newOwnershipResolver()
	ctx := context.Background()

	assert.NoError(t, r.Authorize(ctx, "a-vport", "u-vport-owner"))

	err := r.Authorize(ctx, "a-vport", "intruder")
	assert.True(t, identity.IsForbidden(err))

	err = r.Authorize(ctx, "a-orphan", "u-vport-owner")
	assert.True(t, identity.IsForbidden(err))
	assert.True(t, identity.IsUnresolvableOwnership(err))
}
