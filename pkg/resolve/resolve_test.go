package resolve

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/cedar-policy/cedar-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/authzen"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/pip"
)

// countingProvider wraps a provider and records every FindEntities call.
type countingProvider struct {
	inner pip.Provider
	calls [][]cedar.EntityUID
	err   error
}

func (p *countingProvider) FindEntities(ctx context.Context, uids []cedar.EntityUID) ([]cedar.Entity, error) {
	p.calls = append(p.calls, uids)
	if p.err != nil {
		return nil, p.err
	}
	return p.inner.FindEntities(ctx, uids)
}

func newTodoProvider(t *testing.T) *countingProvider {
	t.Helper()
	mem, err := pip.NewMemoryPIPFromBasePath(filepath.Join("..", "testdata", "todo"))
	require.NoError(t, err)
	return &countingProvider{inner: mem}
}

func keys(entities []cedar.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = pip.EntityKey(e.UID)
	}
	return out
}

func assertUniqueKeys(t *testing.T, entities []cedar.Entity) {
	t.Helper()
	seen := map[string]bool{}
	for _, k := range keys(entities) {
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
}

func TestDetermineEntities_InlineNeverLooksUp(t *testing.T) {
	t.Parallel()
	t.Log("Testing: an entity with inline properties is never sent to the provider")

	provider := newTodoProvider(t)
	r := New(provider)

	got, err := r.DetermineEntities(context.Background(), []authzen.Entity{
		{Type: "identity", ID: "U1", Properties: map[string]any{"roles": []any{"admin"}}},
	})
	require.NoError(t, err)
	assert.Empty(t, provider.calls)

	require.Len(t, got, 1)
	assert.Equal(t, pip.NewUID("identity", "U1"), got[0].UID)
	assert.Equal(t, 0, got[0].Parents.Len())
	roles, ok := got[0].Attributes.Get("roles")
	require.True(t, ok)
	assert.True(t, roles.Equal(cedar.NewSet(cedar.String("admin"))))
}

func TestDetermineEntities_EmptyPropertiesCountAsInline(t *testing.T) {
	t.Parallel()

	provider := newTodoProvider(t)
	got, err := New(provider).DetermineEntities(context.Background(), []authzen.Entity{
		{Type: "identity", ID: "rick", Properties: map[string]any{}},
	})
	require.NoError(t, err)
	assert.Empty(t, provider.calls)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Attributes.Len(), "inline data is not merged with stored attributes")
}

func TestDetermineEntities_SingleProviderCall(t *testing.T) {
	t.Parallel()

	provider := newTodoProvider(t)
	got, err := New(provider).DetermineEntities(context.Background(), []authzen.Entity{
		{Type: "identity", ID: "rick"},
		{Type: "route", ID: "/admin"},
		{Type: "identity", ID: "rick"},
		{Type: "identity", ID: "ghost"},
	})
	require.NoError(t, err)

	require.Len(t, provider.calls, 1)
	assert.Len(t, provider.calls[0], 3, "duplicate request ids are sent once")
	assert.Equal(t, []string{
		`identity::"rick"`,
		`route::"/admin"`,
		`group::"citadel-admins"`,
		`group::"citadel"`,
	}, keys(got))
	assertUniqueKeys(t, got)
}

func TestDetermineEntities_InlineWinsOverLookup(t *testing.T) {
	t.Parallel()

	provider := newTodoProvider(t)
	got, err := New(provider).DetermineEntities(context.Background(), []authzen.Entity{
		{Type: "identity", ID: "morty"},
		{Type: "group", ID: "citadel", Properties: map[string]any{"inline": true}},
		{Type: "identity", ID: "rick"},
	})
	require.NoError(t, err)
	assertUniqueKeys(t, got)

	assert.Equal(t, `group::"citadel"`, keys(got)[0], "synthesized entities come first")
	inline, ok := got[0].Attributes.Get("inline")
	require.True(t, ok)
	assert.Equal(t, cedar.True, inline)
	assert.Contains(t, keys(got), `group::"citadel-admins"`)
}

func TestDetermineEntities_NoProvider(t *testing.T) {
	t.Parallel()

	got, err := New(nil).DetermineEntities(context.Background(), []authzen.Entity{
		{Type: "identity", ID: "rick"},
		{Type: "route", ID: "/todos", Properties: map[string]any{"public": true}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`route::"/todos"`}, keys(got))
}

func TestDetermineEntities_PlaceholderSkipped(t *testing.T) {
	t.Parallel()

	provider := newTodoProvider(t)
	got, err := New(provider).DetermineEntities(context.Background(), []authzen.Entity{{}})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, provider.calls)
}

func TestDetermineEntities_ProviderFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	provider := &countingProvider{err: cause}
	got, err := New(provider).DetermineEntities(context.Background(), []authzen.Entity{
		{Type: "identity", ID: "rick"},
	})
	assert.Nil(t, got)
	assert.Equal(t, authzen.CodeEntityResolution, authzen.ErrorCode(err))
	assert.ErrorIs(t, err, cause)
}

func TestDetermineEntities_InvalidProperties(t *testing.T) {
	t.Parallel()

	_, err := New(nil).DetermineEntities(context.Background(), []authzen.Entity{
		{Type: "identity", ID: "u1", Properties: map[string]any{"score": 1.5}},
	})
	assert.Equal(t, authzen.CodeValidation, authzen.ErrorCode(err))
	assert.ErrorContains(t, err, `properties of identity::"u1"`)
}

func TestExtractEntities_SharedDedupedSet(t *testing.T) {
	t.Parallel()
	t.Log("Testing: a batch resolves defaults and all items with one provider call")

	provider := newTodoProvider(t)
	rick := authzen.Entity{Type: "identity", ID: "rick"}
	morty := authzen.Entity{Type: "identity", ID: "morty"}
	todos := authzen.Entity{Type: "route", ID: "/todos"}
	admin := authzen.Entity{Type: "route", ID: "/admin"}

	req := &authzen.EvaluationsRequest{
		Subject: &rick,
		Evaluations: []authzen.EvaluationItem{
			{Resource: &todos},
			{Subject: &morty, Resource: &admin},
			{Subject: &rick, Resource: &todos},
		},
	}
	got, err := New(provider).ExtractEntities(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, provider.calls, 1)
	assertUniqueKeys(t, got)
	assert.ElementsMatch(t, []string{
		`identity::"rick"`,
		`identity::"morty"`,
		`route::"/todos"`,
		`route::"/admin"`,
		`group::"citadel-admins"`,
		`group::"citadel"`,
	}, keys(got))
}

func TestToRecord(t *testing.T) {
	t.Parallel()

	rec, err := ToRecord(map[string]any{
		"name":    "Rick",
		"age":     70,
		"admin":   true,
		"tags":    []any{"a", "b"},
		"address": map[string]any{"planet": "C-137"},
		"manager": map[string]any{"__entity": map[string]any{"type": "identity", "id": "beth"}},
		"ip":      map[string]any{"__extn": map[string]any{"fn": "ip", "arg": "10.0.0.1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, rec.Len())

	manager, ok := rec.Get("manager")
	require.True(t, ok)
	assert.Equal(t, pip.NewUID("identity", "beth"), manager)

	age, ok := rec.Get("age")
	require.True(t, ok)
	assert.Equal(t, cedar.Long(70), age)

	empty, err := ToRecord(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}
