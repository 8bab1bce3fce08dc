package pdp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/authzen"
)

func ids(es []authzen.Entity) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}

func TestResourceSearch(t *testing.T) {
	t.Parallel()
	p := newTodoPDP(t)

	resp, err := p.ResourceSearch(context.Background(), &authzen.ResourceSearchRequest{
		Subject:  identity("morty"),
		Action:   authzen.Action{Name: "GET"},
		Resource: authzen.SearchEntity{Type: "route"},
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Page)
	assert.Equal(t, []string{"/todos", "/users/{userId}"}, ids(resp.Results))
	for _, r := range resp.Results {
		assert.Equal(t, "route", r.Type)
	}
	assert.Len(t, p.audit.entries, 5, "every candidate is audited")
}

func TestSubjectSearch(t *testing.T) {
	t.Parallel()
	p := newTodoPDP(t)

	resp, err := p.SubjectSearch(context.Background(), &authzen.SubjectSearchRequest{
		Subject:  authzen.SearchEntity{Type: "identity"},
		Action:   authzen.Action{Name: "GET"},
		Resource: route("/admin"),
	})
	require.NoError(t, err)
	assert.Equal(t, []authzen.Entity{{Type: "identity", ID: "rick"}}, resp.Results)
}

func TestSubjectSearch_NoMatches(t *testing.T) {
	t.Parallel()
	p := newTodoPDP(t)

	resp, err := p.SubjectSearch(context.Background(), &authzen.SubjectSearchRequest{
		Subject:  authzen.SearchEntity{Type: "identity"},
		Action:   authzen.Action{Name: "PATCH"},
		Resource: route("/admin"),
	})
	require.NoError(t, err)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestActionSearch(t *testing.T) {
	t.Parallel()
	p := newTodoPDP(t)

	resp, err := p.ActionSearch(context.Background(), &authzen.ActionSearchRequest{
		Subject:  identity("rick"),
		Resource: route("/todos"),
	})
	require.NoError(t, err)
	assert.Equal(t, []authzen.ActionResult{{Name: "GET"}, {Name: "POST"}}, resp.Results)
}

func TestResourceSearch_Paging(t *testing.T) {
	t.Parallel()
	t.Log("Testing: walking pages of two candidates yields the same results as one page")
	p := newTodoPDP(t, func(c *Config) { c.PageSize = 2 })

	var got []string
	var page *authzen.Page
	pages := 0
	for {
		resp, err := p.ResourceSearch(context.Background(), &authzen.ResourceSearchRequest{
			Subject:  identity("morty"),
			Action:   authzen.Action{Name: "GET"},
			Resource: authzen.SearchEntity{Type: "route"},
			Page:     page,
		})
		require.NoError(t, err)
		got = append(got, ids(resp.Results)...)
		pages++
		if resp.Page == nil {
			break
		}
		require.NotEmpty(t, resp.Page.NextToken)
		page = resp.Page
	}
	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"/todos", "/users/{userId}"}, got)
}

func TestSearch_InvalidPageToken(t *testing.T) {
	t.Parallel()
	p := newTodoPDP(t)

	for _, token := range []string{"%%%", "LTE", "YWJj"} {
		_, err := p.ResourceSearch(context.Background(), &authzen.ResourceSearchRequest{
			Subject:  identity("morty"),
			Action:   authzen.Action{Name: "GET"},
			Resource: authzen.SearchEntity{Type: "route"},
			Page:     &authzen.Page{NextToken: token},
		})
		assert.Equal(t, authzen.CodeValidation, authzen.ErrorCode(err), "token %q", token)
	}
}

func TestSearch_PastEndIsEmpty(t *testing.T) {
	t.Parallel()
	p := newTodoPDP(t)

	resp, err := p.ResourceSearch(context.Background(), &authzen.ResourceSearchRequest{
		Subject:  identity("morty"),
		Action:   authzen.Action{Name: "GET"},
		Resource: authzen.SearchEntity{Type: "route"},
		Page:     &authzen.Page{NextToken: encodePageToken(100)},
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Page)
	assert.Empty(t, resp.Results)
}

func TestSearch_Unsupported(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Engine: &fakeEngine{}, Audit: NopAuditLogger{}})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = p.SubjectSearch(ctx, &authzen.SubjectSearchRequest{
		Subject: authzen.SearchEntity{Type: "identity"}, Action: authzen.Action{Name: "GET"}, Resource: route("/todos"),
	})
	assert.Equal(t, authzen.CodeUnsupportedOperation, authzen.ErrorCode(err))

	_, err = p.ResourceSearch(ctx, &authzen.ResourceSearchRequest{
		Subject: identity("rick"), Action: authzen.Action{Name: "GET"}, Resource: authzen.SearchEntity{Type: "route"},
	})
	assert.Equal(t, authzen.CodeUnsupportedOperation, authzen.ErrorCode(err))

	withProvider, err := New(Config{Engine: &fakeEngine{}, Provider: failingProvider{}, Audit: NopAuditLogger{}})
	require.NoError(t, err)
	_, err = withProvider.ActionSearch(ctx, &authzen.ActionSearchRequest{Subject: identity("rick"), Resource: route("/todos")})
	assert.Equal(t, authzen.CodeUnsupportedOperation, authzen.ErrorCode(err))
	assert.ErrorContains(t, err, "AuthZEN action search not implemented")
}

func TestPaginate(t *testing.T) {
	t.Parallel()

	items := []string{"a", "b", "c"}
	got, next, err := paginate(items, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
	require.NotNil(t, next)

	got, next, err = paginate(items, next, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, got)
	assert.Nil(t, next)
}
