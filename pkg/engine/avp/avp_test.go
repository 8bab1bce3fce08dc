package avp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/verifiedpermissions"
	"github.com/aws/aws-sdk-go-v2/service/verifiedpermissions/types"
	"github.com/cedar-policy/cedar-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/authzen"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/engine"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/pip"
)

// fakeAVP allows a request when its resource id is in allowed.
type fakeAVP struct {
	mu         sync.Mutex
	allowed    map[string]bool
	batchSizes []int
	entities   []string
	contexts   []string
	failBatch  int // 1-based batch call to fail, 0 = never
	dropResult bool
	err        error
}

func (f *fakeAVP) decide(resource *types.EntityIdentifier) (types.Decision, []types.DeterminingPolicyItem) {
	if f.allowed[aws.ToString(resource.EntityId)] {
		return types.DecisionAllow, []types.DeterminingPolicyItem{
			{PolicyId: aws.String("SPzzz")},
			{PolicyId: aws.String("SPaaa")},
		}
	}
	return types.DecisionDeny, nil
}

func (f *fakeAVP) IsAuthorized(_ context.Context, in *verifiedpermissions.IsAuthorizedInput, _ ...func(*verifiedpermissions.Options)) (*verifiedpermissions.IsAuthorizedOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.entities = append(f.entities, in.Entities.(*types.EntitiesDefinitionMemberCedarJson).Value)
	f.contexts = append(f.contexts, in.Context.(*types.ContextDefinitionMemberCedarJson).Value)
	decision, policies := f.decide(in.Resource)
	return &verifiedpermissions.IsAuthorizedOutput{Decision: decision, DeterminingPolicies: policies}, nil
}

func (f *fakeAVP) BatchIsAuthorized(_ context.Context, in *verifiedpermissions.BatchIsAuthorizedInput, _ ...func(*verifiedpermissions.Options)) (*verifiedpermissions.BatchIsAuthorizedOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchSizes = append(f.batchSizes, len(in.Requests))
	if f.failBatch > 0 && len(f.batchSizes) == f.failBatch {
		return nil, errors.New("ThrottlingException")
	}
	if len(in.Requests) > MaxBatchRequests {
		return nil, errors.New("ValidationException: too many requests")
	}
	out := &verifiedpermissions.BatchIsAuthorizedOutput{}
	for _, r := range in.Requests {
		decision, policies := f.decide(r.Resource)
		out.Results = append(out.Results, types.BatchIsAuthorizedOutputItem{
			Request:             &r,
			Decision:            decision,
			DeterminingPolicies: policies,
		})
	}
	if f.dropResult {
		out.Results = out.Results[1:]
	}
	return out, nil
}

func newTestEngine(t *testing.T, fake *fakeAVP) *Engine {
	t.Helper()
	e, err := New(fake, Config{PolicyStoreID: "ps-123", Concurrency: 2})
	require.NoError(t, err)
	return e
}

func queries(n int) []engine.Query {
	qs := make([]engine.Query, n)
	for i := range qs {
		qs[i] = engine.Query{
			Principal: pip.NewUID("identity", "rick"),
			Action:    pip.NewUID("Action", "GET"),
			Resource:  pip.NewUID("route", fmt.Sprintf("r%d", i)),
		}
	}
	return qs
}

func TestNew_RequiresPolicyStore(t *testing.T) {
	t.Parallel()

	_, err := New(&fakeAVP{}, Config{})
	assert.ErrorContains(t, err, "policy store id is required")
}

func TestAuthorize_SendsCedarJSON(t *testing.T) {
	t.Parallel()

	fake := &fakeAVP{allowed: map[string]bool{"r0": true}}
	e := newTestEngine(t, fake)

	entities := []cedar.Entity{{
		UID:        pip.NewUID("identity", "rick"),
		Attributes: cedar.NewRecord(cedar.RecordMap{"name": cedar.String("Rick")}),
	}}
	reqCtx := cedar.NewRecord(cedar.RecordMap{"ip": cedar.String("10.0.0.1")})

	answer, err := e.Authorize(context.Background(), queries(1)[0], reqCtx, entities)
	require.NoError(t, err)
	assert.True(t, answer.Allow)
	assert.Equal(t, []string{"SPaaa", "SPzzz"}, answer.Reasons, "determining policies are sorted")

	require.Len(t, fake.entities, 1)
	var sent []map[string]any
	require.NoError(t, json.Unmarshal([]byte(fake.entities[0]), &sent))
	require.Len(t, sent, 1)
	assert.Equal(t, map[string]any{"name": "Rick"}, sent[0]["attrs"])
	assert.JSONEq(t, `{"ip":"10.0.0.1"}`, fake.contexts[0])
}

func TestAuthorize_EmptyEntities(t *testing.T) {
	t.Parallel()

	fake := &fakeAVP{}
	e := newTestEngine(t, fake)

	answer, err := e.Authorize(context.Background(), queries(1)[0], cedar.NewRecord(nil), nil)
	require.NoError(t, err)
	assert.False(t, answer.Allow)
	assert.Empty(t, answer.Reasons)
	assert.Equal(t, "[]", fake.entities[0])
}

func TestAuthorize_ClientFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("AccessDeniedException")
	e := newTestEngine(t, &fakeAVP{err: cause})

	_, err := e.Authorize(context.Background(), queries(1)[0], cedar.NewRecord(nil), nil)
	assert.Equal(t, authzen.CodeEvaluationFailed, authzen.ErrorCode(err))
	assert.ErrorIs(t, err, cause)
}

func TestAuthorizeBatch_ChunksAndAlignment(t *testing.T) {
	t.Parallel()
	t.Log("Testing: 65 queries split into 30+30+5 and come back in request order")

	allowed := map[string]bool{}
	for _, i := range []int{0, 29, 30, 64} {
		allowed[fmt.Sprintf("r%d", i)] = true
	}
	fake := &fakeAVP{allowed: allowed}
	e := newTestEngine(t, fake)

	answers, err := e.AuthorizeBatch(context.Background(), queries(65), cedar.NewRecord(nil), nil)
	require.NoError(t, err)
	require.Len(t, answers, 65)
	assert.ElementsMatch(t, []int{30, 30, 5}, fake.batchSizes)

	for i, a := range answers {
		assert.Equal(t, allowed[fmt.Sprintf("r%d", i)], a.Allow, "answer %d", i)
	}
}

func TestAuthorizeBatch_FailureIsAtomic(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &fakeAVP{failBatch: 2})
	answers, err := e.AuthorizeBatch(context.Background(), queries(61), cedar.NewRecord(nil), nil)
	assert.Nil(t, answers, "no partial results")
	assert.Equal(t, authzen.CodeEvaluationFailed, authzen.ErrorCode(err))
	assert.ErrorContains(t, err, "ThrottlingException")
}

func TestAuthorizeBatch_MisalignedResults(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &fakeAVP{dropResult: true})
	_, err := e.AuthorizeBatch(context.Background(), queries(3), cedar.NewRecord(nil), nil)
	assert.ErrorContains(t, err, "batch returned 2 results for 3 requests")
}

func TestAuthorizeBatch_Empty(t *testing.T) {
	t.Parallel()

	fake := &fakeAVP{}
	answers, err := newTestEngine(t, fake).AuthorizeBatch(context.Background(), nil, cedar.NewRecord(nil), nil)
	require.NoError(t, err)
	assert.Empty(t, answers)
	assert.Empty(t, fake.batchSizes)
}
