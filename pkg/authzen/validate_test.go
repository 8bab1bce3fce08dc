package authzen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluationRequest_Validate(t *testing.T) {
	t.Parallel()

	valid := func() *EvaluationRequest {
		return &EvaluationRequest{
			Subject:  Entity{Type: "identity", ID: "alice"},
			Resource: Entity{Type: "route", ID: "/todos"},
			Action:   Action{Name: "GET"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *EvaluationRequest)
		wantErr string
	}{
		{name: "valid", mutate: func(r *EvaluationRequest) {}},
		{name: "missing subject type", mutate: func(r *EvaluationRequest) { r.Subject.Type = "" }, wantErr: "subject.type is required"},
		{name: "missing subject id", mutate: func(r *EvaluationRequest) { r.Subject.ID = "" }, wantErr: "subject.id is required"},
		{name: "missing resource id", mutate: func(r *EvaluationRequest) { r.Resource.ID = "" }, wantErr: "resource.id is required"},
		{name: "missing action name", mutate: func(r *EvaluationRequest) { r.Action.Name = "" }, wantErr: "action.name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)
			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
			assert.Equal(t, CodeValidation, ErrorCode(err))
		})
	}
}

func TestEvaluationsRequest_Validate(t *testing.T) {
	t.Parallel()

	t.Run("evaluations required", func(t *testing.T) {
		err := (&EvaluationsRequest{}).Validate()
		assert.ErrorContains(t, err, "evaluations is required")
	})

	t.Run("empty list is valid", func(t *testing.T) {
		assert.NoError(t, (&EvaluationsRequest{Evaluations: []EvaluationItem{}}).Validate())
	})

	t.Run("item field path is reported", func(t *testing.T) {
		req := &EvaluationsRequest{
			Evaluations: []EvaluationItem{
				{},
				{Resource: &Entity{Type: "route"}},
			},
		}
		assert.ErrorContains(t, req.Validate(), "evaluations[1].resource.id is required")
	})

	t.Run("invalid default", func(t *testing.T) {
		req := &EvaluationsRequest{
			Action:      &Action{},
			Evaluations: []EvaluationItem{},
		}
		assert.ErrorContains(t, req.Validate(), "action.name is required")
	})

	t.Run("unknown semantics", func(t *testing.T) {
		req := &EvaluationsRequest{
			Evaluations: []EvaluationItem{},
			Options:     &EvaluationOptions{EvaluationSemantics: "first_come"},
		}
		assert.ErrorContains(t, req.Validate(), `"first_come" is not supported`)
	})
}

func TestSearchRequests_Validate(t *testing.T) {
	t.Parallel()

	subject := Entity{Type: "identity", ID: "alice"}
	resource := Entity{Type: "route", ID: "/todos"}
	action := Action{Name: "GET"}

	t.Run("subject search needs only the subject type", func(t *testing.T) {
		req := &SubjectSearchRequest{Subject: SearchEntity{Type: "identity"}, Resource: resource, Action: action}
		assert.NoError(t, req.Validate())

		req.Subject.Type = ""
		assert.ErrorContains(t, req.Validate(), "subject.type is required")
	})

	t.Run("resource search needs only the resource type", func(t *testing.T) {
		req := &ResourceSearchRequest{Subject: subject, Resource: SearchEntity{Type: "route"}, Action: action}
		assert.NoError(t, req.Validate())

		req.Resource.Type = ""
		assert.ErrorContains(t, req.Validate(), "resource.type is required")
	})

	t.Run("action search needs subject and resource", func(t *testing.T) {
		req := &ActionSearchRequest{Subject: subject, Resource: resource}
		assert.NoError(t, req.Validate())

		req.Resource.ID = ""
		assert.ErrorContains(t, req.Validate(), "resource.id is required")
	})

	t.Run("empty page token rejected", func(t *testing.T) {
		req := &ActionSearchRequest{Subject: subject, Resource: resource, Page: &Page{}}
		assert.ErrorContains(t, req.Validate(), "page.next_token must not be empty")
	})
}
