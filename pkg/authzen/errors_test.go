package authzen

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodesAndStatus(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	tests := []struct {
		name       string
		err        *Error
		wantCode   string
		wantStatus int
	}{
		{name: "validation", err: ErrValidation("subject.id is required"), wantCode: CodeValidation, wantStatus: http.StatusBadRequest},
		{name: "entity resolution", err: ErrEntityResolution(cause), wantCode: CodeEntityResolution, wantStatus: http.StatusBadGateway},
		{name: "evaluation failed", err: ErrEvaluationFailed(cause), wantCode: CodeEvaluationFailed, wantStatus: http.StatusInternalServerError},
		{name: "unsupported", err: ErrUnsupportedOperation("subject search"), wantCode: CodeUnsupportedOperation, wantStatus: http.StatusNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus())
		})
	}
}

func TestError_Wrapping(t *testing.T) {
	t.Parallel()

	cause := errors.New("throttled")
	err := fmt.Errorf("evaluate: %w", ErrEvaluationFailed(cause))

	assert.True(t, IsError(err))
	assert.Equal(t, CodeEvaluationFailed, ErrorCode(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to perform AuthZEN evaluation")

	assert.False(t, IsError(cause))
	assert.Empty(t, ErrorCode(cause))
}

func TestErrUnsupportedOperation_Message(t *testing.T) {
	t.Parallel()

	err := ErrUnsupportedOperation("action search")
	assert.Equal(t, "AuthZEN action search not implemented", err.Message)
	assert.Nil(t, err.Unwrap())
}
