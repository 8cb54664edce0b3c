package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err    *Error
		status int
	}{
		{Validation("invalid_input", "bad request"), http.StatusBadRequest},
		{NotFound("function_not_found", "no such function"), http.StatusNotFound},
		{BusinessRule("not_owner", "caller does not own function"), http.StatusConflict},
		{Deployment("build_failed", nil, "image build failed"), http.StatusInternalServerError},
		{CodeAnalysis("parse_failed", nil, "analyzer crashed"), http.StatusInternalServerError},
		{FileOperation("write_failed", nil, "cannot write build dir"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.status, tc.err.HTTPStatus(), tc.err.Code)
	}
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("disk full")
	err := FileOperation("write_failed", cause, "cannot write %s", "build/ctx")

	wrapped := fmt.Errorf("deploying app: %w", err)

	ae, ok := As(wrapped)
	require.True(t, ok)
	require.Equal(t, "write_failed", ae.Code)
	require.ErrorIs(t, wrapped, cause)
	require.True(t, IsKind(wrapped, KindFileOperation))
	require.False(t, IsKind(wrapped, KindValidation))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Deployment("container_start", errors.New("no such image"), "starting container")
	require.Contains(t, err.Error(), "no such image")
	require.Contains(t, err.Error(), "starting container")
}
