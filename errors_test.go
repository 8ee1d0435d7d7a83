package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassifiers(t *testing.T) {
	t.Parallel()

	apiErr := func(status int, messages ...string) error {
		return fmt.Errorf("read: %w", &APIError{StatusCode: status, Errors: messages, Method: http.MethodGet, Path: "secret/data/x"})
	}

	tests := []struct {
		name             string
		err              error
		permissionDenied bool
		tokenInvalid     bool
		wrappingInvalid  bool
		notFound         bool
		transport        bool
		authentication   bool
	}{
		{
			name:             "policy denial",
			err:              apiErr(http.StatusForbidden, "1 error occurred:\n\t* permission denied\n\n"),
			permissionDenied: true,
		},
		{
			name:         "invalid token",
			err:          apiErr(http.StatusForbidden, "permission denied", "invalid token"),
			tokenInvalid: true,
		},
		{
			name:            "wrapping token",
			err:             apiErr(http.StatusBadRequest, "wrapping token is not valid or does not exist"),
			wrappingInvalid: true,
		},
		{
			name:     "not found",
			err:      apiErr(http.StatusNotFound),
			notFound: true,
		},
		{
			name:      "transport",
			err:       &TransportError{Method: http.MethodGet, Path: "sys/health", Err: io.ErrUnexpectedEOF},
			transport: true,
		},
		{
			name:           "login",
			err:            &AuthenticationError{Method: "approle", Err: apiErr(http.StatusBadRequest, "invalid role ID")},
			authentication: true,
		},
		{
			name: "plain",
			err:  errors.New("something else"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.permissionDenied, IsPermissionDenied(tt.err))
			assert.Equal(t, tt.tokenInvalid, IsTokenInvalid(tt.err))
			assert.Equal(t, tt.wrappingInvalid, IsWrappingTokenInvalid(tt.err))
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, tt.transport, IsTransportError(tt.err))
			assert.Equal(t, tt.authentication, IsAuthenticationError(tt.err))
		})
	}
}

func TestAPIError(t *testing.T) {
	t.Parallel()

	err := &APIError{StatusCode: 400, Errors: []string{"Missing role_id", "second"}, Method: "POST", Path: "auth/approle/login"}
	assert.Equal(t, "vault: POST auth/approle/login: status 400: Missing role_id; second", err.Error())
	assert.True(t, err.Contains("missing ROLE_ID"))
	assert.False(t, err.Contains("secret_id"))

	bare := &APIError{StatusCode: 404, Method: "GET", Path: "kv/x"}
	assert.Equal(t, "vault: GET kv/x: status 404", bare.Error())
}

func TestWrappedErrors(t *testing.T) {
	t.Parallel()

	transport := &TransportError{Method: "GET", Path: "kv/x", Err: context.DeadlineExceeded}
	assert.ErrorIs(t, transport, context.DeadlineExceeded)
	assert.Contains(t, transport.Error(), "transport")

	auth := &AuthenticationError{Method: "github", Err: transport}
	assert.ErrorIs(t, auth, context.DeadlineExceeded)
	assert.True(t, IsTransportError(auth))
	assert.Equal(t, "vault: github login failed: "+transport.Error(), auth.Error())

	extract := &AuthExtractionError{Method: "jwt", Reason: "empty client token"}
	assert.Equal(t, "vault: jwt login response: empty client token", extract.Error())
}

func TestKeyErrors(t *testing.T) {
	t.Parallel()

	keyErr := fmt.Errorf("read: %w", NewKeyError("secret", "app/db"))
	assert.ErrorIs(t, keyErr, ErrKeyNotFound("secret", "app/db"))
	assert.NotErrorIs(t, keyErr, ErrKeyNotFound("secret", "app/other"))
	assert.Equal(t, "vault: key app/db does not exist in secret", NewKeyError("secret", "app/db").Error())

	fieldErr := fmt.Errorf("readkey: %w", NewFieldError("app/db", "password"))
	assert.ErrorIs(t, fieldErr, ErrFieldNotFound("app/db", "password"))

	listErr := NewListError("kv", "apps")
	assert.ErrorIs(t, listErr, ErrListPathNotFound("kv", "apps"))
	assert.NotErrorIs(t, listErr, ErrListPathNotFound("kv", "other"))
}
