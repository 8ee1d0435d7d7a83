package vault

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Messages the server uses for the failures callers have to tell apart.
const (
	MsgPermissionDenied     = "permission denied"
	MsgInvalidToken         = "invalid token"
	MsgWrappingTokenInvalid = "wrapping token is not valid or does not exist"
)

// APIError - the server rejected a request, `Errors` is the server's `errors` array as received
type APIError struct {
	StatusCode int
	Errors     []string
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("vault: %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("vault: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, strings.Join(e.Errors, "; "))
}

// Contains - checks whether any server message contains `msg`, case insensitive
func (e *APIError) Contains(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range e.Errors {
		if strings.Contains(strings.ToLower(m), msg) {
			return true
		}
	}
	return false
}

// TransportError - no response was received from the server, after retries were exhausted
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("vault: %s %s: transport: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthenticationError - the login request failed or the credential was rejected
type AuthenticationError struct {
	Method string
	Err    error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("vault: %s login failed: %v", e.Method, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// AuthExtractionError - the login succeeded but the response did not carry a usable token
type AuthExtractionError struct {
	Method string
	Reason string
}

func (e *AuthExtractionError) Error() string {
	return fmt.Sprintf("vault: %s login response: %s", e.Method, e.Reason)
}

// AsAPIError - returns the `APIError` in the chain, if any
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsPermissionDenied - the token is valid but its policies do not allow the operation
func IsPermissionDenied(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusForbidden && !apiErr.Contains(MsgInvalidToken)
}

// IsTokenInvalid - the token was rejected as expired, revoked or unknown
func IsTokenInvalid(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && isTokenInvalid(apiErr)
}

// IsWrappingTokenInvalid - the wrapping token was already unwrapped, expired or never existed
func IsWrappingTokenInvalid(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Contains(MsgWrappingTokenInvalid)
}

// IsNotFound - the path does not exist
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// IsTransportError - no response was received
func IsTransportError(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// IsAuthenticationError - the failure happened while logging in
func IsAuthenticationError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

// isTokenInvalid - default classifier for 403s caused by the token itself rather than a policy
func isTokenInvalid(e *APIError) bool {
	return e.StatusCode == http.StatusForbidden && e.Contains(MsgInvalidToken)
}

// NewKeyError - creates a new instance of key error
func NewKeyError(mount, key string) (k *KeyError) {
	return &KeyError{mount: mount, key: key}
}

// Error - returns the error string
func (k *KeyError) Error() string {
	return ErrKeyNotFound(k.mount, k.key).Error()
}

func (k *KeyError) Is(target error) bool {
	return k.Error() == target.Error()
}

// ErrKeyNotFound - specific error message indicating key is not found
func ErrKeyNotFound(mount, key string) error {
	return fmt.Errorf("vault: key %s does not exist in %s", key, mount)
}

// NewFieldError - creates a new instance of field error
func NewFieldError(key, field string) (f *FieldError) {
	return &FieldError{key: key, field: field}
}

// Error - returns the error string
func (f *FieldError) Error() string {
	return ErrFieldNotFound(f.key, f.field).Error()
}

func (f *FieldError) Is(target error) bool {
	return f.Error() == target.Error()
}

// ErrFieldNotFound - specific error message indicating field is not found
func ErrFieldNotFound(key, field string) error {
	return fmt.Errorf("vault: field %s does not exist under %s", field, key)
}

// NewListError - creates a new instance of list error
func NewListError(mount, path string) (l *ListError) {
	return &ListError{mount: mount, path: path}
}

// Error - returns the error string
func (l *ListError) Error() string {
	return ErrListPathNotFound(l.mount, l.path).Error()
}

func (l *ListError) Is(target error) bool {
	return l.Error() == target.Error()
}

// ErrListPathNotFound - specific error message indicating list path is not found
func ErrListPathNotFound(mount, path string) error {
	return fmt.Errorf("list: no keys found for given path %q in %s", path, mount)
}
