package vault

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	hvault "github.com/hashicorp/vault/api"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/sync/singleflight"
)

// Strategy - knows how to log in with one kind of credential, one implementation per `Credential` variant
type Strategy interface {
	// Method - name of the auth method, used for logs and metrics
	Method() string

	// BuildLoginRequest - returns the login request to send, a nil request means no network call is needed
	BuildLoginRequest(ctx context.Context) (*Request, error)

	// ExtractSession - builds a session from the login response, `secret` is nil when no login request was sent
	ExtractSession(secret *Secret[Data]) (*Session, error)
}

// preparer - implemented by strategies that need the client before building the login request,
// called under the login lock before every login
type preparer interface {
	prepare(ctx context.Context, c *Client) error
}

// Client - Vault client instance, holds the immutable configuration and the session for its credential
type Client struct {
	config   Config
	api      *hvault.Client
	strategy Strategy
	log      *jww.Notepad
	metrics  *metrics

	session atomic.Pointer[Session] // read lock free on the fast path
	mutex   sync.Mutex              // guards session writes
	logins  singleflight.Group      // at most one login in flight
}

// Session - the active token and its metadata for an authenticated client
type Session struct {
	Token         string
	Accessor      string
	Policies      []string
	LeaseDuration time.Duration
	Renewable     bool
	IssuedAt      time.Time
	expires       time.Time
}

// Request - a single call to the Vault HTTP API
type Request struct {
	Method string
	Path   string // relative to `/v1/`
	Params url.Values
	Body   interface{}

	// WrapTTL - asks the server to wrap the response in a single use token with this lifetime, e.g. "10s" or "5m"
	WrapTTL string

	// Token - bearer token to use instead of the session token, no login is performed
	Token string

	// Unauthenticated - send without any token, used by login calls and public endpoints
	Unauthenticated bool
}

// Secret - generic response envelope returned by Vault
type Secret[T any] struct {
	RequestID     string                 `json:"request_id"`
	LeaseID       string                 `json:"lease_id"`
	LeaseDuration int                    `json:"lease_duration"`
	Renewable     bool                   `json:"renewable"`
	Data          T                      `json:"data"`
	WrapInfo      *hvault.SecretWrapInfo `json:"wrap_info,omitempty"`
	Warnings      []string               `json:"warnings"`
	Auth          *hvault.SecretAuth     `json:"auth,omitempty"`
}

// IsWrapped - true when the payload must be fetched with `Unwrap` instead of read from `Data`
func (s *Secret[T]) IsWrapped() bool {
	return s != nil && s.WrapInfo != nil && len(s.WrapInfo.Token) != 0
}

// Data - vault data format
type Data map[string]interface{}

// KeyError - custom error for indicating a given key is not found
type KeyError struct {
	mount, key string
}

// FieldError - custom error for fields under a key not found
type FieldError struct {
	key, field string
}

// ListError - custom error for listing paths under a key
type ListError struct {
	mount, path string
}
