package vault

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	jww "github.com/spf13/jwalterweatherman"
)

// Defaults applied by `DefaultConfig` and by `New` for zero values.
const (
	DefaultAddress      = "https://127.0.0.1:8200"
	DefaultTimeout      = 60 * time.Second
	DefaultMaxAttempts  = 3
	DefaultMinRetryWait = 100 * time.Millisecond
	DefaultMaxRetryWait = 2 * time.Second
)

// Config - client configuration, read only once passed to `New`
type Config struct {
	Address    string
	Namespace  string
	Credential Credential

	Mounts MountPoints
	Retry  RetryPolicy
	TLS    TLSConfig

	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables limiting
	Burst     int

	// TokenInvalid - decides whether a failed request was rejected because of the token itself,
	// which triggers one re-login and replay. Defaults to a 403 carrying "invalid token".
	TokenInvalid func(*APIError) bool

	LogOutput    io.Writer
	LogThreshold jww.Threshold // zero means jww.LevelInfo

	// Registerer - where the client metrics are registered, nil keeps them unregistered
	Registerer prometheus.Registerer
}

// MountPoints - default mount point per secrets engine and auth method, used when a caller passes ""
type MountPoints struct {
	KeyValueV1 string
	KeyValueV2 string
	Identity   string
	AppRole    string
}

// RetryPolicy - how transport failures are retried
type RetryPolicy struct {
	MaxAttempts       int // including the first attempt
	MinWait           time.Duration
	MaxWait           time.Duration
	RetryServerErrors bool // also retry 5xx responses, except 501
}

// TLSConfig - TLS options, ClientCert and ClientKey enable mutual TLS
type TLSConfig struct {
	CACert        string
	CAPath        string
	ClientCert    string
	ClientKey     string
	TLSServerName string
	Insecure      bool
}

// DefaultMountPoints - mount points used by a default Vault server
func DefaultMountPoints() MountPoints {
	return MountPoints{
		KeyValueV1: "kv",
		KeyValueV2: "secret",
		Identity:   "identity",
		AppRole:    AppRolePath,
	}
}

// DefaultRetryPolicy - 3 attempts with a backoff between 100ms and 2s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		MinWait:     DefaultMinRetryWait,
		MaxWait:     DefaultMaxRetryWait,
	}
}

// DefaultConfig - returns a configuration for the given credential with every default applied
func DefaultConfig(cred Credential) Config {
	return Config{
		Address:      DefaultAddress,
		Credential:   cred,
		Mounts:       DefaultMountPoints(),
		Retry:        DefaultRetryPolicy(),
		Timeout:      DefaultTimeout,
		LogOutput:    io.Discard,
		LogThreshold: jww.LevelInfo,
	}
}

// withDefaults - fills zero values, the receiver is a copy owned by the client
func (c Config) withDefaults() Config {
	mounts := DefaultMountPoints()
	if len(c.Mounts.KeyValueV1) == 0 {
		c.Mounts.KeyValueV1 = mounts.KeyValueV1
	}
	if len(c.Mounts.KeyValueV2) == 0 {
		c.Mounts.KeyValueV2 = mounts.KeyValueV2
	}
	if len(c.Mounts.Identity) == 0 {
		c.Mounts.Identity = mounts.Identity
	}
	if len(c.Mounts.AppRole) == 0 {
		c.Mounts.AppRole = mounts.AppRole
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.MinWait == 0 {
		c.Retry.MinWait = DefaultMinRetryWait
	}
	if c.Retry.MaxWait == 0 {
		c.Retry.MaxWait = DefaultMaxRetryWait
	}

	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.LogOutput == nil {
		c.LogOutput = io.Discard
	}
	if c.LogThreshold == 0 {
		c.LogThreshold = jww.LevelInfo
	}
	if c.TokenInvalid == nil {
		c.TokenInvalid = isTokenInvalid
	}

	return c
}
