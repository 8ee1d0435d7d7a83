package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// AppRoleRole - role definition sent to `auth/<mount>/role/<name>`, unset fields keep the server defaults
type AppRoleRole struct {
	Name string `json:"-"`

	BindSecretID         *bool    `json:"bind_secret_id,omitempty"`
	SecretIDBoundCIDRs   []string `json:"secret_id_bound_cidrs,omitempty"`
	SecretIDNumUses      int      `json:"secret_id_num_uses,omitempty"`
	SecretIDTTL          string   `json:"secret_id_ttl,omitempty"`
	LocalSecretIDs       bool     `json:"local_secret_ids,omitempty"`
	TokenBoundCIDRs      []string `json:"token_bound_cidrs,omitempty"`
	TokenExplicitMaxTTL  string   `json:"token_explicit_max_ttl,omitempty"`
	TokenMaxTTL          string   `json:"token_max_ttl,omitempty"`
	TokenNoDefaultPolicy bool     `json:"token_no_default_policy,omitempty"`
	TokenNumUses         int      `json:"token_num_uses,omitempty"`
	TokenPeriod          string   `json:"token_period,omitempty"`
	TokenPolicies        []string `json:"token_policies,omitempty"`
	TokenTTL             string   `json:"token_ttl,omitempty"`
	TokenType            string   `json:"token_type,omitempty"`
}

// AppRoleInfo - role definition as read back, durations are in seconds
type AppRoleInfo struct {
	BindSecretID         bool     `json:"bind_secret_id"`
	SecretIDBoundCIDRs   []string `json:"secret_id_bound_cidrs"`
	SecretIDNumUses      int      `json:"secret_id_num_uses"`
	SecretIDTTL          int      `json:"secret_id_ttl"`
	LocalSecretIDs       bool     `json:"local_secret_ids"`
	TokenBoundCIDRs      []string `json:"token_bound_cidrs"`
	TokenExplicitMaxTTL  int      `json:"token_explicit_max_ttl"`
	TokenMaxTTL          int      `json:"token_max_ttl"`
	TokenNoDefaultPolicy bool     `json:"token_no_default_policy"`
	TokenNumUses         int      `json:"token_num_uses"`
	TokenPeriod          int      `json:"token_period"`
	TokenPolicies        []string `json:"token_policies"`
	TokenTTL             int      `json:"token_ttl"`
	TokenType            string   `json:"token_type"`
}

// SecretID - a generated secret id
type SecretID struct {
	SecretID         string `json:"secret_id"`
	SecretIDAccessor string `json:"secret_id_accessor"`
	SecretIDTTL      int    `json:"secret_id_ttl"`
	SecretIDNumUses  int    `json:"secret_id_num_uses"`
}

// AppRoleBackend - management endpoints of an AppRole auth mount
type AppRoleBackend struct {
	client *Client
	mount  string
}

// AppRoles - AppRole management for `mount`, an empty mount uses the configured default
func (v *Client) AppRoles(mount string) *AppRoleBackend {
	return &AppRoleBackend{client: v, mount: mountOr(mount, v.config.Mounts.AppRole)}
}

func (a *AppRoleBackend) rolePath(name string, suffix ...string) string {
	p := "auth/" + a.mount + "/role/" + name
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

// WriteRole - creates or updates a role
func (a *AppRoleBackend) WriteRole(ctx context.Context, role AppRoleRole) (err error) {
	if len(role.Name) == 0 {
		return errors.New("writerole: role name is required")
	}

	_, err = Send[Data](ctx, a.client, &Request{Method: http.MethodPost, Path: a.rolePath(role.Name), Body: role})
	if nil != err {
		return fmt.Errorf("writerole: %w", err)
	}

	return
}

// ReadRole - reads a role definition
func (a *AppRoleBackend) ReadRole(ctx context.Context, name string) (role *AppRoleInfo, err error) {

	secret, err := Send[AppRoleInfo](ctx, a.client, &Request{Method: http.MethodGet, Path: a.rolePath(name)})
	if nil != err {
		return nil, fmt.Errorf("readrole: %w", err)
	}

	return &secret.Data, nil
}

// ListRoles - names of the roles on the mount, empty when there are none
func (a *AppRoleBackend) ListRoles(ctx context.Context) (names []string, err error) {

	secret, err := Send[Data](ctx, a.client, &Request{
		Method: http.MethodGet,
		Path:   "auth/" + a.mount + "/role",
		Params: url.Values{"list": []string{"true"}},
	})
	if nil != err {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listroles: %w", err)
	}

	return secret.Data.GetStrings("keys"), nil
}

// DeleteRole - removes a role
func (a *AppRoleBackend) DeleteRole(ctx context.Context, name string) (err error) {

	_, err = Send[Data](ctx, a.client, &Request{Method: http.MethodDelete, Path: a.rolePath(name)})
	if nil != err {
		return fmt.Errorf("deleterole: %w", err)
	}

	return
}

// ReadRoleID - the role id of a role
func (a *AppRoleBackend) ReadRoleID(ctx context.Context, name string) (roleID string, err error) {

	secret, err := Send[Data](ctx, a.client, &Request{Method: http.MethodGet, Path: a.rolePath(name, "role-id")})
	if nil != err {
		return "", fmt.Errorf("readroleid: %w", err)
	}

	return secret.Data.GetString("role_id"), nil
}

// WriteCustomRoleID - replaces the generated role id of a role
func (a *AppRoleBackend) WriteCustomRoleID(ctx context.Context, name, roleID string) (err error) {
	d := NewData()
	d.SetString("role_id", roleID)

	_, err = Send[Data](ctx, a.client, &Request{Method: http.MethodPost, Path: a.rolePath(name, "role-id"), Body: d})
	if nil != err {
		return fmt.Errorf("writecustomroleid: %w", err)
	}

	return
}

// CreateSecretID - generates a secret id for a role. With a non empty `wrapTTL` the secret id comes back wrapped,
// the wrapping token is in `WrapInfo` and `UnwrapSecretID` returns the secret id once
func (a *AppRoleBackend) CreateSecretID(ctx context.Context, name, wrapTTL string) (secret *Secret[SecretID], err error) {

	secret, err = Send[SecretID](ctx, a.client, &Request{
		Method:  http.MethodPost,
		Path:    a.rolePath(name, "secret-id"),
		WrapTTL: wrapTTL,
	})
	if nil != err {
		return nil, fmt.Errorf("createsecretid: %w", err)
	}

	return
}

// UnwrapSecretID - unwraps a secret id created with a wrap ttl, a wrapping token is only good for one call
func (a *AppRoleBackend) UnwrapSecretID(ctx context.Context, wrappingToken string) (secretID *SecretID, err error) {

	secret, err := Unwrap[SecretID](ctx, a.client, wrappingToken)
	if nil != err {
		return nil, fmt.Errorf("unwrapsecretid: %w", err)
	}

	return &secret.Data, nil
}
