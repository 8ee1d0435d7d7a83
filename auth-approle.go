package vault

import (
	"context"
	"errors"
	"fmt"
)

// AppRolePath - default approle path
const AppRolePath = "approle"

// AppRole - role id and secret id pair for the AppRole auth method
type AppRole struct {
	RoleID   string
	SecretID string // may be empty when the role does not bind a secret id

	// SecretIDWrappingToken - wrapping token of a response wrapped secret id, unwrapped once at the first login
	// and preferred over `SecretID`
	SecretIDWrappingToken string

	Mount string // defaults to the configured approle mount
}

func (AppRole) isCredential() {}

func (a AppRole) validate() error {
	if len(a.RoleID) == 0 {
		return errors.New("approle: role_id is required")
	}
	return nil
}

type appRoleStrategy struct {
	cred AppRole

	// set by prepare, under the client login lock
	mount    string
	secretID string
	resolved bool
}

func (s *appRoleStrategy) Method() string {
	return "approle"
}

// prepare - resolves the mount and turns the wrapping token into a secret id, wrapping tokens are single use
// so only the unwrapped secret id is kept afterwards
func (s *appRoleStrategy) prepare(ctx context.Context, c *Client) (err error) {
	s.mount = mountOr(s.cred.Mount, c.config.Mounts.AppRole)

	if s.resolved {
		return
	}

	if len(s.cred.SecretIDWrappingToken) == 0 {
		s.secretID, s.resolved = s.cred.SecretID, true
		return
	}

	secret, err := Unwrap[SecretID](ctx, c, s.cred.SecretIDWrappingToken)
	if nil != err {
		return fmt.Errorf("approle: secret_id: %w", err)
	}
	if len(secret.Data.SecretID) == 0 {
		return fmt.Errorf("approle: secret_id: wrapped response holds no secret_id")
	}

	s.secretID, s.resolved = secret.Data.SecretID, true
	c.log.INFO.Printf("unwrapped approle secret_id, accessor %s", secret.Data.SecretIDAccessor)

	return
}

// BuildLoginRequest - POST `auth/<mount>/login` with `role_id` and `secret_id`
func (s *appRoleStrategy) BuildLoginRequest(_ context.Context) (*Request, error) {
	secretID := s.cred.SecretID
	if s.resolved {
		secretID = s.secretID
	}

	d := NewData()
	d.SetString("role_id", s.cred.RoleID)
	if len(secretID) != 0 {
		d.SetString("secret_id", secretID)
	}

	return loginRequest(s.mount, AppRolePath, "", d), nil
}

func (s *appRoleStrategy) ExtractSession(secret *Secret[Data]) (*Session, error) {
	return sessionFromAuth(s.Method(), secret)
}
