package vault

import (
	"context"
	"errors"
)

// JWT - role and signed token for the jwt/oidc auth method
type JWT struct {
	Role  string
	Token string
	Mount string // defaults to "jwt"
}

func (JWT) isCredential() {}

func (j JWT) validate() error {
	if len(j.Token) == 0 {
		return errors.New("jwt: token is required")
	}
	return nil
}

type jwtStrategy struct {
	cred JWT
}

func (s *jwtStrategy) Method() string {
	return "jwt"
}

func (s *jwtStrategy) BuildLoginRequest(_ context.Context) (*Request, error) {
	d := NewData()
	if len(s.cred.Role) != 0 {
		d.SetString("role", s.cred.Role)
	}
	d.SetString("jwt", s.cred.Token)

	return loginRequest(s.cred.Mount, s.Method(), "", d), nil
}

func (s *jwtStrategy) ExtractSession(secret *Secret[Data]) (*Session, error) {
	return sessionFromAuth(s.Method(), secret)
}
