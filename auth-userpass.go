package vault

import (
	"context"
	"errors"
)

// UserPass - username and password for the userpass auth method
type UserPass struct {
	Username string
	Password string
	Mount    string // defaults to "userpass"
}

func (UserPass) isCredential() {}

func (u UserPass) validate() error {
	return validatePassword("userpass", u.Username, u.Password)
}

// LDAP - username and password checked by the ldap auth method
type LDAP struct {
	Username string
	Password string
	Mount    string // defaults to "ldap"
}

func (LDAP) isCredential() {}

func (l LDAP) validate() error {
	return validatePassword("ldap", l.Username, l.Password)
}

func validatePassword(method, username, password string) error {
	if len(username) == 0 || len(password) == 0 {
		return errors.New(method + ": username and password are required")
	}
	return nil
}

// passwordStrategy - userpass and ldap share the login shape `auth/<mount>/login/<username>`
type passwordStrategy struct {
	method   string
	mount    string
	username string
	password string
}

func (s *passwordStrategy) Method() string {
	return s.method
}

func (s *passwordStrategy) BuildLoginRequest(_ context.Context) (*Request, error) {
	d := NewData()
	d.SetString("password", s.password)

	return loginRequest(s.mount, s.method, s.username, d), nil
}

func (s *passwordStrategy) ExtractSession(secret *Secret[Data]) (*Session, error) {
	return sessionFromAuth(s.method, secret)
}
