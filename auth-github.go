package vault

import (
	"context"
	"errors"
)

// GitHub - personal access token for the github auth method
type GitHub struct {
	Token string
	Mount string // defaults to "github"
}

func (GitHub) isCredential() {}

func (g GitHub) validate() error {
	if len(g.Token) == 0 {
		return errors.New("github: token is required")
	}
	return nil
}

type gitHubStrategy struct {
	cred GitHub
}

func (s *gitHubStrategy) Method() string {
	return "github"
}

func (s *gitHubStrategy) BuildLoginRequest(_ context.Context) (*Request, error) {
	d := NewData()
	d.SetString("token", s.cred.Token)

	return loginRequest(s.cred.Mount, s.Method(), "", d), nil
}

func (s *gitHubStrategy) ExtractSession(secret *Secret[Data]) (*Session, error) {
	return sessionFromAuth(s.Method(), secret)
}
