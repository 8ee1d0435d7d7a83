package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// TokenAuthPath - mount of the token auth method
const TokenAuthPath = "token"

// Token - a token issued out of band, either given directly or read from a file another process keeps current
type Token struct {
	Value string
	File  string // preferred over Value, re-read on every login

	// Lookup - call `auth/token/lookup-self` on login to learn the policies and lease of the token
	Lookup bool
}

func (Token) isCredential() {}

func (t Token) validate() error {
	if len(t.Value) == 0 && len(t.File) == 0 {
		return errors.New("token: value or file is required")
	}
	return nil
}

type tokenStrategy struct {
	cred Token
}

func (s *tokenStrategy) Method() string {
	return TokenAuthPath
}

// BuildLoginRequest - no network call unless a lookup was asked for
func (s *tokenStrategy) BuildLoginRequest(_ context.Context) (*Request, error) {
	if !s.cred.Lookup {
		return nil, nil
	}

	token, err := s.token()
	if nil != err {
		return nil, fmt.Errorf("buildloginrequest: %w", err)
	}

	return &Request{
		Method: http.MethodGet,
		Path:   "auth/" + TokenAuthPath + "/lookup-self",
		Token:  token,
	}, nil
}

func (s *tokenStrategy) ExtractSession(secret *Secret[Data]) (*Session, error) {
	if secret == nil {
		token, err := s.token()
		if nil != err {
			return nil, err
		}
		return &Session{Token: token, IssuedAt: time.Now().UTC()}, nil
	}

	// lookup-self answers with the token properties in `data`, there is no auth block
	token := secret.Data.GetString("id")
	if len(token) == 0 {
		return nil, &AuthExtractionError{Method: s.Method(), Reason: "lookup response carries no token id"}
	}

	session := &Session{
		Token:         token,
		Accessor:      secret.Data.GetString("accessor"),
		Policies:      secret.Data.GetStrings("policies"),
		LeaseDuration: time.Duration(secret.Data.GetInt64("ttl")) * time.Second,
		Renewable:     secret.Data.GetBool("renewable"),
		IssuedAt:      time.Now().UTC(),
	}
	session.setExpiry()

	return session, nil
}

// token - prefer the token file over the configured token, since an external app can write the token without us needing to worry about renewal and expiry
func (s *tokenStrategy) token() (string, error) {
	if len(s.cred.File) == 0 {
		return s.cred.Value, nil
	}

	bytes, err := os.ReadFile(s.cred.File)
	if nil != err {
		return "", fmt.Errorf("token: %w", err)
	}

	token := strings.TrimSpace(string(bytes))
	if len(token) == 0 {
		return "", &AuthExtractionError{Method: TokenAuthPath, Reason: "token file is empty"}
	}

	return token, nil
}
