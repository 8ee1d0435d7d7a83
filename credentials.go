package vault

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Credential - describes how the client authenticates, implemented only by the types of this package
// (Token, AppRole, GitHub, UserPass, LDAP, Kubernetes, JWT, Cert, AWS, Azure, GCP)
type Credential interface {
	isCredential()
	validate() error
}

// NewStrategy - returns the auth strategy for the given credential
func NewStrategy(cred Credential) (Strategy, error) {
	switch c := cred.(type) {
	case Token:
		return &tokenStrategy{cred: c}, nil
	case AppRole:
		return &appRoleStrategy{cred: c}, nil
	case GitHub:
		return &gitHubStrategy{cred: c}, nil
	case UserPass:
		return &passwordStrategy{method: "userpass", mount: c.Mount, username: c.Username, password: c.Password}, nil
	case LDAP:
		return &passwordStrategy{method: "ldap", mount: c.Mount, username: c.Username, password: c.Password}, nil
	case Kubernetes:
		return &kubernetesStrategy{cred: c}, nil
	case JWT:
		return &jwtStrategy{cred: c}, nil
	case Cert:
		return &certStrategy{cred: c}, nil
	case AWS:
		return &awsStrategy{cred: c}, nil
	case Azure:
		return &azureStrategy{cred: c}, nil
	case GCP:
		return &gcpStrategy{cred: c}, nil
	case nil:
		return nil, fmt.Errorf("newstrategy: missing credential")
	default:
		return nil, fmt.Errorf("newstrategy: unsupported credential %T", cred)
	}
}

// loginRequest - POST to `auth/<mount>/login[/<suffix>]`, never carries a token
func loginRequest(mount, defaultMount, suffix string, body Data) *Request {
	path := "auth/" + mountOr(mount, defaultMount) + "/login"
	if len(suffix) != 0 {
		path += "/" + strings.Trim(suffix, "/")
	}

	return &Request{
		Method:          http.MethodPost,
		Path:            path,
		Body:            body,
		Unauthenticated: true,
	}
}

func mountOr(mount, fallback string) string {
	mount = strings.Trim(mount, "/")
	if len(mount) == 0 {
		return fallback
	}
	return mount
}

// sessionFromAuth - builds a session from the `auth` block of a login response
func sessionFromAuth(method string, secret *Secret[Data]) (*Session, error) {
	if secret == nil || secret.Auth == nil {
		return nil, &AuthExtractionError{Method: method, Reason: "no auth block in response"}
	}

	if len(secret.Auth.ClientToken) == 0 {
		return nil, &AuthExtractionError{Method: method, Reason: "empty client token"}
	}

	policies := secret.Auth.Policies
	if len(policies) == 0 {
		policies = secret.Auth.TokenPolicies
	}

	s := &Session{
		Token:         secret.Auth.ClientToken,
		Accessor:      secret.Auth.Accessor,
		Policies:      policies,
		LeaseDuration: time.Duration(secret.Auth.LeaseDuration) * time.Second,
		Renewable:     secret.Auth.Renewable,
		IssuedAt:      time.Now().UTC(),
	}
	s.setExpiry()

	return s, nil
}
