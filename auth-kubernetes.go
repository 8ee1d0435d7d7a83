package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultServiceAccountTokenPath - where the kubelet mounts the pod's service account token
const DefaultServiceAccountTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// Kubernetes - role and service account token for the kubernetes auth method
type Kubernetes struct {
	Role    string
	JWT     string // read from JWTPath when empty
	JWTPath string // defaults to `DefaultServiceAccountTokenPath`
	Mount   string // defaults to "kubernetes"
}

func (Kubernetes) isCredential() {}

func (k Kubernetes) validate() error {
	if len(k.Role) == 0 {
		return errors.New("kubernetes: role is required")
	}
	return nil
}

type kubernetesStrategy struct {
	cred Kubernetes
}

func (s *kubernetesStrategy) Method() string {
	return "kubernetes"
}

// BuildLoginRequest - the token file is read on every login since the kubelet rotates it
func (s *kubernetesStrategy) BuildLoginRequest(_ context.Context) (*Request, error) {
	jwt := s.cred.JWT
	if len(jwt) == 0 {
		path := s.cred.JWTPath
		if len(path) == 0 {
			path = DefaultServiceAccountTokenPath
		}

		bytes, err := os.ReadFile(path)
		if nil != err {
			return nil, fmt.Errorf("buildloginrequest: %w", err)
		}
		jwt = strings.TrimSpace(string(bytes))
	}

	d := NewData()
	d.SetString("role", s.cred.Role)
	d.SetString("jwt", jwt)

	return loginRequest(s.cred.Mount, s.Method(), "", d), nil
}

func (s *kubernetesStrategy) ExtractSession(secret *Secret[Data]) (*Session, error) {
	return sessionFromAuth(s.Method(), secret)
}
