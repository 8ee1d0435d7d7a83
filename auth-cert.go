package vault

import "context"

// Cert - TLS certificate auth, the client certificate itself is configured through `TLSConfig`
type Cert struct {
	Name  string // certificate role to match against, optional
	Mount string // defaults to "cert"
}

func (Cert) isCredential() {}

func (c Cert) validate() error {
	return nil
}

type certStrategy struct {
	cred Cert
}

func (s *certStrategy) Method() string {
	return "cert"
}

func (s *certStrategy) BuildLoginRequest(_ context.Context) (*Request, error) {
	d := NewData()
	if len(s.cred.Name) != 0 {
		d.SetString("name", s.cred.Name)
	}

	return loginRequest(s.cred.Mount, s.Method(), "", d), nil
}

func (s *certStrategy) ExtractSession(secret *Secret[Data]) (*Session, error) {
	return sessionFromAuth(s.Method(), secret)
}
