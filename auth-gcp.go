package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/compute/metadata"
	"google.golang.org/api/iamcredentials/v1"
	"google.golang.org/api/option"
)

// gcpJWTLifetime - the gcp auth backend rejects self signed JWTs valid for longer than 15 minutes
const gcpJWTLifetime = 15 * time.Minute

// GCP - service account identity proven with a JWT signed by the IAM credentials API
type GCP struct {
	Role                string
	ServiceAccountEmail string // read from the metadata server when empty
	Mount               string // defaults to "gcp"

	// ClientOptions - passed to the IAM credentials client, e.g. `option.WithCredentialsFile`
	ClientOptions []option.ClientOption
}

func (GCP) isCredential() {}

func (g GCP) validate() error {
	if len(g.Role) == 0 {
		return errors.New("gcp: role is required")
	}
	return nil
}

type gcpStrategy struct {
	cred GCP
}

func (s *gcpStrategy) Method() string {
	return "gcp"
}

func (s *gcpStrategy) BuildLoginRequest(ctx context.Context) (*Request, error) {
	email := s.cred.ServiceAccountEmail
	if len(email) == 0 {
		var err error
		if email, err = metadata.EmailWithContext(ctx, "default"); nil != err {
			return nil, fmt.Errorf("buildloginrequest: service account email: %w", err)
		}
	}

	service, err := iamcredentials.NewService(ctx, s.cred.ClientOptions...)
	if nil != err {
		return nil, fmt.Errorf("buildloginrequest: %w", err)
	}

	now := time.Now()
	claims, err := json.Marshal(map[string]interface{}{
		"aud": "vault/" + s.cred.Role,
		"sub": email,
		"iat": now.Unix(),
		"exp": now.Add(gcpJWTLifetime).Unix(),
	})
	if nil != err {
		return nil, fmt.Errorf("buildloginrequest: %w", err)
	}

	signed, err := service.Projects.ServiceAccounts.SignJwt(
		"projects/-/serviceAccounts/"+email,
		&iamcredentials.SignJwtRequest{Payload: string(claims)},
	).Context(ctx).Do()
	if nil != err {
		return nil, fmt.Errorf("buildloginrequest: sign jwt: %w", err)
	}

	d := NewData()
	d.SetString("role", s.cred.Role)
	d.SetString("jwt", signed.SignedJwt)

	return loginRequest(s.cred.Mount, s.Method(), "", d), nil
}

func (s *gcpStrategy) ExtractSession(secret *Secret[Data]) (*Session, error) {
	return sessionFromAuth(s.Method(), secret)
}
