package vault

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
)

const (
	awsDefaultRegion   = "us-east-1"
	awsServerIDHeader  = "X-Vault-AWS-IAM-Server-ID"
	awsCallerIdentity  = "Action=GetCallerIdentity&Version=2011-06-15"
	awsSTSGlobalAddr   = "https://sts.amazonaws.com/"
	awsSTSRegionalAddr = "https://sts.%s.amazonaws.com/"
)

// AWS - IAM identity proven with a signed `sts:GetCallerIdentity` request
type AWS struct {
	Role           string
	Region         string // signing region, the global STS endpoint is used when empty
	STSEndpoint    string // overrides the endpoint derived from Region
	ServerIDHeader string // value for `X-Vault-AWS-IAM-Server-ID`, must match the auth backend
	Mount          string // defaults to "aws"

	// Credentials - nil loads the default chain (environment, shared config, IRSA, instance role)
	Credentials aws.CredentialsProvider
}

func (AWS) isCredential() {}

func (a AWS) validate() error {
	if len(a.Role) == 0 {
		return errors.New("aws: role is required")
	}
	return nil
}

type awsStrategy struct {
	cred AWS
}

func (s *awsStrategy) Method() string {
	return "aws"
}

// BuildLoginRequest - signs a GetCallerIdentity call which Vault replays against STS, nothing is sent to AWS here
func (s *awsStrategy) BuildLoginRequest(ctx context.Context) (*Request, error) {
	region := s.cred.Region
	if len(region) == 0 {
		region = awsDefaultRegion
	}

	endpoint := s.cred.STSEndpoint
	if len(endpoint) == 0 {
		endpoint = awsSTSGlobalAddr
		if len(s.cred.Region) != 0 {
			endpoint = fmt.Sprintf(awsSTSRegionalAddr, s.cred.Region)
		}
	}

	creds, err := s.credentials(ctx, region)
	if nil != err {
		return nil, fmt.Errorf("buildloginrequest: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(awsCallerIdentity))
	if nil != err {
		return nil, fmt.Errorf("buildloginrequest: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	if len(s.cred.ServerIDHeader) != 0 {
		req.Header.Set(awsServerIDHeader, s.cred.ServerIDHeader)
	}

	sum := sha256.Sum256([]byte(awsCallerIdentity))
	if err = v4.NewSigner().SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), "sts", region, time.Now().UTC()); nil != err {
		return nil, fmt.Errorf("buildloginrequest: sign: %w", err)
	}

	headers, err := json.Marshal(req.Header)
	if nil != err {
		return nil, fmt.Errorf("buildloginrequest: %w", err)
	}

	d := NewData()
	d.SetString("role", s.cred.Role)
	d.SetString("iam_http_request_method", http.MethodPost)
	d.SetString("iam_request_url", base64.StdEncoding.EncodeToString([]byte(endpoint)))
	d.SetString("iam_request_body", base64.StdEncoding.EncodeToString([]byte(awsCallerIdentity)))
	d.SetString("iam_request_headers", base64.StdEncoding.EncodeToString(headers))

	return loginRequest(s.cred.Mount, s.Method(), "", d), nil
}

func (s *awsStrategy) ExtractSession(secret *Secret[Data]) (*Session, error) {
	return sessionFromAuth(s.Method(), secret)
}

func (s *awsStrategy) credentials(ctx context.Context, region string) (aws.Credentials, error) {
	provider := s.cred.Credentials
	if provider == nil {
		cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
		if nil != err {
			return aws.Credentials{}, fmt.Errorf("load aws config: %w", err)
		}
		provider = cfg.Credentials
	}

	return provider.Retrieve(ctx)
}
