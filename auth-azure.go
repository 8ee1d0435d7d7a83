package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// AzureDefaultResource - audience the azure auth backend expects by default
const AzureDefaultResource = "https://management.azure.com/"

// Azure - managed identity token plus the VM details the azure auth backend binds roles to
type Azure struct {
	Role           string
	Resource       string // defaults to `AzureDefaultResource`
	SubscriptionID string
	ResourceGroup  string
	VMName         string
	VMSSName       string
	Mount          string // defaults to "azure"

	// Credential - nil uses the managed identity of the host
	Credential azcore.TokenCredential
}

func (Azure) isCredential() {}

func (a Azure) validate() error {
	if len(a.Role) == 0 {
		return errors.New("azure: role is required")
	}
	return nil
}

type azureStrategy struct {
	cred Azure
}

func (s *azureStrategy) Method() string {
	return "azure"
}

func (s *azureStrategy) BuildLoginRequest(ctx context.Context) (*Request, error) {
	cred := s.cred.Credential
	if cred == nil {
		mi, err := azidentity.NewManagedIdentityCredential(nil)
		if nil != err {
			return nil, fmt.Errorf("buildloginrequest: managed identity: %w", err)
		}
		cred = mi
	}

	resource := s.cred.Resource
	if len(resource) == 0 {
		resource = AzureDefaultResource
	}

	token, err := cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{strings.TrimSuffix(resource, "/") + "/.default"},
	})
	if nil != err {
		return nil, fmt.Errorf("buildloginrequest: get token: %w", err)
	}

	d := NewData()
	d.SetString("role", s.cred.Role)
	d.SetString("jwt", token.Token)
	for field, value := range map[string]string{
		"subscription_id":     s.cred.SubscriptionID,
		"resource_group_name": s.cred.ResourceGroup,
		"vm_name":             s.cred.VMName,
		"vmss_name":           s.cred.VMSSName,
	} {
		if len(value) != 0 {
			d.SetString(field, value)
		}
	}

	return loginRequest(s.cred.Mount, s.Method(), "", d), nil
}

func (s *azureStrategy) ExtractSession(secret *Secret[Data]) (*Session, error) {
	return sessionFromAuth(s.Method(), secret)
}
