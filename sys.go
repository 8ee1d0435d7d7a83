package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultSealPollInterval - how often `WaitForUnseal` checks the seal status
const DefaultSealPollInterval = 5 * time.Second

// SealStatus - response of `sys/seal-status`
type SealStatus struct {
	Type        string `json:"type"`
	Initialized bool   `json:"initialized"`
	Sealed      bool   `json:"sealed"`
	T           int    `json:"t"`
	N           int    `json:"n"`
	Progress    int    `json:"progress"`
	Version     string `json:"version"`
	ClusterName string `json:"cluster_name,omitempty"`
	ClusterID   string `json:"cluster_id,omitempty"`
}

// MountInput - options for enabling an auth method or a secrets engine
type MountInput struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
	Local       bool              `json:"local,omitempty"`
	SealWrap    bool              `json:"seal_wrap,omitempty"`
}

// SealStatus - returns the seal status, the endpoint needs no token
func (v *Client) SealStatus(ctx context.Context) (status *SealStatus, err error) {

	// seal-status is one of the few endpoints answering with a bare object instead of the secret envelope
	resp, err := v.dispatch(ctx, &Request{Method: http.MethodGet, Path: "sys/seal-status", Unauthenticated: true})
	if nil != err {
		return nil, fmt.Errorf("sealstatus: %w", err)
	}
	defer resp.Body.Close()

	status = new(SealStatus)
	if err = resp.DecodeJSON(status); nil != err {
		return nil, fmt.Errorf("sealstatus: %w", err)
	}

	return
}

// IsSealed - checks if Vault is currently sealed
func (v *Client) IsSealed(ctx context.Context) (sealed bool, err error) {

	status, err := v.SealStatus(ctx)
	if nil != err {
		return true, fmt.Errorf("issealed: %w", err)
	}

	return status.Sealed, nil
}

// WaitForUnseal - polls the seal status every `interval` until Vault is unsealed or the context ends,
// a server that cannot be reached yet is polled again
func (v *Client) WaitForUnseal(ctx context.Context, interval time.Duration) (err error) {
	if interval <= 0 {
		interval = DefaultSealPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		sealed, err := v.IsSealed(ctx)
		switch {
		case nil == err && !sealed:
			return nil
		case nil == err:
			v.log.INFO.Printf("vault is sealed, waiting for it to be unsealed (attempt %d)", attempt)
		case IsTransportError(err):
			v.log.INFO.Printf("vault is unreachable, checking again in %s (attempt %d): %v", interval, attempt, err)
		default:
			return fmt.Errorf("waitforunseal: %w", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waitforunseal: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// EnableAuthMethod - mounts an auth method at `path`
func (v *Client) EnableAuthMethod(ctx context.Context, path string, input MountInput) (err error) {
	return v.enable(ctx, "sys/auth/", path, input)
}

// EnableSecretsEngine - mounts a secrets engine at `path`
func (v *Client) EnableSecretsEngine(ctx context.Context, path string, input MountInput) (err error) {
	return v.enable(ctx, "sys/mounts/", path, input)
}

func (v *Client) enable(ctx context.Context, prefix, path string, input MountInput) (err error) {
	path = strings.Trim(path, "/")
	if len(path) == 0 || len(input.Type) == 0 {
		return errors.New("enable: path and type are required")
	}

	_, err = Send[Data](ctx, v, &Request{Method: http.MethodPost, Path: prefix + path, Body: input})
	if nil != err {
		return fmt.Errorf("enable %s: %w", path, err)
	}

	return
}

// WritePolicy - creates or replaces the ACL policy `name`
func (v *Client) WritePolicy(ctx context.Context, name, policy string) (err error) {
	d := NewData()
	d.SetString("policy", policy)

	_, err = Send[Data](ctx, v, &Request{Method: http.MethodPut, Path: "sys/policies/acl/" + name, Body: d})
	if nil != err {
		return fmt.Errorf("writepolicy: %w", err)
	}

	return
}

// ReadPolicy - returns the rules of the ACL policy `name`
func (v *Client) ReadPolicy(ctx context.Context, name string) (policy string, err error) {

	secret, err := Send[Data](ctx, v, &Request{Method: http.MethodGet, Path: "sys/policies/acl/" + name})
	if nil != err {
		return "", fmt.Errorf("readpolicy: %w", err)
	}

	return secret.Data.GetString("policy"), nil
}
