package vault

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// WrappingInfo - properties of a wrapping token as returned by `sys/wrapping/lookup`
type WrappingInfo struct {
	CreationPath string    `json:"creation_path"`
	CreationTime time.Time `json:"creation_time"`
	CreationTTL  int       `json:"creation_ttl"`
}

// Unwrap - returns the secret wrapped behind `wrappingToken`. Vault accepts a wrapping token once,
// later calls fail with an APIError carrying `MsgWrappingTokenInvalid`. An empty token unwraps with the session token,
// for a client whose Token credential holds a wrapping token.
func Unwrap[T any](ctx context.Context, c *Client, wrappingToken string) (secret *Secret[T], err error) {
	secret, err = Send[T](ctx, c, &Request{
		Method: http.MethodPost,
		Path:   "sys/wrapping/unwrap",
		Token:  wrappingToken,
	})
	if nil != err {
		return nil, fmt.Errorf("unwrap: %w", err)
	}

	return
}

// LookupWrapping - inspects a wrapping token without consuming it
func (c *Client) LookupWrapping(ctx context.Context, wrappingToken string) (info *WrappingInfo, err error) {
	d := NewData()
	d.SetString("token", wrappingToken)

	secret, err := Send[WrappingInfo](ctx, c, &Request{
		Method:          http.MethodPost,
		Path:            "sys/wrapping/lookup",
		Body:            d,
		Unauthenticated: true,
	})
	if nil != err {
		return nil, fmt.Errorf("lookupwrapping: %w", err)
	}

	return &secret.Data, nil
}
