package vault

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// TokenInfo - properties of a token as returned by `auth/token/lookup-self`
type TokenInfo struct {
	ID             string            `json:"id"`
	Accessor       string            `json:"accessor"`
	DisplayName    string            `json:"display_name"`
	Policies       []string          `json:"policies"`
	Path           string            `json:"path"`
	Meta           map[string]string `json:"meta"`
	NumUses        int               `json:"num_uses"`
	Orphan         bool              `json:"orphan"`
	Renewable      bool              `json:"renewable"`
	TTL            int               `json:"ttl"`
	CreationTTL    int               `json:"creation_ttl"`
	ExplicitMaxTTL int               `json:"explicit_max_ttl"`
	EntityID       string            `json:"entity_id"`
	Type           string            `json:"type"`
}

// LookupSelf - properties of the session token
func (v *Client) LookupSelf(ctx context.Context) (info *TokenInfo, err error) {

	secret, err := Send[TokenInfo](ctx, v, &Request{Method: http.MethodGet, Path: "auth/token/lookup-self"})
	if nil != err {
		return nil, fmt.Errorf("lookupself: %w", err)
	}

	return &secret.Data, nil
}

// RenewSelf - extends the lease of the session token, `increment` of 0 asks for the default
func (v *Client) RenewSelf(ctx context.Context, increment time.Duration) (session *Session, err error) {
	current, err := v.ensureSession(ctx)
	if nil != err {
		return nil, fmt.Errorf("renewself: %w", err)
	}

	renewed, err := v.renewToken(ctx, current.Token, increment)
	if nil != err {
		return nil, fmt.Errorf("renewself: %w", err)
	}

	v.mutex.Lock()
	defer v.mutex.Unlock()

	// a login may have replaced the token meanwhile, keep the newer one
	if v.session.CompareAndSwap(current, renewed) {
		v.log.INFO.Printf("token renewed, valid until %s", renewed.ExpiresAt().Format(time.RFC3339))
	}

	return renewed.copy(), nil
}

// renewToken - renew-self for `token`, the renewed session is returned but not stored
func (v *Client) renewToken(ctx context.Context, token string, increment time.Duration) (*Session, error) {
	d := NewData()
	if increment > 0 {
		d.SetString("increment", increment.String())
	}

	secret, err := Send[Data](ctx, v, &Request{Method: http.MethodPost, Path: "auth/token/renew-self", Body: d, Token: token})
	if nil != err {
		return nil, err
	}

	return sessionFromAuth(v.strategy.Method(), secret)
}

// RevokeSelf - revokes the session token and forgets it, the next request logs in again
func (v *Client) RevokeSelf(ctx context.Context) (err error) {
	current := v.session.Load()
	if !current.valid(time.Now()) {
		v.ResetSession()
		return nil
	}

	_, err = Send[Data](ctx, v, &Request{Method: http.MethodPost, Path: "auth/token/revoke-self", Token: current.Token})
	if nil != err {
		return fmt.Errorf("revokeself: %w", err)
	}

	v.invalidate(current)
	return nil
}
