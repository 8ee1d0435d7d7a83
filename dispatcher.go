package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	hvault "github.com/hashicorp/vault/api"
)

// Send - sends the request and decodes the response envelope, logging in first when the request needs a token
func Send[T any](ctx context.Context, c *Client, r *Request) (secret *Secret[T], err error) {
	resp, err := c.dispatch(ctx, r)
	if nil != err {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeSecret[T](resp)
}

// dispatch - sends the request, a token rejected as invalid leads to one re-login and one replay
func (c *Client) dispatch(ctx context.Context, r *Request) (*hvault.Response, error) {
	token := r.Token

	var observed *Session
	if len(token) == 0 && !r.Unauthenticated {
		s, err := c.ensureSession(ctx)
		if nil != err {
			return nil, err
		}
		observed, token = s, s.Token
	}

	resp, err := c.do(ctx, r, token)
	if nil == err || nil == observed {
		return resp, err
	}

	apiErr, ok := AsAPIError(err)
	if !ok || !c.config.TokenInvalid(apiErr) {
		return nil, err
	}

	c.log.WARN.Printf("%s %s: token rejected (%s), logging in again", r.Method, r.Path, strings.Join(apiErr.Errors, "; "))
	c.metrics.relogins.Inc()
	c.invalidate(observed)

	s, err := c.login(ctx, observed, false)
	if nil != err {
		return nil, err
	}

	return c.do(ctx, r, s.Token)
}

// do - a single round trip, transport failures are retried inside the vault api client per the retry policy
func (c *Client) do(ctx context.Context, r *Request, token string) (*hvault.Response, error) {
	req := c.api.NewRequest(r.Method, "/v1/"+strings.TrimPrefix(r.Path, "/"))
	req.ClientToken = token
	req.WrapTTL = r.WrapTTL // always set, otherwise the client falls back to VAULT_WRAP_TTL

	for k, v := range r.Params {
		req.Params[k] = append([]string(nil), v...)
	}

	if nil != r.Body {
		if err := req.SetJSONBody(requestBody(r.Body)); nil != err {
			return nil, fmt.Errorf("%s %s: encode body: %w", r.Method, r.Path, err)
		}
	}

	start := time.Now()
	resp, err := c.api.RawRequestWithContext(ctx, req) //nolint:staticcheck // token, wrapping and retries are handled here
	c.metrics.observe(r.Method, resp, err, time.Since(start))

	if nil == err {
		return resp, nil
	}

	if nil != resp && nil != resp.Response && nil != resp.Body {
		resp.Body.Close()
	}

	return nil, classify(r, resp, err)
}

// classify - a response with a status becomes an APIError carrying the server messages verbatim, anything else is a TransportError
func classify(r *Request, resp *hvault.Response, err error) error {
	var respErr *hvault.ResponseError
	if errors.As(err, &respErr) {
		return &APIError{
			StatusCode: respErr.StatusCode,
			Errors:     respErr.Errors,
			Method:     r.Method,
			Path:       r.Path,
		}
	}

	if nil != resp && nil != resp.Response {
		return &APIError{
			StatusCode: resp.StatusCode,
			Errors:     []string{err.Error()},
			Method:     r.Method,
			Path:       r.Path,
		}
	}

	return &TransportError{Method: r.Method, Path: r.Path, Err: err}
}

// requestBody - fields set to nil are left out of the JSON body, typed bodies rely on `omitempty`
func requestBody(body interface{}) interface{} {
	switch b := body.(type) {
	case Data:
		return b.compact()
	case map[string]interface{}:
		return Data(b).compact()
	}
	return body
}

func decodeSecret[T any](resp *hvault.Response) (*Secret[T], error) {
	secret := new(Secret[T])
	if resp.StatusCode == http.StatusNoContent {
		return secret, nil
	}

	if err := resp.DecodeJSON(secret); nil != err {
		if errors.Is(err, io.EOF) {
			return secret, nil // empty body
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return secret, nil
}
