package vault

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	loginKey       = "login"
	forcedLoginKey = "forced-login"
)

// errLoginAbandoned - the caller that started the login went away, waiters with a live context start a new one
var errLoginAbandoned = errors.New("login abandoned by its initiator")

// EnsureAuthenticated - returns a valid token, logging in first if there is none
func (c *Client) EnsureAuthenticated(ctx context.Context) (token string, err error) {
	s, err := c.ensureSession(ctx)
	if nil != err {
		return "", err
	}
	return s.Token, nil
}

// PerformImmediateLogin - discards the current token and logs in again, even when the token is still valid
func (c *Client) PerformImmediateLogin(ctx context.Context) (session *Session, err error) {
	s, err := c.login(ctx, c.session.Load(), true)
	if nil != err {
		return nil, err
	}
	return s.copy(), nil
}

// Session - a copy of the current session, nil before the first login or after a failed one
func (c *Client) Session() *Session {
	return c.session.Load().copy()
}

// ResetSession - drops the current token, the next request logs in again
func (c *Client) ResetSession() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.session.Store(nil)
}

func (c *Client) ensureSession(ctx context.Context) (*Session, error) {
	current := c.session.Load()
	if current.valid(time.Now()) {
		return current, nil
	}
	return c.login(ctx, current, false)
}

// invalidate - drops `stale` unless another caller already replaced it
func (c *Client) invalidate(stale *Session) {
	if stale != nil {
		c.session.CompareAndSwap(stale, nil)
	}
}

// login - joins the login in flight or starts one, `stale` is the session the caller saw before asking
func (c *Client) login(ctx context.Context, stale *Session, force bool) (*Session, error) {
	key := loginKey
	if force {
		key = forcedLoginKey
	}

	for {
		ch := c.logins.DoChan(key, func() (interface{}, error) {
			return c.performLogin(ctx, stale, force)
		})

		select {
		case <-ctx.Done():
			return nil, &AuthenticationError{Method: c.strategy.Method(), Err: ctx.Err()}

		case res := <-ch:
			if nil == res.Err {
				return res.Val.(*Session), nil
			}

			if errors.Is(res.Err, errLoginAbandoned) && nil == ctx.Err() {
				c.log.DEBUG.Printf("login abandoned by its initiator, retrying")
				continue
			}
			return nil, res.Err
		}
	}
}

// performLogin - runs one login under the session lock, a forced login never reuses the current session
func (c *Client) performLogin(ctx context.Context, stale *Session, force bool) (*Session, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	method := c.strategy.Method()

	current := c.session.Load()
	if force {
		c.session.Store(nil)
	} else if current != stale && current.valid(time.Now()) {
		return current, nil // another caller logged in meanwhile
	} else if nil != current && current == stale && current.Renewable {
		// still stored, so it only ran past the local expiry and the server may still accept it
		renewed, err := c.renewToken(ctx, current.Token, 0)
		if nil == err {
			c.session.Store(renewed)
			c.log.INFO.Printf("renewed %s token instead of logging in, valid until %s", method, renewed.ExpiresAt().Format(time.RFC3339))
			return renewed, nil
		}
		c.log.INFO.Printf("renewing %s token failed, logging in: %v", method, err)
	}

	c.log.INFO.Printf("logging in using %s", method)

	session, err := c.authenticate(ctx)
	if nil != err {
		c.session.Store(nil)
		c.metrics.login(method, false)
		c.log.ERROR.Printf("login using %s failed: %v", method, err)

		if nil != ctx.Err() {
			err = fmt.Errorf("%w: %w", errLoginAbandoned, err)
		}
		return nil, &AuthenticationError{Method: method, Err: err}
	}

	c.session.Store(session)
	c.metrics.login(method, true)

	if session.ExpiresAt().IsZero() {
		c.log.INFO.Printf("logged in using %s, token does not expire", method)
	} else {
		c.log.INFO.Printf("logged in using %s, token valid until %s", method, session.ExpiresAt().Format(time.RFC3339))
	}

	return session, nil
}

// authenticate - sends the strategy's login request, login calls never carry the session token
func (c *Client) authenticate(ctx context.Context) (*Session, error) {
	if p, ok := c.strategy.(preparer); ok {
		if err := p.prepare(ctx, c); nil != err {
			return nil, err
		}
	}

	req, err := c.strategy.BuildLoginRequest(ctx)
	if nil != err {
		return nil, err
	}

	var secret *Secret[Data]
	if nil != req {
		req.Unauthenticated = true

		secret, err = Send[Data](ctx, c, req)
		if nil != err {
			return nil, err
		}
	}

	return c.strategy.ExtractSession(secret)
}
