package vaulttest

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type wrapping struct {
	response     map[string]interface{}
	accessor     string
	creationPath string
	created      time.Time
	ttl          time.Duration
}

func (w *wrapping) valid(now time.Time) bool {
	return now.Before(w.created.Add(w.ttl))
}

func (s *Server) sealStatus() reply {
	// seal-status answers with a bare object, not an envelope
	return reply{status: http.StatusOK, body: map[string]interface{}{
		"type":         "shamir",
		"initialized":  true,
		"sealed":       s.sealed,
		"t":            1,
		"n":            1,
		"progress":     0,
		"version":      "1.16.0",
		"cluster_name": "vaulttest",
		"cluster_id":   "00000000-0000-0000-0000-000000000000",
	}}
}

func (s *Server) sys(c *call) reply {
	switch {
	case strings.HasPrefix(c.Path, "sys/auth/"):
		return s.enableMount(c, strings.TrimPrefix(c.Path, "sys/auth/"), true)
	case strings.HasPrefix(c.Path, "sys/mounts/"):
		return s.enableMount(c, strings.TrimPrefix(c.Path, "sys/mounts/"), false)
	case strings.HasPrefix(c.Path, "sys/policies/acl/"):
		return s.policy(c, strings.TrimPrefix(c.Path, "sys/policies/acl/"))
	}
	return noRoute(c.Path)
}

func (s *Server) enableMount(c *call, path string, auth bool) reply {
	if c.Method != http.MethodPost && c.Method != http.MethodPut {
		return noRoute(c.Path)
	}

	typ := stringValue(c.Body, "type")
	if len(typ) == 0 {
		return fail(http.StatusBadRequest, "missing type")
	}

	if auth {
		if _, exists := s.auths[path]; exists {
			return fail(http.StatusBadRequest, "path is already in use at "+path+"/")
		}
		s.auths[path] = newAuthMount(typ)
		return noContent()
	}

	if _, exists := s.mounts[path]; exists {
		return fail(http.StatusBadRequest, "path is already in use at "+path+"/")
	}

	m := &secretMount{typ: typ, version: 1, data: make(map[string]*kvEntry)}
	if typ == "kv-v2" || stringMap(c.Body, "options")["version"] == "2" {
		m.typ, m.version = "kv", 2
	}
	s.mounts[path] = m
	return noContent()
}

func (s *Server) policy(c *call, name string) reply {
	switch c.Method {
	case http.MethodPost, http.MethodPut:
		s.policies[name] = stringValue(c.Body, "policy")
		return noContent()
	case http.MethodGet:
		rules, found := s.policies[name]
		if !found {
			return fail(http.StatusNotFound)
		}
		return ok(map[string]interface{}{"name": name, "policy": rules})
	case http.MethodDelete:
		delete(s.policies, name)
		return noContent()
	}
	return noRoute(c.Path)
}

// wrap - with `X-Vault-Wrap-TTL` set, a response carrying data is stored behind a single use token
func (s *Server) wrap(c *call, rep reply) reply {
	if len(c.WrapTTL) == 0 || rep.status != http.StatusOK || nil == rep.body {
		return rep
	}

	ttl, valid := ttlValue(c.WrapTTL)
	if !valid || ttl <= 0 {
		return fail(http.StatusBadRequest, "invalid wrap ttl "+c.WrapTTL)
	}

	w := &wrapping{
		response:     rep.body,
		accessor:     uuid.NewString(),
		creationPath: c.Path,
		created:      time.Now().UTC(),
		ttl:          ttl,
	}
	id := "hvs." + strings.ReplaceAll(uuid.NewString(), "-", "")
	s.wrapped[id] = w

	body := envelope(nil, nil)
	body["wrap_info"] = map[string]interface{}{
		"token":            id,
		"accessor":         w.accessor,
		"ttl":              secondsOf(ttl),
		"creation_time":    w.created.Format(time.RFC3339Nano),
		"creation_path":    w.creationPath,
		"wrapped_accessor": "",
	}
	return reply{status: http.StatusOK, body: body}
}

// wrappedBy - the wrapping token is the request token, or the `token` field when the request token is a regular one
func (s *Server) wrappedBy(c *call) (string, *wrapping) {
	id := c.Token
	if t, isToken := s.tokens[id]; isToken && t.valid(time.Now()) {
		id = stringValue(c.Body, "token")
	}

	w, found := s.wrapped[id]
	if !found {
		return id, nil
	}
	if !w.valid(time.Now()) {
		delete(s.wrapped, id)
		return id, nil
	}
	return id, w
}

func (s *Server) unwrap(c *call) reply {
	id, w := s.wrappedBy(c)
	if nil == w {
		return fail(http.StatusBadRequest, MsgWrappingTokenInvalid)
	}

	delete(s.wrapped, id)
	return reply{status: http.StatusOK, body: w.response}
}

func (s *Server) lookupWrapping(c *call) reply {
	id := stringValue(c.Body, "token")
	if len(id) == 0 {
		id = c.Token
	}

	w, found := s.wrapped[id]
	if !found || !w.valid(time.Now()) {
		return fail(http.StatusBadRequest, MsgWrappingTokenInvalid)
	}

	return ok(map[string]interface{}{
		"creation_path": w.creationPath,
		"creation_time": w.created.Format(time.RFC3339Nano),
		"creation_ttl":  secondsOf(w.ttl),
	})
}

// Wrap - wraps data the way a `sys/wrapping/wrap` call would, returns the wrapping token
func (s *Server) Wrap(data map[string]interface{}, ttl time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rep := s.wrap(&call{Request: Request{Path: "sys/wrapping/wrap", WrapTTL: ttl.String()}}, ok(data))
	return rep.body["wrap_info"].(map[string]interface{})["token"].(string)
}
