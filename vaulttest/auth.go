package vaulttest

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type token struct {
	id        string
	accessor  string
	policies  []string
	ttl       time.Duration // zero never expires
	issued    time.Time
	expires   time.Time
	revoked   bool
	meta      map[string]string
	entityID  string
	path      string
	renewable bool
}

func (t *token) valid(now time.Time) bool {
	return !t.revoked && (t.expires.IsZero() || now.Before(t.expires))
}

func (t *token) auth() map[string]interface{} {
	return map[string]interface{}{
		"client_token":   t.id,
		"accessor":       t.accessor,
		"policies":       t.policies,
		"token_policies": t.policies,
		"metadata":       t.meta,
		"lease_duration": secondsOf(t.ttl),
		"renewable":      t.renewable,
		"entity_id":      t.entityID,
		"token_type":     "service",
		"orphan":         true,
	}
}

type authMount struct {
	typ      string
	accessor string
}

func newAuthMount(typ string) *authMount {
	return &authMount{typ: typ, accessor: "auth_" + typ + "_" + uuid.NewString()[:8]}
}

type user struct {
	password string
	policies []string
}

type appRole struct {
	name            string
	roleID          string
	bindSecretID    bool
	tokenPolicies   []string
	tokenTTL        time.Duration
	tokenMaxTTL     time.Duration
	secretIDTTL     time.Duration
	secretIDNumUses int
	settings        map[string]interface{}
}

type secretID struct {
	mount    string
	role     string
	accessor string
	expires  time.Time
	usesLeft int // zero is unlimited
}

// issue - creates a token, policies are sorted with "default" added like Vault does for logins
func (s *Server) issue(policies []string, ttl time.Duration, meta map[string]string) *token {
	t := &token{
		id:        "hvs." + strings.ReplaceAll(uuid.NewString(), "-", ""),
		accessor:  uuid.NewString(),
		policies:  policies,
		ttl:       ttl,
		issued:    time.Now(),
		meta:      meta,
		renewable: ttl > 0,
	}
	if ttl > 0 {
		t.expires = t.issued.Add(ttl)
	}
	s.tokens[t.id] = t
	return t
}

func loginPolicies(policies []string) []string {
	out := []string{"default"}
	for _, p := range policies {
		if p != "default" && len(p) != 0 {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// CreateToken - issues a token, a zero ttl never expires
func (s *Server) CreateToken(ttl time.Duration, policies ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.issue(loginPolicies(policies), ttl, nil).id
}

// RevokeToken - revokes a token, later requests with it fail as invalid
func (s *Server) RevokeToken(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tokens[id]; ok {
		t.revoked = true
	}
}

// TokenValid - whether a token would be accepted now
func (s *Server) TokenValid(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	return ok && t.valid(time.Now())
}

// AddUser - registers a user for the userpass or ldap method mounted at mount
func (s *Server) AddUser(mount, username, password string, policies ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[mount+"/"+username] = &user{password: password, policies: policies}
}

// AddRole - registers a login role for the github (role is the token), kubernetes, jwt, cert (role is the
// certificate name), aws, azure or gcp method mounted at mount
func (s *Server) AddRole(mount, role string, policies ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roles[mount+"/"+role] = policies
}

// LoginBody - body of the last login request received by the method mounted at mount
func (s *Server) LoginBody(mount string) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastLogin[mount]
}

// AuthAccessor - accessor of the auth method mounted at path
func (s *Server) AuthAccessor(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.auths[strings.Trim(path, "/")]; ok {
		return m.accessor
	}
	return ""
}

func (s *Server) login(c *call) reply {
	rest := strings.TrimPrefix(c.Path, "auth/")
	i := strings.Index(rest, "/login")
	mount, suffix := rest[:i], strings.TrimPrefix(rest[i+len("/login"):], "/")

	s.lastLogin[mount] = c.Body

	m, ok := s.auths[mount]
	if !ok || c.Method != http.MethodPost && c.Method != http.MethodPut {
		return noRoute(c.Path)
	}

	switch m.typ {
	case "approle":
		return s.loginAppRole(c, mount)

	case "userpass", "ldap":
		u, ok := s.users[mount+"/"+suffix]
		if !ok || u.password != stringValue(c.Body, "password") {
			return fail(http.StatusBadRequest, "invalid username or password")
		}
		return s.grant(u.policies, DefaultTokenTTL, map[string]string{"username": suffix})

	case "github":
		policies, ok := s.roles[mount+"/"+stringValue(c.Body, "token")]
		if !ok {
			return fail(http.StatusBadRequest, "user is not part of the configured organization")
		}
		return s.grant(policies, DefaultTokenTTL, nil)

	case "cert":
		policies, ok := s.roles[mount+"/"+stringValue(c.Body, "name")]
		if !ok {
			return fail(http.StatusBadRequest, "invalid certificate or no client certificate supplied")
		}
		return s.grant(policies, DefaultTokenTTL, nil)

	case "aws":
		for _, field := range []string{"iam_http_request_method", "iam_request_url", "iam_request_body", "iam_request_headers"} {
			if len(stringValue(c.Body, field)) == 0 {
				return fail(http.StatusBadRequest, "missing "+field)
			}
		}
		fallthrough

	case "kubernetes", "jwt", "azure", "gcp":
		role := stringValue(c.Body, "role")
		policies, ok := s.roles[mount+"/"+role]
		if !ok {
			return fail(http.StatusBadRequest, "invalid role name \""+role+"\"")
		}
		if m.typ != "aws" && len(stringValue(c.Body, "jwt")) == 0 {
			return fail(http.StatusBadRequest, "missing jwt")
		}
		return s.grant(policies, DefaultTokenTTL, map[string]string{"role": role})
	}

	return fail(http.StatusBadRequest, "unsupported auth method "+m.typ)
}

func (s *Server) loginAppRole(c *call, mount string) reply {
	roleID := stringValue(c.Body, "role_id")
	if len(roleID) == 0 {
		return fail(http.StatusBadRequest, "missing role_id")
	}

	var role *appRole
	for key, r := range s.approles {
		if strings.HasPrefix(key, mount+"/") && r.roleID == roleID {
			role = r
			break
		}
	}
	if nil == role {
		return fail(http.StatusBadRequest, "invalid role ID")
	}

	if role.bindSecretID {
		id := stringValue(c.Body, "secret_id")
		sid, ok := s.secretIDs[id]
		if !ok || sid.mount != mount || sid.role != role.name {
			return fail(http.StatusBadRequest, "invalid secret id")
		}
		if !sid.expires.IsZero() && time.Now().After(sid.expires) {
			delete(s.secretIDs, id)
			return fail(http.StatusBadRequest, "invalid secret id")
		}
		if sid.usesLeft > 0 {
			sid.usesLeft--
			if sid.usesLeft == 0 {
				delete(s.secretIDs, id)
			}
		}
	}

	ttl := role.tokenTTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	return s.grant(role.tokenPolicies, ttl, map[string]string{"role_name": role.name})
}

func (s *Server) grant(policies []string, ttl time.Duration, meta map[string]string) reply {
	t := s.issue(loginPolicies(policies), ttl, meta)
	return okAuth(t.auth())
}

// tokenSelf - lookup-self, renew-self and revoke-self of the request token
func (s *Server) tokenSelf(c *call) reply {
	t := c.token

	switch c.Path {
	case "auth/token/lookup-self":
		remaining := 0
		if !t.expires.IsZero() {
			remaining = secondsOf(time.Until(t.expires))
		}
		return ok(map[string]interface{}{
			"id":               t.id,
			"accessor":         t.accessor,
			"policies":         t.policies,
			"ttl":              remaining,
			"creation_ttl":     secondsOf(t.ttl),
			"explicit_max_ttl": 0,
			"renewable":        t.renewable,
			"meta":             t.meta,
			"num_uses":         0,
			"orphan":           true,
			"path":             t.path,
			"display_name":     "token",
			"entity_id":        t.entityID,
			"type":             "service",
		})

	case "auth/token/renew-self":
		if !t.renewable {
			return fail(http.StatusBadRequest, "lease is not renewable")
		}
		increment, ok := ttlValue(c.Body["increment"])
		if !ok || increment <= 0 {
			increment = t.ttl
		}
		t.ttl = increment
		t.expires = time.Now().Add(increment)
		return okAuth(t.auth())

	case "auth/token/revoke-self":
		t.revoked = true
		return noContent()
	}

	return noRoute(c.Path)
}

// appRoleAdmin - role, role-id and secret-id management of an approle mount
func (s *Server) appRoleAdmin(c *call) reply {
	parts := strings.Split(strings.TrimPrefix(c.Path, "auth/"), "/")
	if len(parts) < 2 || parts[1] != "role" {
		return noRoute(c.Path)
	}

	mount := parts[0]
	if m, ok := s.auths[mount]; !ok || m.typ != "approle" {
		return noRoute(c.Path)
	}

	if len(parts) == 2 {
		if c.Method != "LIST" {
			return noRoute(c.Path)
		}
		var names []string
		for key, r := range s.approles {
			if strings.HasPrefix(key, mount+"/") {
				names = append(names, r.name)
			}
		}
		if len(names) == 0 {
			return fail(http.StatusNotFound)
		}
		sort.Strings(names)
		return ok(map[string]interface{}{"keys": names})
	}

	name := parts[2]
	key := mount + "/" + name
	role := s.approles[key]

	if len(parts) == 3 {
		switch c.Method {
		case http.MethodPost, http.MethodPut:
			if nil == role {
				role = &appRole{name: name, roleID: uuid.NewString(), bindSecretID: true, settings: make(map[string]interface{})}
				s.approles[key] = role
			}
			role.update(c.Body)
			return noContent()
		case http.MethodGet:
			if nil == role {
				return fail(http.StatusNotFound)
			}
			return ok(role.read())
		case http.MethodDelete:
			delete(s.approles, key)
			return noContent()
		}
		return noRoute(c.Path)
	}

	if nil == role {
		return fail(http.StatusBadRequest, "role \""+name+"\" does not exist")
	}

	switch parts[3] {
	case "role-id":
		if c.Method == http.MethodGet {
			return ok(map[string]interface{}{"role_id": role.roleID})
		}
		id := stringValue(c.Body, "role_id")
		if len(id) == 0 {
			return fail(http.StatusBadRequest, "missing role_id")
		}
		role.roleID = id
		return noContent()

	case "secret-id":
		if c.Method != http.MethodPost && c.Method != http.MethodPut {
			return noRoute(c.Path)
		}
		sid := &secretID{mount: mount, role: name, accessor: uuid.NewString(), usesLeft: role.secretIDNumUses}
		if role.secretIDTTL > 0 {
			sid.expires = time.Now().Add(role.secretIDTTL)
		}
		id := uuid.NewString()
		s.secretIDs[id] = sid
		return ok(map[string]interface{}{
			"secret_id":          id,
			"secret_id_accessor": sid.accessor,
			"secret_id_ttl":      secondsOf(role.secretIDTTL),
			"secret_id_num_uses": role.secretIDNumUses,
		})
	}

	return noRoute(c.Path)
}

func (r *appRole) update(body map[string]interface{}) {
	for k, v := range body {
		r.settings[k] = v
	}

	r.bindSecretID = boolValue(body, "bind_secret_id", r.bindSecretID)
	if _, ok := body["token_policies"]; ok {
		r.tokenPolicies = stringsValue(body, "token_policies")
	}
	if d, ok := ttlValue(body["token_ttl"]); ok {
		r.tokenTTL = d
	}
	if d, ok := ttlValue(body["token_max_ttl"]); ok {
		r.tokenMaxTTL = d
	}
	if d, ok := ttlValue(body["secret_id_ttl"]); ok {
		r.secretIDTTL = d
	}
	if n, ok := body["secret_id_num_uses"].(float64); ok {
		r.secretIDNumUses = int(n)
	}
}

func (r *appRole) read() map[string]interface{} {
	policies := r.tokenPolicies
	if nil == policies {
		policies = []string{}
	}
	return map[string]interface{}{
		"bind_secret_id":          r.bindSecretID,
		"secret_id_bound_cidrs":   stringsValue(r.settings, "secret_id_bound_cidrs"),
		"secret_id_num_uses":      r.secretIDNumUses,
		"secret_id_ttl":           secondsOf(r.secretIDTTL),
		"local_secret_ids":        boolValue(r.settings, "local_secret_ids", false),
		"token_bound_cidrs":       stringsValue(r.settings, "token_bound_cidrs"),
		"token_explicit_max_ttl":  0,
		"token_max_ttl":           secondsOf(r.tokenMaxTTL),
		"token_no_default_policy": boolValue(r.settings, "token_no_default_policy", false),
		"token_num_uses":          0,
		"token_period":            0,
		"token_policies":          policies,
		"token_ttl":               secondsOf(r.tokenTTL),
		"token_type":              "default",
	}
}
