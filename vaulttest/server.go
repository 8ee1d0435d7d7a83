// Package vaulttest runs an in-memory Vault server over HTTP for tests. It implements the
// endpoints the vault package calls with the same status codes and error messages as Vault,
// plus hooks to hold logins, drop connections, revoke tokens and inject failures.
package vaulttest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Messages returned by the server.
const (
	MsgPermissionDenied     = "permission denied"
	MsgInvalidToken         = "invalid token"
	MsgWrappingTokenInvalid = "wrapping token is not valid or does not exist"
	MsgSealed               = "Vault is sealed"
)

// DefaultTokenTTL - lease of tokens issued by logins that do not set one
const DefaultTokenTTL = time.Hour

// Request - a request as received, recorded for assertions
type Request struct {
	Method    string // LIST for list requests
	Path      string // without the `/v1/` prefix
	Query     url.Values
	Token     string
	WrapTTL   string
	Namespace string
	Body      map[string]interface{}
	RawBody   string
}

type failure struct {
	path     string
	status   int
	messages []string
}

// Server - the in-memory Vault, safe for concurrent use
type Server struct {
	*httptest.Server

	// RootToken - token with the root policy, never expires
	RootToken string

	mu sync.Mutex

	tokens   map[string]*token
	wrapped  map[string]*wrapping
	auths    map[string]*authMount   // path -> auth method
	mounts   map[string]*secretMount // path -> secrets engine
	policies map[string]string

	users     map[string]*user     // mount/username
	roles     map[string][]string  // mount/role -> policies
	approles  map[string]*appRole  // mount/name
	secretIDs map[string]*secretID // secret id
	lastLogin map[string]map[string]interface{}

	entities map[string]*entity
	aliases  map[string]*alias

	sealed       bool
	denied       []string
	failures     []failure
	rejectTokens int
	drop         int
	requests     []Request
	loginGate    chan struct{}

	logins  atomic.Int64
	dropped atomic.Int64
}

// NewServer - starts a server with the default mounts of a dev Vault plus every login method the client supports,
// the server is closed when the test ends
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		tokens:    make(map[string]*token),
		wrapped:   make(map[string]*wrapping),
		auths:     make(map[string]*authMount),
		mounts:    make(map[string]*secretMount),
		policies:  map[string]string{"default": "", "root": ""},
		users:     make(map[string]*user),
		roles:     make(map[string][]string),
		approles:  make(map[string]*appRole),
		secretIDs: make(map[string]*secretID),
		lastLogin: make(map[string]map[string]interface{}),
		entities:  make(map[string]*entity),
		aliases:   make(map[string]*alias),
	}

	for _, method := range []string{"token", "approle", "userpass", "ldap", "github", "kubernetes", "jwt", "cert", "aws", "azure", "gcp"} {
		s.auths[method] = newAuthMount(method)
	}
	s.mounts["secret"] = &secretMount{typ: "kv", version: 2, data: make(map[string]*kvEntry)}
	s.mounts["kv"] = &secretMount{typ: "kv", version: 1, data: make(map[string]*kvEntry)}
	s.mounts["identity"] = &secretMount{typ: "identity"}
	s.mounts["sys"] = &secretMount{typ: "system"}

	s.RootToken = s.issue([]string{"root"}, 0, nil).id

	s.Server = httptest.NewServer(s)
	t.Cleanup(s.Close)

	return s
}

// ServeHTTP - handles one API request
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.takeDrop() {
		s.dropped.Add(1)
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); nil == err {
				conn.Close()
				return
			}
		}
		panic(http.ErrAbortHandler)
	}

	if !strings.HasPrefix(r.URL.Path, "/v1/") {
		writeReply(w, fail(http.StatusNotFound))
		return
	}

	c, rep := parse(r)
	if nil != rep {
		writeReply(w, *rep)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, c.Request)
	s.mu.Unlock()

	writeReply(w, s.handle(c))
}

// handle - everything but the login gate runs under the server lock
func (s *Server) handle(c *call) reply {
	login := isLogin(c.Path)
	if login {
		s.logins.Add(1)

		s.mu.Lock()
		gate := s.loginGate
		s.mu.Unlock()

		if nil != gate {
			select {
			case <-gate:
			case <-c.ctx.Done():
				return fail(http.StatusServiceUnavailable, "client went away")
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Path == "sys/seal-status" {
		return s.sealStatus()
	}
	if s.sealed {
		return fail(http.StatusServiceUnavailable, MsgSealed)
	}

	switch c.Path {
	case "sys/wrapping/unwrap":
		return s.unwrap(c)
	case "sys/wrapping/lookup":
		return s.lookupWrapping(c)
	}

	if login {
		return s.wrap(c, s.login(c))
	}

	if rep, ok := s.authenticate(c); !ok {
		return rep
	}

	for _, prefix := range s.denied {
		if strings.HasPrefix(c.Path, prefix) {
			return fail(http.StatusForbidden, MsgPermissionDenied)
		}
	}

	for i, f := range s.failures {
		if strings.HasPrefix(c.Path, f.path) {
			s.failures = append(s.failures[:i], s.failures[i+1:]...)
			return fail(f.status, f.messages...)
		}
	}

	return s.wrap(c, s.route(c))
}

func (s *Server) route(c *call) reply {
	switch {
	case strings.HasPrefix(c.Path, "auth/token/"):
		return s.tokenSelf(c)
	case strings.HasPrefix(c.Path, "sys/"):
		return s.sys(c)
	case strings.HasPrefix(c.Path, "identity/"):
		return s.identity(c)
	case strings.HasPrefix(c.Path, "auth/"):
		return s.appRoleAdmin(c)
	}

	mount, rest := splitMount(c.Path)
	if m, ok := s.mounts[mount]; ok && m.typ == "kv" {
		return s.kv(c, m, rest)
	}

	return noRoute(c.Path)
}

// authenticate - the request token must exist, not be revoked and not be expired
func (s *Server) authenticate(c *call) (reply, bool) {
	if len(c.Token) == 0 {
		return fail(http.StatusForbidden, MsgPermissionDenied), false
	}

	if s.rejectTokens > 0 {
		s.rejectTokens--
		return fail(http.StatusForbidden, MsgPermissionDenied, MsgInvalidToken), false
	}

	t, ok := s.tokens[c.Token]
	if !ok || !t.valid(time.Now()) {
		return fail(http.StatusForbidden, MsgPermissionDenied, MsgInvalidToken), false
	}

	c.token = t
	return reply{}, true
}

func isLogin(path string) bool {
	if !strings.HasPrefix(path, "auth/") || strings.HasPrefix(path, "auth/token/") {
		return false
	}
	rest := strings.TrimPrefix(path, "auth/")
	i := strings.Index(rest, "/")
	if i < 0 {
		return false
	}
	rest = rest[i+1:]
	return rest == "login" || strings.HasPrefix(rest, "login/")
}

func (s *Server) takeDrop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drop > 0 {
		s.drop--
		return true
	}
	return false
}

// call - a parsed request, `token` is set once the request is authenticated
type call struct {
	Request
	ctx   context.Context
	token *token
}

func parse(r *http.Request) (*call, *reply) {
	c := &call{ctx: r.Context()}
	c.Path = strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/"), "/")
	c.Query = r.URL.Query()
	c.Method = r.Method
	if r.Method == http.MethodGet && c.Query.Get("list") == "true" {
		c.Method = "LIST"
	}
	c.Token = r.Header.Get("X-Vault-Token")
	c.WrapTTL = r.Header.Get("X-Vault-Wrap-TTL")
	c.Namespace = r.Header.Get("X-Vault-Namespace")

	raw, err := io.ReadAll(r.Body)
	if nil != err {
		rep := fail(http.StatusBadRequest, err.Error())
		return nil, &rep
	}
	c.RawBody = string(raw)

	if len(strings.TrimSpace(c.RawBody)) != 0 {
		if err = json.Unmarshal(raw, &c.Body); nil != err {
			rep := fail(http.StatusBadRequest, "failed to parse JSON input: "+err.Error())
			return nil, &rep
		}
	}
	if nil == c.Body {
		c.Body = make(map[string]interface{})
	}

	return c, nil
}

// reply - status and envelope, a nil body answers 204
type reply struct {
	status int
	body   map[string]interface{}
}

func ok(data interface{}) reply {
	return reply{status: http.StatusOK, body: envelope(data, nil)}
}

func okAuth(auth map[string]interface{}) reply {
	return reply{status: http.StatusOK, body: envelope(nil, auth)}
}

func noContent() reply {
	return reply{status: http.StatusNoContent}
}

func fail(status int, messages ...string) reply {
	if nil == messages {
		messages = []string{}
	}
	return reply{status: status, body: map[string]interface{}{"errors": messages}}
}

func noRoute(path string) reply {
	return fail(http.StatusNotFound, "no handler for route \""+path+"\". route entry not found.")
}

func envelope(data interface{}, auth map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"request_id":     uuid.NewString(),
		"lease_id":       "",
		"renewable":      false,
		"lease_duration": 0,
		"data":           data,
		"wrap_info":      nil,
		"warnings":       nil,
		"auth":           auth,
	}
}

func writeReply(w http.ResponseWriter, rep reply) {
	if nil == rep.body {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.status)
	_ = json.NewEncoder(w).Encode(rep.body)
}

func splitMount(path string) (mount, rest string) {
	if i := strings.Index(path, "/"); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, ""
}

// LoginCount - login requests received, held and failed ones included
func (s *Server) LoginCount() int {
	return int(s.logins.Load())
}

// HoldLogins - login requests wait until release is called or their client goes away
func (s *Server) HoldLogins() (release func()) {
	gate := make(chan struct{})

	s.mu.Lock()
	s.loginGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.loginGate == gate {
				s.loginGate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// DropConnections - the next n requests get their connection closed without an answer
func (s *Server) DropConnections(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drop = n
}

// Dropped - connections closed by `DropConnections`
func (s *Server) Dropped() int {
	return int(s.dropped.Load())
}

// Deny - authenticated requests to paths starting with prefix fail with a policy 403
func (s *Server) Deny(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.denied = append(s.denied, prefix)
}

// FailNext - the next authenticated request to a path starting with prefix fails with status and messages
func (s *Server) FailNext(prefix string, status int, messages ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = append(s.failures, failure{path: prefix, status: status, messages: messages})
}

// RejectTokens - the next n authenticated requests fail as if their token was invalid
func (s *Server) RejectTokens(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rejectTokens = n
}

// Seal - seals the server, every endpoint but seal-status answers 503
func (s *Server) Seal() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sealed = true
}

// Unseal - unseals the server
func (s *Server) Unseal() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sealed = false
}

// Requests - requests received for paths starting with prefix, in order
func (s *Server) Requests(prefix string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Request
	for _, r := range s.requests {
		if strings.HasPrefix(r.Path, prefix) {
			out = append(out, r)
		}
	}
	return out
}

func secondsOf(d time.Duration) int {
	return int(d / time.Second)
}

// ttlValue - Vault accepts TTLs as seconds or as duration strings
func ttlValue(v interface{}) (time.Duration, bool) {
	switch t := v.(type) {
	case float64:
		return time.Duration(t) * time.Second, true
	case string:
		if len(t) == 0 {
			return 0, false
		}
		if n, err := strconv.Atoi(t); nil == err {
			return time.Duration(n) * time.Second, true
		}
		if d, err := time.ParseDuration(t); nil == err {
			return d, true
		}
	}
	return 0, false
}

func stringValue(body map[string]interface{}, key string) string {
	s, _ := body[key].(string)
	return s
}

func stringsValue(body map[string]interface{}, key string) []string {
	switch v := body[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if len(v) == 0 {
			return nil
		}
		return strings.Split(v, ",")
	}
	return nil
}

func boolValue(body map[string]interface{}, key string, fallback bool) bool {
	switch v := body[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); nil == err {
			return b
		}
	}
	return fallback
}

func stringMap(body map[string]interface{}, key string) map[string]string {
	m, ok := body[key].(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
