package vault

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/svicknesh/vaultclient/vaulttest"
)

func TestSend_attaches_session_token(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := appRoleClient(t, srv)
	ctx := context.Background()

	_, err := v.KVv2("").Write(ctx, "app/config", Data{"user": "alice"})
	require.NoError(t, err)
	_, err = v.KVv2("").Read(ctx, "app/config")
	require.NoError(t, err)

	requests := srv.Requests("secret/data/app/config")
	require.Len(t, requests, 2)
	for _, r := range requests {
		assert.Equal(t, v.Session().Token, r.Token)
	}

	login := srv.Requests("auth/approle/login")
	require.Len(t, login, 1)
	assert.Empty(t, login[0].Token)
}

func TestSend_explicit_token_skips_login(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := appRoleClient(t, srv)

	secret, err := Send[Data](context.Background(), v, &Request{
		Method: http.MethodGet,
		Path:   "auth/token/lookup-self",
		Token:  srv.RootToken,
	})
	require.NoError(t, err)

	assert.Equal(t, srv.RootToken, secret.Data.GetString("id"))
	assert.Equal(t, 0, srv.LoginCount())
	assert.Nil(t, v.Session())
}

func TestSend_unauthenticated_sends_no_token(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := appRoleClient(t, srv)

	_, err := v.SealStatus(context.Background())
	require.NoError(t, err)

	requests := srv.Requests("sys/seal-status")
	require.Len(t, requests, 1)
	assert.Empty(t, requests[0].Token)
	assert.Equal(t, 0, srv.LoginCount())
}

func TestSend_wrap_ttl(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		wrapTTL string
		wrapped bool
	}{
		{name: "wrapped", wrapTTL: "30s", wrapped: true},
		{name: "not wrapped", wrapTTL: "", wrapped: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := vaulttest.NewServer(t)
			v := rootClient(t, srv)
			ctx := context.Background()

			_, err := v.KVv1("").Write(ctx, "wrap", Data{"k": "v"})
			require.NoError(t, err)

			secret, err := Send[Data](ctx, v, &Request{Method: http.MethodGet, Path: "kv/wrap", WrapTTL: tt.wrapTTL})
			require.NoError(t, err)

			requests := srv.Requests("kv/wrap")
			assert.Equal(t, tt.wrapTTL, requests[len(requests)-1].WrapTTL)
			assert.Equal(t, tt.wrapped, secret.IsWrapped())

			if tt.wrapped {
				assert.Nil(t, secret.Data)
				assert.Equal(t, 30, secret.WrapInfo.TTL)
				assert.Equal(t, "kv/wrap", secret.WrapInfo.CreationPath)
			} else {
				assert.Equal(t, Data{"k": "v"}, secret.Data)
			}
		})
	}
}

func TestSend_ignores_wrap_ttl_environment(t *testing.T) {
	t.Setenv("VAULT_WRAP_TTL", "5m")

	srv := vaulttest.NewServer(t)
	v := rootClient(t, srv)
	ctx := context.Background()

	_, err := v.KVv1("").Write(ctx, "plain", Data{"k": "v"})
	require.NoError(t, err)

	d, err := v.KVv1("").Read(ctx, "plain")
	require.NoError(t, err)
	assert.Equal(t, Data{"k": "v"}, d)

	for _, r := range srv.Requests("kv/plain") {
		assert.Empty(t, r.WrapTTL)
	}
}

func TestSend_ignores_agent_address_environment(t *testing.T) {
	t.Setenv("VAULT_AGENT_ADDR", "http://127.0.0.1:1")
	t.Setenv("VAULT_SRV_LOOKUP", "true")

	srv := vaulttest.NewServer(t)
	v := rootClient(t, srv)
	ctx := context.Background()

	_, err := v.KVv1("").Write(ctx, "plain", Data{"k": "v"})
	require.NoError(t, err)

	assert.Equal(t, srv.URL, v.Address())
	assert.Len(t, srv.Requests("kv/plain"), 1)
}

func TestSend_invalid_token_logs_in_again_and_replays(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := appRoleClient(t, srv)
	ctx := context.Background()

	_, err := v.KVv2("").Write(ctx, "app/config", Data{"user": "alice"})
	require.NoError(t, err)

	revoked := v.Session().Token
	srv.RevokeToken(revoked)

	d, err := v.KVv2("").Read(ctx, "app/config")
	require.NoError(t, err)
	assert.Equal(t, Data{"user": "alice"}, d)

	assert.Equal(t, 2, srv.LoginCount())
	assert.NotEqual(t, revoked, v.Session().Token)
	assert.Equal(t, float64(1), testutil.ToFloat64(v.metrics.relogins))

	requests := srv.Requests("secret/data/app/config")
	require.Len(t, requests, 3)
	assert.Equal(t, revoked, requests[1].Token)
	assert.Equal(t, v.Session().Token, requests[2].Token)
}

func TestSend_concurrent_requests_share_one_login_again(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := appRoleClient(t, srv)
	ctx := context.Background()

	_, err := v.KVv2("").Write(ctx, "app/config", Data{"user": "alice"})
	require.NoError(t, err)
	require.Equal(t, 1, srv.LoginCount())

	revoked := v.Session().Token
	srv.RevokeToken(revoked)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 30; i++ {
		g.Go(func() error {
			d, err := v.KVv2("").Read(gctx, "app/config")
			if nil != err {
				return err
			}
			if d.GetString("user") != "alice" {
				return fmt.Errorf("unexpected data %v", d)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 2, srv.LoginCount())
	assert.NotEqual(t, revoked, v.Session().Token)
	assert.True(t, srv.TokenValid(v.Session().Token))
}

func TestSend_failed_replay_is_surfaced(t *testing.T) {
	t.Parallel()

	t.Run("replay rejected again", func(t *testing.T) {
		t.Parallel()

		srv := vaulttest.NewServer(t)
		v := appRoleClient(t, srv)
		ctx := context.Background()

		_, err := v.EnsureAuthenticated(ctx)
		require.NoError(t, err)

		srv.RejectTokens(2)

		_, err = v.KVv2("").Read(ctx, "app/config")
		require.Error(t, err)
		assert.True(t, IsTokenInvalid(err))
		assert.Equal(t, 2, srv.LoginCount())
	})

	t.Run("replay fails with another error", func(t *testing.T) {
		t.Parallel()

		srv := vaulttest.NewServer(t)
		v := appRoleClient(t, srv)
		ctx := context.Background()

		token, err := v.EnsureAuthenticated(ctx)
		require.NoError(t, err)

		srv.RevokeToken(token)
		srv.FailNext("secret/", http.StatusInternalServerError, "boom")

		_, err = v.KVv2("").Read(ctx, "app/config")
		apiErr, ok := AsAPIError(err)
		require.True(t, ok, err)
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
		assert.Equal(t, []string{"boom"}, apiErr.Errors)
		assert.Equal(t, 2, srv.LoginCount())
	})

	t.Run("static token rejected again", func(t *testing.T) {
		t.Parallel()

		srv := vaulttest.NewServer(t)
		v := newTestClient(t, srv, Token{Value: srv.CreateToken(0)})
		ctx := context.Background()

		token, err := v.EnsureAuthenticated(ctx)
		require.NoError(t, err)

		// a static token cannot be replaced, the replay uses it again
		srv.RevokeToken(token)

		_, err = v.KVv1("").Read(ctx, "anything")
		require.Error(t, err)
		assert.True(t, IsTokenInvalid(err))
	})
}

func TestSend_permission_denied_does_not_log_in_again(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := appRoleClient(t, srv)
	srv.Deny("secret/data/locked")

	_, err := v.KVv2("").Read(context.Background(), "locked")
	require.Error(t, err)
	assert.True(t, IsPermissionDenied(err))
	assert.False(t, IsTokenInvalid(err))
	assert.Equal(t, 1, srv.LoginCount())
	assert.Equal(t, float64(0), testutil.ToFloat64(v.metrics.relogins))
}

func TestSend_custom_token_invalid_classifier(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := appRoleClient(t, srv, func(c *Config) {
		c.TokenInvalid = func(e *APIError) bool { return e.StatusCode == http.StatusForbidden }
	})
	srv.Deny("secret/data/locked")

	_, err := v.KVv2("").Read(context.Background(), "locked")
	require.Error(t, err)
	assert.True(t, IsPermissionDenied(err))
	assert.Equal(t, 2, srv.LoginCount())
}

func TestSend_explicit_token_is_not_replaced(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := appRoleClient(t, srv)

	token := srv.CreateToken(0)
	srv.RevokeToken(token)

	_, err := Send[Data](context.Background(), v, &Request{Method: http.MethodGet, Path: "kv/anything", Token: token})
	require.Error(t, err)
	assert.True(t, IsTokenInvalid(err))
	assert.Equal(t, 0, srv.LoginCount())
}

func TestSend_transport_failures_are_retried(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := appRoleClient(t, srv)
	srv.DropConnections(1)

	status, err := v.SealStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Sealed)
	assert.Equal(t, 1, srv.Dropped())
}

func TestSend_transport_error_after_retries(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := appRoleClient(t, srv)
	srv.DropConnections(100)

	_, err := v.SealStatus(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
	assert.False(t, IsNotFound(err))
	assert.GreaterOrEqual(t, srv.Dropped(), testRetry.MaxAttempts)
	assert.Equal(t, float64(1), testutil.ToFloat64(v.metrics.requests.WithLabelValues(http.MethodGet, "transport")))
}

func TestSend_server_errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		retry   bool
		wantErr bool
	}{
		{name: "not retried by default", retry: false, wantErr: true},
		{name: "retried when enabled", retry: true, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := vaulttest.NewServer(t)
			v := newTestClient(t, srv, Token{Value: srv.RootToken}, func(c *Config) {
				c.Retry.RetryServerErrors = tt.retry
			})
			ctx := context.Background()

			_, err := v.KVv1("").Write(ctx, "flaky", Data{"k": "v"})
			require.NoError(t, err)

			srv.FailNext("kv/flaky", http.StatusBadGateway, "upstream went away")

			d, err := v.KVv1("").Read(ctx, "flaky")
			if tt.wantErr {
				apiErr, ok := AsAPIError(err)
				require.True(t, ok, err)
				assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Data{"k": "v"}, d)
		})
	}
}

func TestSend_leaves_out_null_fields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "data", body: Data{"keep": "x", "drop": nil}},
		{name: "map", body: map[string]interface{}{"keep": "x", "drop": nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := vaulttest.NewServer(t)
			v := rootClient(t, srv)

			_, err := Send[Data](context.Background(), v, &Request{Method: http.MethodPut, Path: "kv/strip", Body: tt.body})
			require.NoError(t, err)

			assert.Equal(t, map[string]interface{}{"keep": "x"}, srv.KV("kv", "strip"))

			requests := srv.Requests("kv/strip")
			require.Len(t, requests, 1)
			assert.NotContains(t, requests[0].RawBody, "drop")
		})
	}
}

func TestSend_server_messages_are_kept_verbatim(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := rootClient(t, srv)
	srv.FailNext("kv/", http.StatusBadRequest, "first problem", "Second Problem")

	_, err := Send[Data](context.Background(), v, &Request{Method: http.MethodGet, Path: "kv/anything"})

	apiErr, ok := AsAPIError(err)
	require.True(t, ok, err)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, []string{"first problem", "Second Problem"}, apiErr.Errors)
	assert.Equal(t, http.MethodGet, apiErr.Method)
	assert.Equal(t, "kv/anything", apiErr.Path)
	assert.Contains(t, err.Error(), "first problem; Second Problem")
	assert.True(t, apiErr.Contains("second problem"))
}

func TestSend_not_found(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := rootClient(t, srv)

	_, err := Send[Data](context.Background(), v, &Request{Method: http.MethodGet, Path: "kv/missing"})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsTransportError(err))
}

func TestSend_namespace_header(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := appRoleClient(t, srv, func(c *Config) { c.Namespace = "team-a" })

	_, err := v.KVv1("").Write(context.Background(), "ns", Data{"k": "v"})
	require.NoError(t, err)

	for _, prefix := range []string{"auth/approle/login", "kv/ns"} {
		requests := srv.Requests(prefix)
		require.NotEmpty(t, requests, prefix)
		assert.Equal(t, "team-a", requests[0].Namespace, prefix)
	}
}

func TestSend_rate_limit(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := newTestClient(t, srv, Token{Value: srv.RootToken}, func(c *Config) {
		c.RateLimit = 1000
		c.Burst = 5
	})

	for i := 0; i < 10; i++ {
		_, err := v.SealStatus(context.Background())
		require.NoError(t, err)
	}
	assert.Len(t, srv.Requests("sys/seal-status"), 10)
}

func TestSend_cancelled_context(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := rootClient(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.SealStatus(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
