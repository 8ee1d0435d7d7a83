package vault

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svicknesh/vaultclient/vaulttest"
)

func TestSealStatus(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := rootClient(t, srv)
	ctx := context.Background()

	status, err := v.SealStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.Initialized)
	assert.False(t, status.Sealed)
	assert.Equal(t, "shamir", status.Type)

	srv.Seal()

	sealed, err := v.IsSealed(ctx)
	require.NoError(t, err)
	assert.True(t, sealed)

	_, err = v.KVv1("").Read(ctx, "anything")
	apiErr, ok := AsAPIError(err)
	require.True(t, ok, err)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, []string{vaulttest.MsgSealed}, apiErr.Errors)
}

func TestWaitForUnseal(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := rootClient(t, srv)
	srv.Seal()

	go func() {
		time.Sleep(50 * time.Millisecond)
		srv.Unseal()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, v.WaitForUnseal(ctx, 10*time.Millisecond))
	assert.Greater(t, len(srv.Requests("sys/seal-status")), 1)
}

func TestWaitForUnseal_context_ends(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := rootClient(t, srv)
	srv.Seal()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := v.WaitForUnseal(ctx, 10*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForUnseal_unreachable_then_up(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := newTestClient(t, srv, Token{Value: srv.RootToken}, func(c *Config) {
		c.Retry = RetryPolicy{MaxAttempts: 1, MinWait: time.Millisecond, MaxWait: time.Millisecond}
	})
	srv.DropConnections(3)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, v.WaitForUnseal(ctx, 10*time.Millisecond))
	assert.Equal(t, 3, srv.Dropped())
}

func TestWaitForUnseal_gives_up_on_server_errors(t *testing.T) {
	t.Parallel()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":["unsupported path"]}`))
	}))
	t.Cleanup(broken.Close)

	config := DefaultConfig(Token{Value: "s.token"})
	config.Address = broken.URL
	v, err := New(config)
	require.NoError(t, err)

	err = v.WaitForUnseal(context.Background(), time.Millisecond)
	require.Error(t, err)
	assert.False(t, IsTransportError(err))
}

func TestMountsAndPolicies(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	v := rootClient(t, srv)
	ctx := context.Background()

	require.NoError(t, v.EnableAuthMethod(ctx, "/ci/", MountInput{Type: "approle", Description: "ci pipelines"}))

	err := v.EnableAuthMethod(ctx, "ci", MountInput{Type: "approle"})
	apiErr, ok := AsAPIError(err)
	require.True(t, ok, err)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.True(t, apiErr.Contains("already in use"))

	assert.Error(t, v.EnableSecretsEngine(ctx, "", MountInput{Type: "kv"}))
	assert.Error(t, v.EnableSecretsEngine(ctx, "team", MountInput{}))

	require.NoError(t, v.EnableSecretsEngine(ctx, "team", MountInput{Type: "kv-v2"}))
	_, err = v.KVv2("team").Write(ctx, "x", Data{"k": "v"})
	require.NoError(t, err)

	rules := `path "secret/data/app/*" { capabilities = ["read"] }`
	require.NoError(t, v.WritePolicy(ctx, "app-read", rules))

	policy, err := v.ReadPolicy(ctx, "app-read")
	require.NoError(t, err)
	assert.Equal(t, rules, policy)

	_, err = v.ReadPolicy(ctx, "missing")
	assert.True(t, IsNotFound(err))
}
