package vault

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svicknesh/vaultclient/vaulttest"
)

func TestAppRole_login(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	roleID, secretID := setupAppRole(t, srv, AppRoleRole{
		Name:          "billing",
		TokenPolicies: []string{"billing-read", "billing-write"},
		TokenTTL:      "20m",
	})

	v := newTestClient(t, srv, AppRole{RoleID: roleID, SecretID: secretID})

	session, err := v.PerformImmediateLogin(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"role_id": roleID, "secret_id": secretID}, srv.LoginBody("approle"))
	assert.Equal(t, []string{"billing-read", "billing-write", "default"}, session.Policies)
	assert.Equal(t, 20*time.Minute, session.LeaseDuration)
	assert.True(t, session.Renewable)
	assert.NotEmpty(t, session.Accessor)
	assert.WithinDuration(t, session.IssuedAt.Add(20*time.Minute-10*time.Second), session.ExpiresAt(), time.Second)
}

func TestAppRole_login_without_secret_id(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	unbound := false
	roleID, _ := setupAppRole(t, srv, AppRoleRole{Name: "open", BindSecretID: &unbound})

	v := newTestClient(t, srv, AppRole{RoleID: roleID})

	_, err := v.EnsureAuthenticated(context.Background())
	require.NoError(t, err)

	body := srv.LoginBody("approle")
	assert.Equal(t, roleID, body["role_id"])
	assert.NotContains(t, body, "secret_id")
}

func TestAppRole_custom_mount(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	ctx := context.Background()
	root := rootClient(t, srv)

	require.NoError(t, root.EnableAuthMethod(ctx, "services", MountInput{Type: "approle"}))

	roles := root.AppRoles("services")
	require.NoError(t, roles.WriteRole(ctx, AppRoleRole{Name: "worker", TokenPolicies: []string{"worker"}}))

	roleID, err := roles.ReadRoleID(ctx, "worker")
	require.NoError(t, err)
	secret, err := roles.CreateSecretID(ctx, "worker", "")
	require.NoError(t, err)

	v := newTestClient(t, srv, AppRole{RoleID: roleID, SecretID: secret.Data.SecretID, Mount: "services"})
	session, err := v.PerformImmediateLogin(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"default", "worker"}, session.Policies)
	assert.Len(t, srv.Requests("auth/services/login"), 1)
	assert.Empty(t, srv.Requests("auth/approle/login"))

	// the configured approle mount serves both role management and login
	configured := newTestClient(t, srv, AppRole{RoleID: roleID, SecretID: secret.Data.SecretID}, func(c *Config) {
		c.Mounts.AppRole = "services"
	})
	_, err = configured.PerformImmediateLogin(ctx)
	require.NoError(t, err)

	assert.Len(t, srv.Requests("auth/services/login"), 2)
	assert.Empty(t, srv.Requests("auth/approle/login"))
}

// the orchestrator creates a wrapped secret id, the application unwraps it once and logs in with it
func TestAppRole_wrapped_secret_id(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	ctx := context.Background()
	roles := rootClient(t, srv).AppRoles("")

	require.NoError(t, roles.WriteRole(ctx, AppRoleRole{Name: "app", TokenPolicies: []string{"app"}}))
	roleID, err := roles.ReadRoleID(ctx, "app")
	require.NoError(t, err)

	wrapped, err := roles.CreateSecretID(ctx, "app", "30s")
	require.NoError(t, err)
	require.True(t, wrapped.IsWrapped())
	assert.Empty(t, wrapped.Data.SecretID)
	assert.Equal(t, "auth/approle/role/app/secret-id", wrapped.WrapInfo.CreationPath)

	unwrapper := newTestClient(t, srv, Token{Value: srv.RootToken})
	secretID, err := unwrapper.AppRoles("").UnwrapSecretID(ctx, wrapped.WrapInfo.Token)
	require.NoError(t, err)
	require.NotEmpty(t, secretID.SecretID)
	assert.NotEmpty(t, secretID.SecretIDAccessor)

	_, err = unwrapper.AppRoles("").UnwrapSecretID(ctx, wrapped.WrapInfo.Token)
	require.Error(t, err)
	assert.True(t, IsWrappingTokenInvalid(err))

	v := newTestClient(t, srv, AppRole{RoleID: roleID, SecretID: secretID.SecretID})
	token, err := v.EnsureAuthenticated(ctx)
	require.NoError(t, err)
	assert.True(t, srv.TokenValid(token))
	assert.Equal(t, []string{"app", "default"}, v.Session().Policies)
}

func TestAppRole_login_unwraps_secret_id(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	ctx := context.Background()
	roles := rootClient(t, srv).AppRoles("")

	require.NoError(t, roles.WriteRole(ctx, AppRoleRole{Name: "app", TokenPolicies: []string{"app"}}))
	roleID, err := roles.ReadRoleID(ctx, "app")
	require.NoError(t, err)

	wrapped, err := roles.CreateSecretID(ctx, "app", "1m")
	require.NoError(t, err)
	require.True(t, wrapped.IsWrapped())

	cred := AppRole{RoleID: roleID, SecretIDWrappingToken: wrapped.WrapInfo.Token}

	v := newTestClient(t, srv, cred)
	_, err = v.EnsureAuthenticated(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"app", "default"}, v.Session().Policies)
	assert.Equal(t, roleID, srv.LoginBody("approle")["role_id"])
	assert.NotEmpty(t, srv.LoginBody("approle")["secret_id"])

	unwraps := srv.Requests("sys/wrapping/unwrap")
	require.Len(t, unwraps, 1)
	assert.Equal(t, wrapped.WrapInfo.Token, unwraps[0].Token)

	// later logins reuse the unwrapped secret id
	_, err = v.PerformImmediateLogin(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.LoginCount())
	assert.Len(t, srv.Requests("sys/wrapping/unwrap"), 1)

	// the wrapping token is spent, another client holding it cannot log in
	other := newTestClient(t, srv, cred)
	_, err = other.EnsureAuthenticated(ctx)
	require.Error(t, err)
	assert.True(t, IsAuthenticationError(err))
	assert.True(t, IsWrappingTokenInvalid(err))
	assert.Nil(t, other.Session())
	assert.Equal(t, 2, srv.LoginCount())
}

func TestAppRoleBackend_roles(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	ctx := context.Background()
	roles := rootClient(t, srv).AppRoles("")

	names, err := roles.ListRoles(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	bind := true
	require.NoError(t, roles.WriteRole(ctx, AppRoleRole{
		Name:            "reporting",
		BindSecretID:    &bind,
		SecretIDTTL:     "10m",
		SecretIDNumUses: 3,
		TokenPolicies:   []string{"reporting"},
		TokenTTL:        "1h",
		TokenMaxTTL:     "4h",
		TokenBoundCIDRs: []string{"10.0.0.0/8"},
	}))
	require.NoError(t, roles.WriteRole(ctx, AppRoleRole{Name: "audit"}))

	role, err := roles.ReadRole(ctx, "reporting")
	require.NoError(t, err)
	assert.True(t, role.BindSecretID)
	assert.Equal(t, 600, role.SecretIDTTL)
	assert.Equal(t, 3, role.SecretIDNumUses)
	assert.Equal(t, []string{"reporting"}, role.TokenPolicies)
	assert.Equal(t, 3600, role.TokenTTL)
	assert.Equal(t, 14400, role.TokenMaxTTL)
	assert.Equal(t, []string{"10.0.0.0/8"}, role.TokenBoundCIDRs)

	names, err = roles.ListRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"audit", "reporting"}, names)

	require.NoError(t, roles.WriteCustomRoleID(ctx, "audit", "audit-role-id"))
	roleID, err := roles.ReadRoleID(ctx, "audit")
	require.NoError(t, err)
	assert.Equal(t, "audit-role-id", roleID)

	require.NoError(t, roles.DeleteRole(ctx, "audit"))
	_, err = roles.ReadRole(ctx, "audit")
	assert.True(t, IsNotFound(err))

	assert.Error(t, roles.WriteRole(ctx, AppRoleRole{}))
}

func TestAppRoleBackend_secret_id_uses(t *testing.T) {
	t.Parallel()

	srv := vaulttest.NewServer(t)
	ctx := context.Background()
	roleID, _ := setupAppRole(t, srv, AppRoleRole{Name: "once", SecretIDNumUses: 1})

	secret, err := rootClient(t, srv).AppRoles("").CreateSecretID(ctx, "once", "")
	require.NoError(t, err)
	assert.Equal(t, 1, secret.Data.SecretIDNumUses)

	v := newTestClient(t, srv, AppRole{RoleID: roleID, SecretID: secret.Data.SecretID})

	_, err = v.EnsureAuthenticated(ctx)
	require.NoError(t, err)

	_, err = v.PerformImmediateLogin(ctx)
	require.Error(t, err)
	assert.True(t, IsAuthenticationError(err))
	assert.Nil(t, v.Session())
}
