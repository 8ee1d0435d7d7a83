package vault

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	hvault "github.com/hashicorp/vault/api"
	"github.com/hengadev/errsx"
	"github.com/joho/godotenv"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/xeipuuv/gojsonschema"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"
)

// Environment variables read on top of the ones the vault cli uses.
const (
	EnvVaultRoleID   = "VAULT_ROLE_ID"
	EnvVaultSecretID = "VAULT_SECRET_ID"
)

//go:embed config.schema.json
var configSchema string

type fileConfig struct {
	Address   string        `yaml:"address"`
	Namespace string        `yaml:"namespace"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	Burst     int           `yaml:"burst"`
	LogLevel  string        `yaml:"log_level"`

	Mounts struct {
		KeyValueV1 string `yaml:"kv_v1"`
		KeyValueV2 string `yaml:"kv_v2"`
		Identity   string `yaml:"identity"`
		AppRole    string `yaml:"approle"`
	} `yaml:"mounts"`

	Retry struct {
		MaxAttempts       int           `yaml:"max_attempts"`
		MinWait           time.Duration `yaml:"min_wait"`
		MaxWait           time.Duration `yaml:"max_wait"`
		RetryServerErrors bool          `yaml:"retry_server_errors"`
	} `yaml:"retry"`

	TLS struct {
		CACert     string `yaml:"ca_cert"`
		CAPath     string `yaml:"ca_path"`
		ClientCert string `yaml:"client_cert"`
		ClientKey  string `yaml:"client_key"`
		ServerName string `yaml:"server_name"`
		Insecure   bool   `yaml:"insecure"`
	} `yaml:"tls"`

	Auth *authSection `yaml:"auth"`
}

// authSection - one flat section for every auth method, only the fields of `method` are used
type authSection struct {
	Method string `yaml:"method"`
	Mount  string `yaml:"mount"`

	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
	Lookup    bool   `yaml:"lookup"`

	RoleID                string `yaml:"role_id"`
	SecretID              string `yaml:"secret_id"`
	SecretIDWrappingToken string `yaml:"secret_id_wrapping_token"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	Role    string `yaml:"role"`
	JWT     string `yaml:"jwt"`
	JWTPath string `yaml:"jwt_path"`
	Name    string `yaml:"name"`

	Region          string `yaml:"region"`
	STSEndpoint     string `yaml:"sts_endpoint"`
	ServerIDHeader  string `yaml:"server_id_header"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`

	Resource       string `yaml:"resource"`
	SubscriptionID string `yaml:"subscription_id"`
	ResourceGroup  string `yaml:"resource_group"`
	VMName         string `yaml:"vm_name"`
	VMSSName       string `yaml:"vmss_name"`

	ServiceAccountEmail string `yaml:"service_account_email"`
	CredentialsFile     string `yaml:"credentials_file"`
}

// LoadConfig - reads a YAML configuration file, checks it against the configuration schema
// and applies the `VAULT_*` environment variables on top of it
func LoadConfig(path string) (config Config, err error) {

	raw, err := os.ReadFile(path)
	if nil != err {
		return Config{}, fmt.Errorf("loadconfig: %w", err)
	}

	config, err = parseConfig(raw)
	if nil != err {
		return Config{}, fmt.Errorf("loadconfig: %s: %w", path, err)
	}

	if err = applyEnvironment(&config, os.LookupEnv); nil != err {
		return Config{}, fmt.Errorf("loadconfig: %w", err)
	}

	if err = config.Validate(); nil != err {
		return Config{}, fmt.Errorf("loadconfig: %w", err)
	}

	return
}

// LoadConfigFromEnvironment - default configuration with the `VAULT_*` environment variables applied
func LoadConfigFromEnvironment() (config Config, err error) {
	config = DefaultConfig(nil)

	if err = applyEnvironment(&config, os.LookupEnv); nil != err {
		return Config{}, fmt.Errorf("loadconfigfromenvironment: %w", err)
	}

	if err = config.Validate(); nil != err {
		return Config{}, fmt.Errorf("loadconfigfromenvironment: %w", err)
	}

	return
}

// LoadConfigFromEnvFile - like `LoadConfigFromEnvironment` with the variables of a dotenv file taking precedence,
// the process environment is not modified
func LoadConfigFromEnvFile(path string) (config Config, err error) {

	values, err := godotenv.Read(path)
	if nil != err {
		return Config{}, fmt.Errorf("loadconfigfromenvfile: %w", err)
	}

	lookup := func(key string) (string, bool) {
		if v, ok := values[key]; ok {
			return v, true
		}
		return os.LookupEnv(key)
	}

	config = DefaultConfig(nil)
	if err = applyEnvironment(&config, lookup); nil != err {
		return Config{}, fmt.Errorf("loadconfigfromenvfile: %w", err)
	}

	if err = config.Validate(); nil != err {
		return Config{}, fmt.Errorf("loadconfigfromenvfile: %w", err)
	}

	return
}

func parseConfig(raw []byte) (Config, error) {
	var document interface{}
	if err := yaml.Unmarshal(raw, &document); nil != err {
		return Config{}, err
	}
	if nil == document {
		document = map[string]interface{}{} // empty file
	}

	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(configSchema), gojsonschema.NewGoLoader(document))
	if nil != err {
		return Config{}, fmt.Errorf("schema: %w", err)
	}
	if !result.Valid() {
		errs := errsx.Map{}
		for _, e := range result.Errors() {
			errs.Set(e.Field(), e.Description())
		}
		return Config{}, errs.AsError()
	}

	var fc fileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err = decoder.Decode(&fc); nil != err && !errors.Is(err, io.EOF) {
		return Config{}, err
	}

	config := DefaultConfig(nil)
	setString(&config.Address, fc.Address)
	setString(&config.Namespace, fc.Namespace)
	if fc.Timeout > 0 {
		config.Timeout = fc.Timeout
	}
	config.RateLimit = fc.RateLimit
	config.Burst = fc.Burst

	if len(fc.LogLevel) != 0 {
		config.LogThreshold = logThreshold(fc.LogLevel)
	}

	setString(&config.Mounts.KeyValueV1, fc.Mounts.KeyValueV1)
	setString(&config.Mounts.KeyValueV2, fc.Mounts.KeyValueV2)
	setString(&config.Mounts.Identity, fc.Mounts.Identity)
	setString(&config.Mounts.AppRole, fc.Mounts.AppRole)

	if fc.Retry.MaxAttempts > 0 {
		config.Retry.MaxAttempts = fc.Retry.MaxAttempts
	}
	if fc.Retry.MinWait > 0 {
		config.Retry.MinWait = fc.Retry.MinWait
	}
	if fc.Retry.MaxWait > 0 {
		config.Retry.MaxWait = fc.Retry.MaxWait
	}
	config.Retry.RetryServerErrors = fc.Retry.RetryServerErrors

	config.TLS = TLSConfig{
		CACert:        fc.TLS.CACert,
		CAPath:        fc.TLS.CAPath,
		ClientCert:    fc.TLS.ClientCert,
		ClientKey:     fc.TLS.ClientKey,
		TLSServerName: fc.TLS.ServerName,
		Insecure:      fc.TLS.Insecure,
	}

	if nil != fc.Auth {
		config.Credential, err = fc.Auth.credential()
		if nil != err {
			return Config{}, err
		}
	}

	return config, nil
}

// credential - turns the auth section into the credential of its method
func (a *authSection) credential() (Credential, error) {
	switch a.Method {
	case "token":
		return Token{Value: a.Token, File: a.TokenFile, Lookup: a.Lookup}, nil
	case "approle":
		return AppRole{RoleID: a.RoleID, SecretID: a.SecretID, SecretIDWrappingToken: a.SecretIDWrappingToken, Mount: a.Mount}, nil
	case "github":
		return GitHub{Token: a.Token, Mount: a.Mount}, nil
	case "userpass":
		return UserPass{Username: a.Username, Password: a.Password, Mount: a.Mount}, nil
	case "ldap":
		return LDAP{Username: a.Username, Password: a.Password, Mount: a.Mount}, nil
	case "kubernetes":
		return Kubernetes{Role: a.Role, JWT: a.JWT, JWTPath: a.JWTPath, Mount: a.Mount}, nil
	case "jwt":
		return JWT{Role: a.Role, Token: a.JWT, Mount: a.Mount}, nil
	case "cert":
		return Cert{Name: a.Name, Mount: a.Mount}, nil
	case "aws":
		cred := AWS{
			Role:           a.Role,
			Region:         a.Region,
			STSEndpoint:    a.STSEndpoint,
			ServerIDHeader: a.ServerIDHeader,
			Mount:          a.Mount,
		}
		if len(a.AccessKeyID) != 0 {
			cred.Credentials = credentials.NewStaticCredentialsProvider(a.AccessKeyID, a.SecretAccessKey, a.SessionToken)
		}
		return cred, nil
	case "azure":
		return Azure{
			Role:           a.Role,
			Resource:       a.Resource,
			SubscriptionID: a.SubscriptionID,
			ResourceGroup:  a.ResourceGroup,
			VMName:         a.VMName,
			VMSSName:       a.VMSSName,
			Mount:          a.Mount,
		}, nil
	case "gcp":
		cred := GCP{Role: a.Role, ServiceAccountEmail: a.ServiceAccountEmail, Mount: a.Mount}
		if len(a.CredentialsFile) != 0 {
			cred.ClientOptions = []option.ClientOption{option.WithCredentialsFile(a.CredentialsFile)}
		}
		return cred, nil
	}

	return nil, fmt.Errorf("auth: unsupported method %q", a.Method)
}

// applyEnvironment - `VAULT_TOKEN` or `VAULT_ROLE_ID` replace the configured credential
func applyEnvironment(config *Config, lookup func(string) (string, bool)) error {
	errs := errsx.Map{}

	env := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	setString(&config.Address, env(hvault.EnvVaultAddress))
	setString(&config.Namespace, env(hvault.EnvVaultNamespace))
	setString(&config.TLS.CACert, env(hvault.EnvVaultCACert))
	setString(&config.TLS.CAPath, env(hvault.EnvVaultCAPath))
	setString(&config.TLS.ClientCert, env(hvault.EnvVaultClientCert))
	setString(&config.TLS.ClientKey, env(hvault.EnvVaultClientKey))
	setString(&config.TLS.TLSServerName, env(hvault.EnvVaultTLSServerName))

	if v := env(hvault.EnvVaultSkipVerify); len(v) != 0 {
		insecure, err := strconv.ParseBool(v)
		if nil != err {
			errs.Set(hvault.EnvVaultSkipVerify, err)
		}
		config.TLS.Insecure = insecure
	}

	if v := env(hvault.EnvVaultMaxRetries); len(v) != 0 {
		retries, err := strconv.Atoi(v)
		if nil != err || retries < 0 {
			errs.Set(hvault.EnvVaultMaxRetries, "must be a positive number")
		} else {
			config.Retry.MaxAttempts = retries + 1
		}
	}

	if token := env(hvault.EnvVaultToken); len(token) != 0 {
		config.Credential = Token{Value: token}
	} else if roleID := env(EnvVaultRoleID); len(roleID) != 0 {
		mount := ""
		if current, ok := config.Credential.(AppRole); ok {
			mount = current.Mount
		}
		config.Credential = AppRole{RoleID: roleID, SecretID: env(EnvVaultSecretID), Mount: mount}
	}

	return errs.AsError()
}

// logThreshold - jww threshold for a `log_level` value, the client logs nothing below debug
func logThreshold(level string) jww.Threshold {
	switch strings.ToLower(level) {
	case "trace", "debug":
		return jww.LevelDebug
	case "warn":
		return jww.LevelWarn
	case "error":
		return jww.LevelError
	case "critical":
		return jww.LevelCritical
	case "fatal":
		return jww.LevelFatal
	}
	return jww.LevelInfo
}

func setString(dst *string, value string) {
	if len(value) != 0 {
		*dst = value
	}
}
