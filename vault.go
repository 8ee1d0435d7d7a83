package vault

import (
	"fmt"
	"io"
	"log"

	hvault "github.com/hashicorp/vault/api"
	jww "github.com/spf13/jwalterweatherman"
)

// New - creates new instance of vault using the given configuration, no request is sent until the first call needs one.
// Unlike the vault api client, `VAULT_*` environment variables are not read here, see `LoadConfigFromEnvironment`
func New(config Config) (v *Client, err error) {
	err = config.Validate()
	if nil != err {
		return nil, fmt.Errorf("new: %w", err)
	}
	config = config.withDefaults()

	v = new(Client)
	v.config = config
	v.log = newNotepad(config)

	v.strategy, err = NewStrategy(config.Credential)
	if nil != err {
		return nil, fmt.Errorf("new: %w", err)
	}

	apiConfig, err := config.apiConfig(v.log)
	if nil != err {
		return nil, fmt.Errorf("new: %w", err)
	}

	v.api, err = hvault.NewClient(apiConfig)
	if nil != err {
		return nil, fmt.Errorf("new: %w", err)
	}

	// the session token is attached per request, never as the api client's default
	v.api.ClearToken()
	if len(config.Namespace) != 0 {
		v.api.SetNamespace(config.Namespace)
	} else {
		v.api.ClearNamespace()
	}

	v.metrics, err = newMetrics(config.Registerer)
	if nil != err {
		return nil, fmt.Errorf("new: metrics: %w", err)
	}

	v.log.DEBUG.Printf("client for %s using %s", config.Address, v.strategy.Method())

	return
}

// Address - address of the Vault server
func (v *Client) Address() string {
	return v.config.Address
}

// Mounts - mount points used when a wrapper is given an empty mount
func (v *Client) Mounts() MountPoints {
	return v.config.Mounts
}

// newNotepad - a logger per client, the package level jww logger is left alone
func newNotepad(config Config) *jww.Notepad {
	return jww.NewNotepad(jww.LevelCritical, config.LogThreshold, io.Discard, config.LogOutput, "vault", log.LstdFlags)
}
