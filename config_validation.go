package vault

import (
	"fmt"
	"net/url"

	"github.com/hengadev/errsx"
)

// Validate - checks the configuration, every problem is reported keyed by field name
func (c Config) Validate() error {
	errs := errsx.Map{}

	if len(c.Address) == 0 {
		errs.Set("address", "is required")
	} else if u, err := url.Parse(c.Address); err != nil {
		errs.Set("address", err)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs.Set("address", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}

	if c.Credential == nil {
		errs.Set("credential", "is required")
	} else if err := c.Credential.validate(); err != nil {
		errs.Set("credential", err)
	}

	if c.Retry.MaxAttempts < 0 {
		errs.Set("retry.max_attempts", "must not be negative")
	}
	if c.Retry.MinWait < 0 || c.Retry.MaxWait < 0 {
		errs.Set("retry.wait", "must not be negative")
	}
	if c.Retry.MaxWait > 0 && c.Retry.MinWait > c.Retry.MaxWait {
		errs.Set("retry.wait", "min_wait must not exceed max_wait")
	}

	if (len(c.TLS.ClientCert) == 0) != (len(c.TLS.ClientKey) == 0) {
		errs.Set("tls", "client_cert and client_key must be set together")
	}

	if c.Timeout < 0 {
		errs.Set("timeout", "must not be negative")
	}
	if c.RateLimit < 0 {
		errs.Set("rate_limit", "must not be negative")
	}

	return errs.AsError()
}
