package vault

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	hvault "github.com/hashicorp/vault/api"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/time/rate"
)

// apiConfig - vault api client configuration, none of it is read from `VAULT_*` variables
func (c Config) apiConfig(log *jww.Notepad) (*hvault.Config, error) {
	conf := hvault.DefaultConfig()

	transport := cleanhttp.DefaultPooledTransport()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	conf.HttpClient = &http.Client{
		Transport:     transport,
		CheckRedirect: conf.HttpClient.CheckRedirect, // redirects are followed by the api client itself
	}
	conf.Address = c.Address
	conf.Timeout = c.Timeout
	conf.Error = nil

	// DefaultConfig reads these from VAULT_AGENT_ADDR, VAULT_SRV_LOOKUP and VAULT_DISABLE_REDIRECTS,
	// an agent address would take every request away from `Address`
	conf.AgentAddress = ""
	conf.SRVLookup = false
	conf.DisableRedirects = false

	if c.TLS != (TLSConfig{}) {
		err := conf.ConfigureTLS(&hvault.TLSConfig{
			CACert:        c.TLS.CACert,
			CAPath:        c.TLS.CAPath,
			ClientCert:    c.TLS.ClientCert,
			ClientKey:     c.TLS.ClientKey,
			TLSServerName: c.TLS.TLSServerName,
			Insecure:      c.TLS.Insecure,
		})
		if nil != err {
			return nil, fmt.Errorf("tls: %w", err)
		}
	}

	conf.MaxRetries = c.Retry.MaxAttempts - 1
	if conf.MaxRetries < 0 {
		conf.MaxRetries = 0
	}
	conf.MinRetryWait = c.Retry.MinWait
	conf.MaxRetryWait = c.Retry.MaxWait
	conf.Backoff = retryablehttp.DefaultBackoff
	conf.CheckRetry = c.Retry.checkRetry(log)

	conf.Limiter = nil
	if c.RateLimit > 0 {
		burst := c.Burst
		if burst < 1 {
			burst = 1
		}
		conf.Limiter = rate.NewLimiter(rate.Limit(c.RateLimit), burst)
	}

	return conf, nil
}

// checkRetry - transport failures are retried, HTTP error statuses only when asked for
func (p RetryPolicy) checkRetry(log *jww.Notepad) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if nil != ctx.Err() {
			return false, ctx.Err()
		}

		if nil != err {
			retry, checkErr := retryablehttp.DefaultRetryPolicy(ctx, nil, err)
			if retry {
				log.INFO.Printf("retrying after transport error: %v", err)
			}
			return retry, checkErr
		}

		if p.RetryServerErrors && resp.StatusCode >= http.StatusInternalServerError && resp.StatusCode != http.StatusNotImplemented {
			log.INFO.Printf("retrying after status %d", resp.StatusCode)
			return true, nil
		}

		return false, nil
	}
}
