package vault

import (
	"strconv"
	"time"

	hvault "github.com/hashicorp/vault/api"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "vault_client"

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	logins   *prometheus.CounterVec
	relogins prometheus.Counter
}

// newMetrics - collectors belong to one client, they are registered only when a registerer is given
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Requests sent to Vault by method and response status, \"transport\" when no response was received.",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of requests sent to Vault, retries included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "logins_total",
			Help:      "Logins by auth method and result.",
		}, []string{"auth_method", "result"}),
		relogins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "relogins_total",
			Help:      "Logins triggered by a token rejected as invalid.",
		}),
	}

	if nil == reg {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.requests, m.duration, m.logins, m.relogins} {
		if err := reg.Register(c); nil != err {
			return nil, err
		}
	}

	return m, nil
}

func (m *metrics) observe(method string, resp *hvault.Response, err error, elapsed time.Duration) {
	code := "transport"
	if nil != resp && nil != resp.Response {
		code = strconv.Itoa(resp.StatusCode)
	} else if nil == err {
		code = "unknown"
	}

	m.requests.WithLabelValues(method, code).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *metrics) login(method string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.logins.WithLabelValues(method, result).Inc()
}
