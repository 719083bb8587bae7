package proxy

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics for HTTP service
var (
	httpReqs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kdc_proxy_http_requests_total",
		Help: "The total number of HTTP requests handled",
	})
	httpResp = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kdc_proxy_http_responses_total",
		Help: "The total number of HTTP responses returned",
	}, []string{"code"})
	httpRespTimeHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kdc_proxy_http_request_duration_seconds",
			Help:    "Histogram of response time for the KDC Proxy in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Metrics for Kerberos side
var (
	kerbReqs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kdc_proxy_kerberos_requests_total",
		Help: "The total number Kerberos requests sent, by request variant",
	}, []string{"variant"})
	kerbResp = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kdc_proxy_kerberos_responses_total",
		Help: "The total number Kerberos responses received, by the transport pinned in the server URI scheme",
	}, []string{"transport"})
	kerbRespTimeHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kdc_proxy_kerberos_forward_duration_seconds",
			Help:    "Histogram of Kerberos forwarding time for the KDC Proxy in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// kerbCandidateFailures counts candidates reported to the working-server
	// memo as failed (spec §4.7 step 4). A realm's remembered last-good
	// server is only actually evicted from the memo if it's the one that
	// just failed, but every failed candidate is counted here. The teacher
	// has no memo and so never had a metric for it.
	kerbCandidateFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kdc_proxy_kerberos_candidate_failures_total",
		Help: "The total number of candidate servers that failed to answer a forward attempt",
	})

	// kerbUDPRetransmits counts datagrams re-sent to an already-open UDP
	// candidate on a later forwarding round (spec §4.8 step 3).
	kerbUDPRetransmits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kdc_proxy_kerberos_udp_retransmits_total",
		Help: "The total number of UDP datagrams re-sent to a candidate still awaiting a reply",
	})
)

// Prometheus metrics handler
func (k *KerberosProxy) Metrics() http.Handler {
	return promhttp.Handler()
}
