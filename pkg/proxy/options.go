package proxy

import (
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ProxyOption allows changing the behaviour of the KerberosProxy.
type ProxyOption func(*KerberosProxy)

// WithResolver sets the MetaResolver (C6) used to find candidate servers
// for a realm. Building one is the caller's responsibility, since it
// composes the kdcproxy.conf store (C3), any krb5.conf adapter (C4), and
// the DNS SRV resolver (C5) — none of which pkg/proxy depends on directly.
func WithResolver(resolver *MetaResolver) ProxyOption {
	return func(kp *KerberosProxy) {
		kp.resolver = resolver
	}
}

// WithLimit sets a rate limit of requests per second to forward.
func WithLimit(limit int) ProxyOption {
	return func(kp *KerberosProxy) {
		kp.limiter = rate.NewLimiter(rate.Limit(limit), limit)
	}
}

// WithLogger sets the zerolog.Logger used for request and resolver
// diagnostics. Defaults to a no-op logger.
func WithLogger(logger zerolog.Logger) ProxyOption {
	return func(kp *KerberosProxy) {
		kp.logger = logger
	}
}
