// Package dnssrv implements the DNS SRV fallback (C5): discovering
// Kerberos/kpasswd servers for a realm via the well-known
// _kerberos._tcp.REALM / _kerberos._udp.REALM records (and their kpasswd
// counterparts), the same records MIT and Heimdal clients consult when no
// realm is configured locally.
package dnssrv

import (
	"context"
	"net"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openkkdcp/kdcproxy/pkg/proxy"
)

// SilenceChecker reports whether a realm's SRV port warning should be
// suppressed (kdcproxy.conf's silence_port_warn).
type SilenceChecker func(realm string) bool

// Resolver looks up SRV records for a realm's kerberos or kpasswd service,
// implementing proxy.SRVLookuper.
type Resolver struct {
	logger  zerolog.Logger
	silence SilenceChecker

	// lookupSRV defaults to net.DefaultResolver.LookupSRV; overridable in
	// tests to avoid depending on live DNS.
	lookupSRV func(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// New returns a Resolver. silence may be nil, meaning no realm ever
// silences the non-standard-port warning.
func New(logger zerolog.Logger, silence SilenceChecker) *Resolver {
	return &Resolver{logger: logger, silence: silence, lookupSRV: net.DefaultResolver.LookupSRV}
}

// Lookup queries SRV records for realm and returns the matching server
// URIs, TCP records before UDP, each group sorted by priority. kpasswd
// queries fall back to the kerberos-adm service per protocol when the
// kpasswd service has no records, following the MIT/Heimdal convention.
func (r *Resolver) Lookup(realm string, kpasswd bool) []proxy.ServerURI {
	service := "kerberos"
	scheme := "kerberos"
	if kpasswd {
		service = "kpasswd"
		scheme = "kpasswd"
	}

	var out []proxy.ServerURI
	for _, proto := range []string{"tcp", "udp"} {
		records := r.query(service, proto, realm)
		if len(records) == 0 && kpasswd {
			records = r.query("kerberos-adm", proto, realm)
		}
		out = append(out, r.toServerURIs(realm, scheme, records)...)
	}
	return out
}

func (r *Resolver) query(service, proto, realm string) []*net.SRV {
	_, records, err := r.lookupSRV(context.Background(), service, proto, realm)
	if err != nil {
		return nil
	}

	// net.LookupSRV already returns records sorted by priority and
	// shuffled by weight within each priority. Sort on priority alone and
	// keep the relative order stable otherwise; this code applies no
	// weighting of its own (see DESIGN.md, "SRV weight").
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Priority < records[j].Priority
	})
	return records
}

// toServerURIs builds unqualified "{scheme}://host:port" URIs, per
// original_source's DNSResolver.lookup ("%s://%s:%d" % (service, host,
// port)) — a record found via the _tcp query is not pinned to TCP, since
// the same target commonly answers on both _tcp and _udp and leaving the
// scheme unqualified is what lets MetaResolver's dedup collapse the two
// into a single candidate the engine tries over both transports.
func (r *Resolver) toServerURIs(realm, scheme string, records []*net.SRV) []proxy.ServerURI {
	out := make([]proxy.ServerURI, 0, len(records))
	for _, rec := range records {
		host := strings.TrimSuffix(rec.Target, ".")
		uri := proxy.ServerURI{Scheme: scheme, Host: host, Port: int(rec.Port)}

		if !r.portSilenced(realm) && int(rec.Port) != defaultPort(scheme) {
			r.logger.Warn().
				Str("realm", realm).
				Str("service", scheme).
				Int("port", int(rec.Port)).
				Msg("SRV record advertises a non-standard port")
		}

		out = append(out, uri)
	}
	return out
}

func (r *Resolver) portSilenced(realm string) bool {
	if r.silence == nil {
		return false
	}
	return r.silence(realm)
}

func defaultPort(scheme string) int {
	if scheme == "kpasswd" {
		return 464
	}
	return 88
}
