package proxy

// RealmSource is implemented by configuration-backed resolvers — the
// kdcproxy.conf store (C3) and any krb5.conf-style adapter (C4) — that can
// answer both "what servers do you have for this realm" and "do you even
// know about this realm" questions, the latter feeding the DNS-discovery
// gate in C6.
type RealmSource interface {
	// Lookup returns the configured server URIs for realm. kpasswd
	// selects the kpasswd server list over the kerberos (KDC) list.
	Lookup(realm string, kpasswd bool) []ServerURI

	// RealmConfigured reports whether this source has any configuration
	// at all for realm (an exact section, a matching wildcard, or an
	// equivalent native-profile realm entry).
	RealmConfigured(realm string) bool

	// UseDNS reports whether DNS SRV discovery is permitted for realm
	// according to this source's own configuration.
	UseDNS(realm string) bool
}

// SRVLookuper is implemented by the DNS SRV resolver (C5). It is not asked
// about realm configuration — C6 gates DNS queries itself.
type SRVLookuper interface {
	Lookup(realm string, kpasswd bool) []ServerURI
}

// PortWarner is the signature of a callback for an SRV record whose port is
// non-standard. The internal/dnssrv resolver does not take one: it logs such
// records itself, unless its SilenceChecker silences the realm.
type PortWarner func(realm string, uri ServerURI)
