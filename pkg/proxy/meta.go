package proxy

// MetaResolver composes realm sources with the precedence and DNS-discovery
// safety gate of spec §4.6: configured servers always win, any extra
// registered sources contribute next in registration order, and DNS SRV is
// only consulted when discovery is allowed for the realm.
type MetaResolver struct {
	// config is consulted first and also governs the per-realm use_dns
	// policy used by the discovery gate.
	config RealmSource

	// extra holds additional RealmSource-style adapters (e.g. the MIT
	// krb5.conf adapter), tried in registration order after config.
	extra []RealmSource

	// dns is consulted last, only if discovery is allowed.
	dns SRVLookuper

	// dnsRealmDiscovery is the global.dns_realm_discovery flag: when
	// true, DNS is allowed even for realms no source has heard of.
	dnsRealmDiscovery bool
}

// NewMetaResolver builds a MetaResolver. dns may be nil to disable DNS SRV
// discovery entirely regardless of configuration.
func NewMetaResolver(config RealmSource, extra []RealmSource, dns SRVLookuper, dnsRealmDiscovery bool) *MetaResolver {
	return &MetaResolver{
		config:            config,
		extra:             extra,
		dns:               dns,
		dnsRealmDiscovery: dnsRealmDiscovery,
	}
}

// Lookup returns the ordered, deduplicated candidate servers for realm.
func (m *MetaResolver) Lookup(realm string, kpasswd bool) []ServerURI {
	var all []ServerURI

	all = append(all, m.config.Lookup(realm, kpasswd)...)
	for _, src := range m.extra {
		all = append(all, src.Lookup(realm, kpasswd)...)
	}

	if m.discoveryAllowed(realm) {
		all = append(all, m.dns.Lookup(realm, kpasswd)...)
	}

	return dedup(all)
}

// discoveryAllowed implements the two-layer safety gate of spec §4.6: a
// realm no source has acknowledged cannot trigger outbound DNS traffic
// unless the operator has opted into open discovery.
func (m *MetaResolver) discoveryAllowed(realm string) bool {
	if m.dns == nil {
		return false
	}

	configured := m.config.RealmConfigured(realm)
	if !configured {
		for _, src := range m.extra {
			if src.RealmConfigured(realm) {
				configured = true
				break
			}
		}
	}

	if !configured && !m.dnsRealmDiscovery {
		return false
	}

	return m.config.UseDNS(realm)
}

// dedup removes duplicate entries from items while preserving the first
// occurrence of each, per spec §4.6.
func dedup(items []ServerURI) []ServerURI {
	seen := make(map[ServerURI]bool, len(items))
	out := make([]ServerURI, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
