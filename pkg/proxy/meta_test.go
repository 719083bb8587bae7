package proxy

import "testing"

type fakeSource struct {
	servers    map[string][]ServerURI
	configured map[string]bool
	useDNS     map[string]bool
}

func (f fakeSource) Lookup(realm string, kpasswd bool) []ServerURI { return f.servers[realm] }
func (f fakeSource) RealmConfigured(realm string) bool             { return f.configured[realm] }
func (f fakeSource) UseDNS(realm string) bool                      { return f.useDNS[realm] }

type fakeDNS struct {
	servers []ServerURI
	calls   int
}

func (f *fakeDNS) Lookup(realm string, kpasswd bool) []ServerURI {
	f.calls++
	return f.servers
}

func uri(host string) ServerURI { return ServerURI{Scheme: "kerberos", Host: host, Port: 88} }

func TestMetaResolverConfigOnly(t *testing.T) {
	config := fakeSource{servers: map[string][]ServerURI{"EXAMPLE.COM": {uri("kdc1")}}, useDNS: map[string]bool{"EXAMPLE.COM": true}}
	m := NewMetaResolver(config, nil, nil, false)

	got := m.Lookup("EXAMPLE.COM", false)
	if len(got) != 1 || got[0].Host != "kdc1" {
		t.Fatalf("Lookup = %+v", got)
	}
}

func TestMetaResolverDeduplicatesAcrossSources(t *testing.T) {
	config := fakeSource{servers: map[string][]ServerURI{"EXAMPLE.COM": {uri("kdc1")}}}
	extra := fakeSource{servers: map[string][]ServerURI{"EXAMPLE.COM": {uri("kdc1"), uri("kdc2")}}}
	m := NewMetaResolver(config, []RealmSource{extra}, nil, false)

	got := m.Lookup("EXAMPLE.COM", false)
	if len(got) != 2 {
		t.Fatalf("Lookup = %+v, want 2 deduplicated entries", got)
	}
}

func TestMetaResolverNotConfiguredNoDiscovery(t *testing.T) {
	config := fakeSource{useDNS: map[string]bool{}}
	dns := &fakeDNS{servers: []ServerURI{uri("dns1")}}
	m := NewMetaResolver(config, nil, dns, false)

	got := m.Lookup("UNKNOWN.ORG", false)
	if len(got) != 0 {
		t.Fatalf("Lookup = %+v, want empty when discovery is disallowed", got)
	}
	if dns.calls != 0 {
		t.Errorf("DNS should not have been queried, calls = %d", dns.calls)
	}
}

func TestMetaResolverNotConfiguredDiscoveryAllowedGlobally(t *testing.T) {
	config := fakeSource{useDNS: map[string]bool{"UNKNOWN.ORG": true}}
	dns := &fakeDNS{servers: []ServerURI{uri("dns1")}}
	m := NewMetaResolver(config, nil, dns, true)

	got := m.Lookup("UNKNOWN.ORG", false)
	if len(got) != 1 {
		t.Fatalf("Lookup = %+v, want the DNS-discovered entry", got)
	}
	if dns.calls != 1 {
		t.Errorf("DNS should have been queried exactly once, calls = %d", dns.calls)
	}
}

func TestMetaResolverConfiguredButUseDNSFalse(t *testing.T) {
	config := fakeSource{
		servers:    map[string][]ServerURI{"EXAMPLE.COM": {uri("kdc1")}},
		configured: map[string]bool{"EXAMPLE.COM": true},
		useDNS:     map[string]bool{"EXAMPLE.COM": false},
	}
	dns := &fakeDNS{servers: []ServerURI{uri("dns1")}}
	m := NewMetaResolver(config, nil, dns, true)

	got := m.Lookup("EXAMPLE.COM", false)
	if len(got) != 1 || got[0].Host != "kdc1" {
		t.Fatalf("Lookup = %+v, want only the configured entry", got)
	}
	if dns.calls != 0 {
		t.Errorf("DNS should not be queried when use_dns is false, calls = %d", dns.calls)
	}
}

func TestMetaResolverNilDNSNeverQueried(t *testing.T) {
	config := fakeSource{useDNS: map[string]bool{}}
	m := NewMetaResolver(config, nil, nil, true)

	if got := m.Lookup("ANY.ORG", false); len(got) != 0 {
		t.Fatalf("Lookup = %+v, want empty with no DNS resolver configured", got)
	}
}
