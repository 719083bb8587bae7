// Package mitprofile adapts an MIT krb5.conf file into a proxy.RealmSource,
// giving kdcproxy.conf's "configs = mit" directive a source of realm data
// drawn from the machine's native Kerberos configuration instead of a
// dedicated kdcproxy.conf section. It mirrors the libkrb5 profile reader
// the Python implementation called into via ctypes, but reads the file
// directly with gokrb5's pure-Go parser.
package mitprofile

import (
	"os"
	"strings"

	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/rs/zerolog"

	"github.com/openkkdcp/kdcproxy/internal/registry"
	"github.com/openkkdcp/kdcproxy/pkg/proxy"
)

func init() {
	registry.Register("mit", func(logger zerolog.Logger) (proxy.RealmSource, error) {
		return New("", logger)
	})
}

type realmServers struct {
	kdc      []proxy.ServerURI
	kpasswd  []proxy.ServerURI
	adminSrv []proxy.ServerURI
}

// Profile reads realm and libdefaults data from an MIT krb5.conf file.
type Profile struct {
	logger zerolog.Logger
	useDNS bool
	realms map[string]realmServers
}

// New parses the krb5.conf at path. An empty path falls back to
// KRB5_CONFIG, then the standard /etc/krb5.conf location, mirroring the
// resolution order MIT's own libkrb5 uses.
func New(path string, logger zerolog.Logger) (*Profile, error) {
	if path == "" {
		path = os.Getenv("KRB5_CONFIG")
	}
	if path == "" {
		path = "/etc/krb5.conf"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	p := &Profile{
		logger: logger,
		useDNS: cfg.LibDefaults.DNSLookupKDC,
		realms: make(map[string]realmServers),
	}

	for _, realm := range cfg.Realms {
		p.realms[realm.Realm] = realmServers{
			kdc:      p.parseAll(realm.Realm, "kdc", realm.KDC, "kerberos"),
			kpasswd:  p.parseAll(realm.Realm, "kpasswd_server", realm.KPasswdServer, "kpasswd"),
			adminSrv: p.parseAdminServers(realm.Realm, realm.AdminServer),
		}
	}

	return p, nil
}

// parseAll parses a list of bare "host[:port]" or already-schemed entries
// from krb5.conf, defaulting to defaultScheme when no scheme is present.
func (p *Profile) parseAll(realm, key string, entries []string, defaultScheme string) []proxy.ServerURI {
	out := make([]proxy.ServerURI, 0, len(entries))
	for _, raw := range entries {
		uri, err := parseHostPort(raw, defaultScheme)
		if err != nil {
			p.logger.Warn().Err(err).Str("realm", realm).Str("key", key).Str("value", raw).Msg("ignoring malformed krb5.conf entry")
			continue
		}
		out = append(out, uri)
	}
	return out
}

// parseAdminServers applies the admin_server port-stripping rule: an
// admin_server entry is a kadmin endpoint, but kdcproxy only forwards
// kpasswd traffic to it, so any explicit port (kadmin's, not kpasswd's) is
// discarded in favor of the standard kpasswd port.
func (p *Profile) parseAdminServers(realm string, entries []string) []proxy.ServerURI {
	out := make([]proxy.ServerURI, 0, len(entries))
	for _, raw := range entries {
		host := raw
		if idx := strings.LastIndex(raw, ":"); idx >= 0 && !strings.Contains(raw, "://") {
			host = raw[:idx]
		}
		uri, err := parseHostPort(host, "kpasswd")
		if err != nil {
			p.logger.Warn().Err(err).Str("realm", realm).Str("key", "admin_server").Str("value", raw).Msg("ignoring malformed krb5.conf entry")
			continue
		}
		out = append(out, uri)
	}
	return out
}

func parseHostPort(raw, defaultScheme string) (proxy.ServerURI, error) {
	if !strings.Contains(raw, "://") {
		raw = defaultScheme + "://" + raw
	}
	return proxy.ParseServerURI(raw)
}

// Lookup returns kdc servers, or kpasswd_server followed by admin_server
// entries when kpasswd is set, per the original MITConfig.lookup.
func (p *Profile) Lookup(realm string, kpasswd bool) []proxy.ServerURI {
	rs, ok := p.realms[realm]
	if !ok {
		return nil
	}
	if !kpasswd {
		return rs.kdc
	}
	out := make([]proxy.ServerURI, 0, len(rs.kpasswd)+len(rs.adminSrv))
	out = append(out, rs.kpasswd...)
	out = append(out, rs.adminSrv...)
	return out
}

// RealmConfigured reports whether krb5.conf has a [realms] stanza for realm.
func (p *Profile) RealmConfigured(realm string) bool {
	_, ok := p.realms[realm]
	return ok
}

// UseDNS reports libdefaults.dns_lookup_kdc as parsed by gokrb5,
// independent of realm: MIT's profile has no per-realm override for it.
// libdefaults.dns_fallback is not consulted.
func (p *Profile) UseDNS(realm string) bool {
	return p.useDNS
}
