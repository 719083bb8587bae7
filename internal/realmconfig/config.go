// Package realmconfig implements the kdcproxy.conf realm store (C3): the
// INI-backed RealmSource that kdcproxy consults first, including its
// wildcard realm sections and the global.configs plugin loader.
package realmconfig

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/ini.v1"

	"github.com/openkkdcp/kdcproxy/internal/registry"
	"github.com/openkkdcp/kdcproxy/pkg/proxy"
)

const (
	envPath      = "KDCPROXY_CONFIG"
	defaultPathA = "/usr/local/etc/kdcproxy.conf"
	defaultPathB = "/etc/kdcproxy.conf"

	globalSection = "global"
)

// Config is the INI-backed RealmSource built from kdcproxy.conf.
type Config struct {
	file    *ini.File
	logger  zerolog.Logger
	plugins []proxy.RealmSource
}

// Load resolves the kdcproxy.conf path (explicit argument, then
// KDCPROXY_CONFIG, then the usual /usr/local/etc and /etc locations) and
// parses it. A missing or unreadable file is not fatal: Load logs a warning
// and returns a Config backed by an empty store, so the proxy falls through
// to any other configured realm sources.
func Load(explicit string, logger zerolog.Logger) *Config {
	path := resolvePath(explicit)

	file, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true}, path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("kdcproxy.conf not loaded, using empty realm config")
		file = ini.Empty()
	}

	c := &Config{file: file, logger: logger}
	c.plugins = c.loadPlugins()
	return c
}

func resolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(envPath); p != "" {
		return p
	}
	if _, err := os.Stat(defaultPathA); err == nil {
		return defaultPathA
	}
	if _, err := os.Stat(defaultPathB); err == nil {
		return defaultPathB
	}
	return defaultPathB
}

// loadPlugins reads global.configs, a whitespace-separated list of plugin
// names, and instantiates each one via the registry. A plugin that fails to
// build is logged and skipped rather than treated as fatal.
func (c *Config) loadPlugins() []proxy.RealmSource {
	names := strings.Fields(c.file.Section(globalSection).Key("configs").String())

	var out []proxy.RealmSource
	for _, name := range names {
		factory, ok := registry.Lookup(name)
		if !ok {
			c.logger.Warn().Str("plugin", name).Msg("unknown realm config plugin, skipping")
			continue
		}
		src, err := factory(c.logger)
		if err != nil {
			c.logger.Warn().Err(err).Str("plugin", name).Msg("realm config plugin failed to load, skipping")
			continue
		}
		out = append(out, src)
	}
	return out
}

// Plugins returns the extra RealmSource adapters named by global.configs,
// in the order they were listed.
func (c *Config) Plugins() []proxy.RealmSource {
	return c.plugins
}

// panicIfGlobal enforces the invariant that "global" is a reserved section
// name and is never a realm any caller may look up.
func panicIfGlobal(realm string) {
	if realm == globalSection {
		panic("realmconfig: \"global\" is not a valid realm")
	}
}

// Lookup returns the configured servers for realm's exact section. Wildcard
// sections never contribute servers, only parameters.
func (c *Config) Lookup(realm string, kpasswd bool) []proxy.ServerURI {
	panicIfGlobal(realm)

	if !c.file.HasSection(realm) {
		return nil
	}
	sec := c.file.Section(realm)

	key := "kerberos"
	if kpasswd {
		key = "kpasswd"
	}

	fields := strings.Fields(sec.Key(key).String())
	out := make([]proxy.ServerURI, 0, len(fields))
	for _, raw := range fields {
		uri, err := proxy.ParseServerURI(raw)
		if err != nil {
			c.logger.Warn().Err(err).Str("realm", realm).Str("value", raw).Msg("ignoring malformed server entry")
			continue
		}
		out = append(out, uri)
	}
	return out
}

// RealmConfigured reports whether realm has an exact section or a matching
// wildcard section in kdcproxy.conf.
func (c *Config) RealmConfigured(realm string) bool {
	panicIfGlobal(realm)

	if c.file.HasSection(realm) {
		return true
	}
	return bestWildcard(c.sectionNames(), realm) != ""
}

func (c *Config) sectionNames() []string {
	secs := c.file.Sections()
	names := make([]string, 0, len(secs))
	for _, s := range secs {
		names = append(names, s.Name())
	}
	return names
}

// paramBool resolves a boolean parameter using the exact realm section,
// then the longest matching wildcard section, then the global section,
// falling back to def if no section sets it. realm == "" skips straight to
// the global section, for parameters (like dns_realm_discovery) that are
// global-only.
func (c *Config) paramBool(realm, name string, def bool) bool {
	if realm != "" {
		if sec, err := c.file.GetSection(realm); err == nil && sec.HasKey(name) {
			return sec.Key(name).MustBool(def)
		}
		if wc := bestWildcard(c.sectionNames(), realm); wc != "" {
			sec := c.file.Section(wc)
			if sec.HasKey(name) {
				return sec.Key(name).MustBool(def)
			}
		}
	}

	global := c.file.Section(globalSection)
	if global.HasKey(name) {
		return global.Key(name).MustBool(def)
	}
	return def
}

// UseDNS reports whether DNS SRV discovery may be used to supplement or
// replace realm's configured servers. Default true.
func (c *Config) UseDNS(realm string) bool {
	panicIfGlobal(realm)
	return c.paramBool(realm, "use_dns", true)
}

// SilencePortWarn reports whether the DNS SRV resolver should suppress its
// warning about SRV records that advertise a port other than the standard
// kerberos (88) or kpasswd (464) port.
func (c *Config) SilencePortWarn(realm string) bool {
	panicIfGlobal(realm)
	return c.paramBool(realm, "silence_port_warn", false)
}

// DNSRealmDiscovery reports global.dns_realm_discovery: whether DNS SRV may
// be consulted even for realms no realm source has ever heard of.
func (c *Config) DNSRealmDiscovery() bool {
	return c.paramBool("", "dns_realm_discovery", false)
}
