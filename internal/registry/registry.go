// Package registry is the explicit, compile-time replacement for the
// kdcproxy.conf "configs" plugin-discovery mechanism. The original Python
// implementation imports a module by name and relies on a live
// IConfig.__subclasses__() class graph to discover it afterwards; Go has no
// portable equivalent, so plugins register themselves by name from an
// init() function instead (see internal/mitprofile).
package registry

import (
	"github.com/rs/zerolog"

	"github.com/openkkdcp/kdcproxy/pkg/proxy"
)

// Factory builds a RealmSource on demand, e.g. by parsing a krb5.conf file.
type Factory func(logger zerolog.Logger) (proxy.RealmSource, error)

var factories = make(map[string]Factory)

// Register adds a named factory to the registry. Intended to be called
// from a package-level init().
func Register(name string, f Factory) {
	factories[name] = f
}

// Lookup returns the factory registered under name, if any.
func Lookup(name string) (Factory, bool) {
	f, ok := factories[name]
	return f, ok
}
