package proxy

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Transport pins a ServerURI to one address family of the underlying
// Kerberos transport, as implied by a "+tcp"/"+udp" scheme suffix.
type Transport int

const (
	// TransportAny means both TCP and UDP should be attempted.
	TransportAny Transport = iota
	TransportTCP
	TransportUDP
)

// ServerURI is a parsed kerberos:// or kpasswd:// server reference, per
// spec §3.
type ServerURI struct {
	Scheme string
	Host   string
	Port   int
}

// ParseServerURI parses one of kerberos, kerberos+tcp, kerberos+udp,
// kpasswd, kpasswd+tcp, kpasswd+udp URIs.
func ParseServerURI(raw string) (ServerURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ServerURI{}, fmt.Errorf("parsing server URI %q: %w", raw, err)
	}

	base := strings.TrimSuffix(strings.TrimSuffix(u.Scheme, "+tcp"), "+udp")
	switch base {
	case "kerberos", "kpasswd":
	default:
		return ServerURI{}, fmt.Errorf("unsupported server URI scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return ServerURI{}, fmt.Errorf("server URI %q has no host", raw)
	}

	port := defaultPort(base)
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return ServerURI{}, fmt.Errorf("server URI %q has an invalid port: %w", raw, err)
		}
		port = n
	}

	return ServerURI{Scheme: u.Scheme, Host: host, Port: port}, nil
}

func defaultPort(base string) int {
	if base == "kpasswd" {
		return 464
	}
	return 88
}

// Transport reports which transport(s) this URI's scheme pins attempts to.
func (s ServerURI) Transport() Transport {
	switch {
	case strings.HasSuffix(s.Scheme, "+tcp"):
		return TransportTCP
	case strings.HasSuffix(s.Scheme, "+udp"):
		return TransportUDP
	default:
		return TransportAny
	}
}

// String renders the transport pin for use in log fields and metric labels.
func (t Transport) String() string {
	switch t {
	case TransportTCP:
		return "tcp"
	case TransportUDP:
		return "udp"
	default:
		return "any"
	}
}

// Kpasswd reports whether this URI addresses a kpasswd service.
func (s ServerURI) Kpasswd() bool {
	return strings.HasPrefix(s.Scheme, "kpasswd")
}

// Addr returns the host:port pair suitable for net.Dial-family calls.
func (s ServerURI) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// String renders the URI back to its wire form.
func (s ServerURI) String() string {
	return fmt.Sprintf("%s://%s", s.Scheme, s.Addr())
}
