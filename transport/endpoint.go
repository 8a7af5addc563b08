package transport

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Security is the transport security of an endpoint.
type Security int

const (
	// Plain is an unencrypted TCP stream.
	Plain Security = iota
	// TLS is a TLS-wrapped TCP stream.
	TLS
)

func (s Security) String() string {
	switch s {
	case Plain:
		return "tcp"
	case TLS:
		return "tls"
	}
	return fmt.Sprintf("Security(%d)", int(s))
}

// ParseSecurity accepts the names used by Electrum server lists: "t", "tcp"
// and "plain" for unencrypted streams, "s", "ssl" and "tls" for TLS.
func ParseSecurity(s string) (Security, error) {
	switch strings.ToLower(s) {
	case "t", "tcp", "plain":
		return Plain, nil
	case "s", "ssl", "tls":
		return TLS, nil
	}
	return Plain, fmt.Errorf("unknown transport security: %q", s)
}

// DefaultProtocolVersion is the protocol version assumed for endpoints that
// don't advertise one.
const DefaultProtocolVersion = "1.4"

// Endpoint describes a single ElectrumX server listener.
type Endpoint struct {
	Host     string
	Port     int
	Security Security
	// WebSocket dials the endpoint as ws:// (or wss:// with TLS) instead of
	// a raw stream.
	WebSocket bool

	// ProtocolVersion and Pruning are informational, as advertised by peers.
	ProtocolVersion string
	Pruning         string
}

// Address returns the host:port dial address.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) scheme() string {
	switch {
	case e.WebSocket && e.Security == TLS:
		return "wss"
	case e.WebSocket:
		return "ws"
	}
	return e.Security.String()
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s://%s", e.scheme(), e.Address())
}

// Key identifies the endpoint within a pool, such as "example.org_tls". A
// host has at most one endpoint per kind of transport, whatever the port.
func (e Endpoint) Key() string {
	return e.Host + "_" + e.scheme()
}

// ParseEndpoint parses an endpoint URI. Supported forms are tcp://host:port,
// tls://host:port, ssl://host:port, ws://host:port, wss://host:port and the
// Electrum server list form host:port:t or host:port:s.
func ParseEndpoint(s string) (Endpoint, error) {
	if !strings.Contains(s, "://") {
		return parseElectrumForm(s)
	}
	u, err := url.Parse(s)
	if err != nil {
		return Endpoint{}, err
	}
	e := Endpoint{ProtocolVersion: DefaultProtocolVersion}
	switch u.Scheme {
	case "tcp":
		e.Security = Plain
	case "tls", "ssl":
		e.Security = TLS
	case "ws":
		e.WebSocket = true
	case "wss":
		e.WebSocket = true
		e.Security = TLS
	default:
		return Endpoint{}, fmt.Errorf("unsupported endpoint scheme: %q", u.Scheme)
	}
	e.Host = u.Hostname()
	if e.Host == "" {
		return Endpoint{}, fmt.Errorf("endpoint is missing a host: %q", s)
	}
	if e.Port, err = parsePort(u.Port()); err != nil {
		return Endpoint{}, err
	}
	return e, nil
}

func parseElectrumForm(s string) (Endpoint, error) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return Endpoint{}, fmt.Errorf("invalid endpoint: %q", s)
	}
	security, err := ParseSecurity(s[i+1:])
	if err != nil {
		return Endpoint{}, err
	}
	host, port, err := net.SplitHostPort(s[:i])
	if err != nil {
		return Endpoint{}, err
	}
	e := Endpoint{
		Host:            host,
		Security:        security,
		ProtocolVersion: DefaultProtocolVersion,
	}
	if e.Host == "" {
		return Endpoint{}, fmt.Errorf("endpoint is missing a host: %q", s)
	}
	if e.Port, err = parsePort(port); err != nil {
		return Endpoint{}, err
	}
	return e, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port: %q", s)
	}
	return port, nil
}
