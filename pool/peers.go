package pool

import (
	"strconv"

	"github.com/vipnode/electrum/electrum"
	"github.com/vipnode/electrum/transport"
)

// defaultPruning is what peers that keep the full history report.
const defaultPruning = "-"

// ParsePeers converts a server.peers.subscribe reply into endpoints. Each
// feature of an entry is a one letter code followed by its value: v for the
// protocol version, s for the TLS port, t for the plain port and p for the
// pruning limit. An entry yields one endpoint per advertised port, TLS first.
// Entries without a host, and ports that are missing or invalid, are skipped.
func ParsePeers(entries []electrum.PeerEntry) []transport.Endpoint {
	var r []transport.Endpoint
	for _, entry := range entries {
		if entry.Host == "" {
			continue
		}
		version, pruning := transport.DefaultProtocolVersion, defaultPruning
		var tlsPort, plainPort int
		for _, feature := range entry.Features {
			if len(feature) < 2 {
				continue
			}
			value := feature[1:]
			switch feature[0] {
			case 'v':
				version = value
			case 'p':
				pruning = value
			case 's':
				tlsPort = parsePort(value)
			case 't':
				plainPort = parsePort(value)
			}
		}

		base := transport.Endpoint{
			Host:            entry.Host,
			ProtocolVersion: version,
			Pruning:         pruning,
		}
		if tlsPort > 0 {
			e := base
			e.Port, e.Security = tlsPort, transport.TLS
			r = append(r, e)
		}
		if plainPort > 0 {
			e := base
			e.Port, e.Security = plainPort, transport.Plain
			r = append(r, e)
		}
	}
	return r
}

func parsePort(s string) int {
	port, err := strconv.Atoi(s)
	if err != nil || port <= 0 || port > 65535 {
		return 0
	}
	return port
}
