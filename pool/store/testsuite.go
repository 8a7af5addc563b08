package store

import (
	"reflect"
	"testing"
	"time"

	"github.com/vipnode/electrum/transport"
)

// TestSuite runs a suite of tests against a store implementation.
func TestSuite(t *testing.T, newStore func() Store) {
	t.Helper()
	now := time.Now().Truncate(time.Second)

	t.Run("SavePeer", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		if peers, err := s.Peers(); err != nil {
			t.Errorf("unexpected error: %s", err)
		} else if len(peers) != 0 {
			t.Errorf("unexpected peers: %v", peers)
		}

		if err := s.SavePeer(Peer{}); err != ErrMalformedPeer {
			t.Errorf("expected malformed error, got: %s", err)
		}
		if err := s.SavePeer(Peer{Endpoint: transport.Endpoint{Host: "a.example.org"}}); err != ErrMalformedPeer {
			t.Errorf("expected malformed error, got: %s", err)
		}

		b := Peer{
			Endpoint: transport.Endpoint{Host: "b.example.org", Port: 50002, Security: transport.TLS, ProtocolVersion: "1.4", Pruning: "-"},
			LastSeen: now,
		}
		a := Peer{
			Endpoint: transport.Endpoint{Host: "a.example.org", Port: 50001, ProtocolVersion: "1.4.2"},
			LastSeen: now,
		}
		for _, p := range []Peer{b, a} {
			if err := s.SavePeer(p); err != nil {
				t.Errorf("unexpected error: %s", err)
			}
		}

		peers, err := s.Peers()
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if got, want := peerKeys(peers), []string{"a.example.org_tcp", "b.example.org_tls"}; !reflect.DeepEqual(got, want) {
			t.Errorf("got: %v; want: %v", got, want)
		}
		if got := peers[1]; got.Endpoint != b.Endpoint || !got.LastSeen.Equal(b.LastSeen) {
			t.Errorf("got: %v; want: %v", got, b)
		}
	})

	t.Run("Replace", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		p := Peer{
			Endpoint: transport.Endpoint{Host: "a.example.org", Port: 50001},
			LastSeen: now.Add(-time.Hour),
		}
		if err := s.SavePeer(p); err != nil {
			t.Errorf("unexpected error: %s", err)
		}
		p.Port = 60001
		p.LastSeen = now
		if err := s.SavePeer(p); err != nil {
			t.Errorf("unexpected error: %s", err)
		}

		peers, err := s.Peers()
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if len(peers) != 1 || peers[0].Port != 60001 || !peers[0].LastSeen.Equal(now) {
			t.Errorf("unexpected peers: %v", peers)
		}
	})

	t.Run("RemovePeer", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		p := Peer{
			Endpoint: transport.Endpoint{Host: "a.example.org", Port: 50002, Security: transport.TLS},
			LastSeen: now,
		}
		if err := s.SavePeer(p); err != nil {
			t.Errorf("unexpected error: %s", err)
		}
		if err := s.RemovePeer("unknown_tcp"); err != nil {
			t.Errorf("unexpected error: %s", err)
		}
		if err := s.RemovePeer(p.Key()); err != nil {
			t.Errorf("unexpected error: %s", err)
		}
		if peers, err := s.Peers(); err != nil {
			t.Errorf("unexpected error: %s", err)
		} else if len(peers) != 0 {
			t.Errorf("unexpected peers: %v", peers)
		}
	})

	t.Run("Expired", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		stale := Peer{
			Endpoint: transport.Endpoint{Host: "stale.example.org", Port: 50001},
			LastSeen: now.Add(-PeerTTL - time.Hour),
		}
		fresh := Peer{
			Endpoint: transport.Endpoint{Host: "fresh.example.org", Port: 50001},
			LastSeen: now.Add(-PeerTTL + time.Hour),
		}
		for _, p := range []Peer{stale, fresh} {
			if err := s.SavePeer(p); err != nil {
				t.Errorf("unexpected error: %s", err)
			}
		}
		peers, err := s.Peers()
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if got, want := peerKeys(peers), []string{"fresh.example.org_tcp"}; !reflect.DeepEqual(got, want) {
			t.Errorf("got: %v; want: %v", got, want)
		}
	})
}

func peerKeys(peers []Peer) []string {
	r := make([]string, 0, len(peers))
	for _, p := range peers {
		r = append(r, p.Key())
	}
	return r
}
