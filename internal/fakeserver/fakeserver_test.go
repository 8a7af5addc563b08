package fakeserver

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/vipnode/electrum/jsonrpc2"
	"github.com/vipnode/electrum/transport"
)

type chanNotifier chan string

func (n chanNotifier) Dispatch(topic string, params json.RawMessage) {
	n <- topic
}

func dial(t *testing.T, e transport.Endpoint, notifier jsonrpc2.Notifier) *jsonrpc2.Session {
	t.Helper()
	var conn net.Conn
	var err error
	if e.Security == transport.TLS {
		conn, err = tls.Dial("tcp", e.Address(), &tls.Config{InsecureSkipVerify: true})
	} else {
		conn, err = net.Dial("tcp", e.Address())
	}
	if err != nil {
		t.Fatal(err)
	}
	session := jsonrpc2.NewSession(jsonrpc2.IOCodec(conn), notifier)
	go session.Serve()
	t.Cleanup(func() { session.Close() })
	return session
}

func TestServer(t *testing.T) {
	s := New()
	defer s.Close()

	for _, security := range []transport.Security{transport.Plain, transport.TLS} {
		e, err := s.Listen(security)
		if err != nil {
			t.Fatal(err)
		}
		session := dial(t, e, nil)

		var version []string
		if err := session.Call(context.Background(), &version, "server.version", "test", "1.4"); err != nil {
			t.Fatalf("[%s] %s", security, err)
		}
		if len(version) != 2 || version[0] != Software {
			t.Errorf("[%s] got: %q", security, version)
		}
	}

	if got, want := s.Accepts(), 2; got != want {
		t.Errorf("got: %d accepts; want %d", got, want)
	}
	if got, want := s.Calls("server.version"), 2; got != want {
		t.Errorf("got: %d calls; want %d", got, want)
	}
}

func TestServerNotifyAndDrop(t *testing.T) {
	s := New()
	defer s.Close()

	e, err := s.Listen(transport.Plain)
	if err != nil {
		t.Fatal(err)
	}
	notifier := make(chanNotifier, 1)
	session := dial(t, e, notifier)
	if err := session.Call(context.Background(), nil, "server.ping"); err != nil {
		t.Fatal(err)
	}

	if err := s.Notify("blockchain.headers.subscribe", Header{Height: 1}); err != nil {
		t.Fatal(err)
	}
	select {
	case topic := <-notifier:
		if topic != "blockchain.headers.subscribe" {
			t.Errorf("got: %q", topic)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}

	s.DropAll()
	err = session.Call(context.Background(), nil, "server.ping")
	if !jsonrpc2.IsConnectionLost(err) {
		t.Errorf("got: %v; want connection lost", err)
	}
}

func TestServerRejectVersion(t *testing.T) {
	s := New()
	defer s.Close()
	s.RejectVersion(true)

	e, err := s.Listen(transport.Plain)
	if err != nil {
		t.Fatal(err)
	}
	session := dial(t, e, nil)
	err = session.Call(context.Background(), nil, "server.version", "test", "1.4")
	if _, ok := err.(*jsonrpc2.ErrResponse); !ok {
		t.Errorf("got: %v; want error response", err)
	}
}
