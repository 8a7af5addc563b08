// Package fakeserver runs an in-process ElectrumX stand-in over TCP, TLS or
// WebSocket, with canned results and knobs for failure scenarios.
package fakeserver

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"

	"github.com/vipnode/electrum/jsonrpc2"
	"github.com/vipnode/electrum/jsonrpc2/ws/gorilla"
	"github.com/vipnode/electrum/transport"
)

// Server is a fake ElectrumX server. It is safe to use from multiple
// goroutines.
type Server struct {
	rpc jsonrpc2.Server

	mu            sync.Mutex
	listeners     []net.Listener
	httpServers   []*http.Server
	codecs        map[jsonrpc2.Codec]struct{}
	accepts       int
	calls         map[string]int
	rejectVersion bool
	hang          bool
	stalled       map[string]bool
	cert          *tls.Certificate
	fixtures      fixtures
	wg            sync.WaitGroup
}

// New returns a server with default fixtures that isn't listening yet.
func New() *Server {
	s := &Server{
		codecs:   map[jsonrpc2.Codec]struct{}{},
		calls:    map[string]int{},
		stalled:  map[string]bool{},
		fixtures: defaultFixtures(),
	}
	svc := &service{s}
	for name, method := range serviceMethods {
		if err := s.rpc.RegisterMethod(name, svc, method); err != nil {
			panic(err)
		}
	}
	return s
}

// Listen starts accepting stream connections on a loopback port.
func (s *Server) Listen(security transport.Security) (transport.Endpoint, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return transport.Endpoint{}, err
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if security == transport.TLS {
		cert, err := s.certificate()
		if err != nil {
			ln.Close()
			return transport.Endpoint{}, err
		}
		ln = tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{*cert}})
	}

	s.mu.Lock()
	s.listeners = append(s.listeners, ln)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serveCodec(context.Background(), jsonrpc2.IOCodec(conn))
		}
	}()

	return transport.Endpoint{
		Host:            "127.0.0.1",
		Port:            port,
		Security:        security,
		ProtocolVersion: transport.DefaultProtocolVersion,
	}, nil
}

// ListenWebSocket starts accepting plain WebSocket connections on a
// loopback port.
func (s *Server) ListenWebSocket() (transport.Endpoint, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return transport.Endpoint{}, err
	}
	srv := &http.Server{Handler: gorilla.WebsocketHandler(s.serveCodec)}

	s.mu.Lock()
	s.httpServers = append(s.httpServers, srv)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		srv.Serve(ln)
	}()

	return transport.Endpoint{
		Host:            "127.0.0.1",
		Port:            ln.Addr().(*net.TCPAddr).Port,
		WebSocket:       true,
		ProtocolVersion: transport.DefaultProtocolVersion,
	}, nil
}

func (s *Server) serveCodec(ctx context.Context, codec jsonrpc2.Codec) error {
	s.mu.Lock()
	s.codecs[codec] = struct{}{}
	s.accepts++
	hang := s.hang
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.codecs, codec)
		s.mu.Unlock()
		codec.Close()
	}()

	rec := &recordingCodec{codec, s}
	if hang {
		for {
			if _, err := rec.ReadFrame(); err != nil {
				return err
			}
		}
	}
	return s.rpc.ServeCodec(ctx, rec)
}

// recordingCodec counts the calls read from a connection and swallows
// stalled ones.
type recordingCodec struct {
	jsonrpc2.Codec
	s *Server
}

func (c *recordingCodec) ReadFrame() (*jsonrpc2.Frame, error) {
	for {
		frame, err := c.Codec.ReadFrame()
		if err != nil {
			return nil, err
		}
		c.s.mu.Lock()
		kept := frame.Messages[:0]
		for _, msg := range frame.Messages {
			if msg.Request == nil {
				continue
			}
			c.s.calls[msg.Method]++
			if !c.s.stalled[msg.Method] {
				kept = append(kept, msg)
			}
		}
		c.s.mu.Unlock()
		if len(kept) > 0 {
			frame.Messages = kept
			return frame, nil
		}
	}
}

// Accepts returns the number of connections accepted so far.
func (s *Server) Accepts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepts
}

// NumConns returns the number of open connections.
func (s *Server) NumConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codecs)
}

// Calls returns the number of calls of method received so far.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// RejectVersion makes server.version fail.
func (s *Server) RejectVersion(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectVersion = reject
}

// Hang makes new connections read calls without ever answering them.
func (s *Server) Hang(hang bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hang = hang
}

// Stall makes calls of method go unanswered.
func (s *Server) Stall(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalled[method] = true
}

// SetPeers sets the result of server.peers.subscribe.
func (s *Server) SetPeers(peers ...Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixtures.Peers = peers
}

// SetTip sets the result of blockchain.headers.subscribe.
func (s *Server) SetTip(height int64, hex string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixtures.Tip = Header{height, hex}
}

// SetBalance sets the result of blockchain.scripthash.get_balance.
func (s *Server) SetBalance(scriptHash string, confirmed, unconfirmed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixtures.Balances[scriptHash] = Balance{confirmed, unconfirmed}
}

// SetTransaction sets the result of blockchain.transaction.get.
func (s *Server) SetTransaction(txHash, rawTx string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixtures.Txs[txHash] = rawTx
}

// Notify pushes a notification to every open connection.
func (s *Server) Notify(method string, params ...interface{}) error {
	msg, err := jsonrpc2.NewNotification(method, params...)
	if err != nil {
		return err
	}
	s.mu.Lock()
	codecs := make([]jsonrpc2.Codec, 0, len(s.codecs))
	for codec := range s.codecs {
		codecs = append(codecs, codec)
	}
	s.mu.Unlock()

	for _, codec := range codecs {
		if err := codec.WriteMessage(msg); err != nil {
			return err
		}
	}
	return nil
}

// DropAll closes every open connection while continuing to listen.
func (s *Server) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for codec := range s.codecs {
		codec.Close()
	}
}

// Close stops listening and closes every open connection.
func (s *Server) Close() error {
	s.mu.Lock()
	for _, ln := range s.listeners {
		ln.Close()
	}
	for _, srv := range s.httpServers {
		srv.Close()
	}
	for codec := range s.codecs {
		codec.Close()
	}
	s.listeners, s.httpServers = nil, nil
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}
