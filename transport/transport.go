// Package transport opens plain, TLS and WebSocket streams to ElectrumX
// servers behind one interface, so the layers above never branch on the
// underlying transport.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Conn is an open stream to a server. Reads return newline-delimited bytes
// regardless of the underlying transport. A read that returns io.EOF means
// the server ended the stream; a net.Error with Timeout() means the idle
// timeout elapsed.
type Conn interface {
	io.ReadWriteCloser
	// Secure returns true if the stream completed a TLS handshake.
	Secure() bool
	// RemoteAddr is the address of the server.
	RemoteAddr() net.Addr
}

// DialError is returned when a stream could not be opened.
type DialError struct {
	Endpoint Endpoint
	Cause    error
}

func (err DialError) Error() string {
	return fmt.Sprintf("failed to dial %s: %s", err.Endpoint, err.Cause)
}

// Unwrap returns the underlying dial error.
func (err DialError) Unwrap() error { return err.Cause }

// Options are the socket settings of a Transport.
type Options struct {
	// DialTimeout bounds connection establishment, including the TLS and
	// WebSocket handshakes. Zero means no limit beyond the context.
	DialTimeout time.Duration
	// Timeout is the idle read timeout. Zero disables it.
	Timeout time.Duration
	// KeepAlive enables TCP keepalive probes every KeepAlivePeriod.
	KeepAlive       bool
	KeepAlivePeriod time.Duration
	// NoDelay disables Nagle's algorithm.
	NoDelay bool

	// InsecureSkipVerify disables TLS certificate validation. Most ElectrumX
	// servers use self-signed certificates, so this is the default.
	InsecureSkipVerify bool
	// TLSConfig overrides the generated TLS config if set.
	TLSConfig *tls.Config
	// WebSocketPath is the request path used for WebSocket endpoints.
	WebSocketPath string
}

// DefaultOptions returns the socket settings used by light clients.
func DefaultOptions() Options {
	return Options{
		DialTimeout:        10 * time.Second,
		KeepAlive:          true,
		NoDelay:            true,
		InsecureSkipVerify: true,
		WebSocketPath:      "/",
	}
}

// Transport opens streams to endpoints. Setters apply to the currently open
// stream right away and are remembered for every stream opened later.
type Transport struct {
	mu   sync.Mutex
	opts Options
	conn *streamConn
}

// New returns a Transport with the given options.
func New(opts Options) *Transport {
	return &Transport{opts: opts}
}

// Options returns a copy of the current settings.
func (t *Transport) Options() Options {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opts
}

// SetTimeout sets the idle read timeout.
func (t *Transport) SetTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opts.Timeout = d
	if t.conn != nil {
		t.conn.setTimeout(d)
	}
}

// SetKeepAlive toggles TCP keepalive probes.
func (t *Transport) SetKeepAlive(enabled bool, period time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opts.KeepAlive = enabled
	t.opts.KeepAlivePeriod = period
	if t.conn != nil {
		t.conn.applyKeepAlive(enabled, period)
	}
}

// SetNoDelay toggles Nagle's algorithm.
func (t *Transport) SetNoDelay(noDelay bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opts.NoDelay = noDelay
	if t.conn != nil {
		t.conn.applyNoDelay(noDelay)
	}
}

// Open dials the endpoint and replays the buffered socket settings on the
// new stream. A previously opened stream is closed.
func (t *Transport) Open(ctx context.Context, e Endpoint) (Conn, error) {
	opts := t.Options()
	if opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.DialTimeout)
		defer cancel()
	}

	var conn *streamConn
	var err error
	if e.WebSocket {
		conn, err = dialWebSocket(ctx, e, opts)
	} else {
		conn, err = dialStream(ctx, e, opts)
	}
	if err != nil {
		return nil, DialError{e, err}
	}

	t.mu.Lock()
	prev := t.conn
	t.conn = conn
	// Settings may have changed while dialing.
	opts = t.opts
	conn.setTimeout(opts.Timeout)
	conn.applyKeepAlive(opts.KeepAlive, opts.KeepAlivePeriod)
	conn.applyNoDelay(opts.NoDelay)
	t.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	logger.Printf("Opened %s (secure: %t)", e, conn.Secure())
	return conn, nil
}

// Close closes the currently open stream, if any.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func tlsConfig(e Endpoint, opts Options) *tls.Config {
	if opts.TLSConfig != nil {
		return opts.TLSConfig.Clone()
	}
	return &tls.Config{
		ServerName:         e.Host,
		InsecureSkipVerify: opts.InsecureSkipVerify,
	}
}

func dialStream(ctx context.Context, e Endpoint, opts Options) (*streamConn, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", e.Address())
	if err != nil {
		return nil, err
	}
	tcp, _ := raw.(*net.TCPConn)
	if e.Security != TLS {
		return &streamConn{Conn: raw, tcp: tcp, r: raw, w: raw}, nil
	}

	tlsConn := tls.Client(raw, tlsConfig(e, opts))
	if deadline, ok := ctx.Deadline(); ok {
		tlsConn.SetDeadline(deadline)
	}
	if err := tlsConn.Handshake(); err != nil {
		raw.Close()
		return nil, err
	}
	tlsConn.SetDeadline(time.Time{})
	return &streamConn{Conn: tlsConn, tcp: tcp, r: tlsConn, w: tlsConn, secure: true}, nil
}

// streamConn applies the idle timeout on every read and exposes the socket
// options of the underlying TCP connection.
type streamConn struct {
	net.Conn
	tcp    *net.TCPConn
	r      io.Reader
	w      io.Writer
	secure bool

	mu      sync.Mutex
	timeout time.Duration
}

func (c *streamConn) Secure() bool {
	return c.secure
}

func (c *streamConn) setTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
	if d == 0 {
		c.Conn.SetReadDeadline(time.Time{})
	}
}

func (c *streamConn) applyKeepAlive(enabled bool, period time.Duration) {
	if c.tcp == nil {
		return
	}
	c.tcp.SetKeepAlive(enabled)
	if enabled && period > 0 {
		c.tcp.SetKeepAlivePeriod(period)
	}
}

func (c *streamConn) applyNoDelay(noDelay bool) {
	if c.tcp == nil {
		return
	}
	c.tcp.SetNoDelay(noDelay)
}

func (c *streamConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	timeout := c.timeout
	c.mu.Unlock()
	if timeout > 0 {
		c.Conn.SetReadDeadline(time.Now().Add(timeout))
	}
	return c.r.Read(p)
}

func (c *streamConn) Write(p []byte) (int, error) {
	return c.w.Write(p)
}
