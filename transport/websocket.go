package transport

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/url"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

func dialWebSocket(ctx context.Context, e Endpoint, opts Options) (*streamConn, error) {
	u := url.URL{
		Scheme: "ws",
		Host:   e.Address(),
		Path:   opts.WebSocketPath,
	}
	secure := e.Security == TLS
	if secure {
		u.Scheme = "wss"
	}
	dialer := ws.Dialer{}
	if secure {
		dialer.TLSConfig = tlsConfig(e, opts)
	}
	conn, br, _, err := dialer.Dial(ctx, u.String())
	if err != nil {
		return nil, err
	}

	// Frames the server sent right after the handshake may already be
	// buffered.
	var src io.Reader = conn
	if br != nil {
		src = io.MultiReader(br, conn)
	}
	frames := &wsFrames{
		rw:   rw{src, conn},
		conn: conn,
	}

	var tcp *net.TCPConn
	if c, ok := conn.(*net.TCPConn); ok {
		tcp = c
	}
	return &streamConn{
		Conn:   conn,
		tcp:    tcp,
		r:      frames,
		w:      frames,
		secure: secure,
	}, nil
}

type rw struct {
	io.Reader
	io.Writer
}

// wsFrames adapts WebSocket data frames to newline-delimited bytes. Each
// frame read is terminated by a newline; each line written becomes one text
// frame.
type wsFrames struct {
	rw   rw
	conn net.Conn

	muRead  sync.Mutex
	pending []byte

	muWrite sync.Mutex
}

func (f *wsFrames) Read(p []byte) (int, error) {
	f.muRead.Lock()
	defer f.muRead.Unlock()
	for len(f.pending) == 0 {
		data, _, err := wsutil.ReadServerData(f.rw)
		if err != nil {
			return 0, err
		}
		data = bytes.TrimRight(data, "\r\n")
		if len(data) == 0 {
			continue
		}
		f.pending = append(data, '\n')
	}
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *wsFrames) Write(p []byte) (int, error) {
	f.muWrite.Lock()
	defer f.muWrite.Unlock()
	for _, line := range bytes.Split(p, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := wsutil.WriteClientText(f.conn, line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}
