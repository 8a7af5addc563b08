// Package gorilla serves JSONRPC over websockets using Gorilla's Websocket
// library. Each websocket text message carries one frame.
package gorilla

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/vipnode/electrum/jsonrpc2"
)

var _ jsonrpc2.Codec = &wsCodec{}

// Codec wraps a websocket connection with JSON encoding and decoding.
func Codec(conn *websocket.Conn) jsonrpc2.Codec {
	return &wsCodec{conn: conn}
}

type wsCodec struct {
	muWrite sync.Mutex
	muRead  sync.Mutex
	conn    *websocket.Conn
}

func (codec *wsCodec) ReadFrame() (*jsonrpc2.Frame, error) {
	codec.muRead.Lock()
	defer codec.muRead.Unlock()
	_, data, err := codec.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return jsonrpc2.ParseFrame(data)
}

func (codec *wsCodec) WriteMessage(msg *jsonrpc2.Message) error {
	codec.muWrite.Lock()
	defer codec.muWrite.Unlock()
	return codec.conn.WriteJSON(msg)
}

func (codec *wsCodec) WriteBatch(msgs []*jsonrpc2.Message) error {
	codec.muWrite.Lock()
	defer codec.muWrite.Unlock()
	return codec.conn.WriteJSON(msgs)
}

func (codec *wsCodec) Close() error {
	return codec.conn.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Upgrade takes an HTTP request, upgrades it to a websocket server and
// returns a codec.
func Upgrade(w http.ResponseWriter, r *http.Request) (jsonrpc2.Codec, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return Codec(conn), nil
}

// ConnHandler is called with the codec of each upgraded connection and
// owns it until it returns.
type ConnHandler func(ctx context.Context, codec jsonrpc2.Codec) error

// WebsocketHandler upgrades every request and passes the codec to serve.
func WebsocketHandler(serve ConnHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		codec, err := Upgrade(w, r)
		if err != nil {
			logger.Printf("websocket upgrade error from %s: %s", r.RemoteAddr, err)
			return
		}
		defer codec.Close()
		if err := serve(r.Context(), codec); err != nil && err != io.EOF && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			logger.Printf("serve error from %s: %s", r.RemoteAddr, err)
		}
	}
}

// ServerHandler answers calls on every connection with srv.
func ServerHandler(srv *jsonrpc2.Server) http.HandlerFunc {
	return WebsocketHandler(srv.ServeCodec)
}
