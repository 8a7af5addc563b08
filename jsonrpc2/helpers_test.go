package jsonrpc2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

type FruitService struct{}

func (f *FruitService) Apple() string {
	return "Apple"
}

func (f *FruitService) Banana() error {
	return nil
}

func (f *FruitService) Cherry() (string, error) {
	return "Cherry", nil
}

func (f *FruitService) Durian() error {
	return errors.New("durian failure")
}

func (f *FruitService) Rotten() error {
	return &ErrResponse{Code: 1, Message: "rotten"}
}

func (f *FruitService) Echo(s string) string {
	return s
}

type topicMsg struct {
	Topic  string
	Params json.RawMessage
}

type chanNotifier chan topicMsg

func (n chanNotifier) Dispatch(topic string, params json.RawMessage) {
	n <- topicMsg{topic, params}
}

// servePipe returns a session connected over a pipe to srv.
func servePipe(t *testing.T, srv *Server, notifier Notifier) *Session {
	t.Helper()
	c1, c2 := net.Pipe()
	t.Cleanup(func() {
		c1.Close()
		c2.Close()
	})
	go srv.ServeCodec(context.Background(), IOCodec(c2))
	session := NewSession(IOCodec(c1), notifier)
	go session.Serve()
	return session
}

// rawPipe returns a served session, the raw codec of the other end, and the
// messages read from that end.
func rawPipe(t *testing.T, notifier Notifier) (*Session, Codec, <-chan *Message) {
	t.Helper()
	c1, c2 := net.Pipe()
	t.Cleanup(func() {
		c1.Close()
		c2.Close()
	})
	session := NewSession(IOCodec(c1), notifier)
	go session.Serve()
	server := IOCodec(c2)
	incoming := make(chan *Message, 16)
	go func() {
		defer close(incoming)
		for {
			frame, err := server.ReadFrame()
			if err != nil {
				return
			}
			for _, msg := range frame.Messages {
				incoming <- msg
			}
		}
	}()
	return session, server, incoming
}

func receive(t *testing.T, incoming <-chan *Message) *Message {
	t.Helper()
	select {
	case msg, ok := <-incoming:
		if !ok {
			t.Fatal("server side closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for call")
	}
	return nil
}

func reply(t *testing.T, codec Codec, id json.RawMessage, result interface{}) {
	t.Helper()
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatal(err)
	}
	msg := &Message{ID: id, Version: Version, Response: &Response{Result: raw}}
	if err := codec.WriteMessage(msg); err != nil {
		t.Fatal(err)
	}
}

func assertEqualJSON(t *testing.T, a, b interface{}, format string, args ...interface{}) {
	t.Helper()

	aa, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	bb, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(aa, bb) {
		prefix := fmt.Sprintf(format, args...)
		t.Errorf(prefix+"\n   got: %q\n  want: %q", aa, bb)
	}
}
