package jsonrpc2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"unicode"
)

// Server contains the method registry and answers calls read from a Codec.
// It is the counterpart of Session and is used to stand up fake servers.
type Server struct {
	mu       sync.RWMutex
	registry map[string]Method
}

func (s *Server) register(name string, m Method) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registry == nil {
		s.registry = map[string]Method{}
	}
	s.registry[name] = m
}

// Register adds valid methods from the receiver to the registry with the given
// prefix. Method names are lowercased.
func (s *Server) Register(prefix string, receiver interface{}) error {
	methods, err := Methods(receiver)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	for name, m := range methods {
		buf.WriteString(prefix)
		buf.WriteRune(unicode.ToLower(rune(name[0])))
		buf.WriteString(name[1:])
		s.register(buf.String(), m)
		buf.Reset()
	}
	return nil
}

// RegisterMethod exposes the receiver's method under an arbitrary RPC name,
// such as "blockchain.headers.subscribe".
func (s *Server) RegisterMethod(rpcName string, receiver interface{}, methodName string) error {
	m, err := MethodByName(receiver, methodName)
	if err != nil {
		return err
	}
	s.register(rpcName, m)
	return nil
}

func (s *Server) method(name string) (Method, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.registry[name]
	return m, ok
}

// Handle executes a call and returns its reply. Notifications are executed
// and nil is returned.
func (s *Server) Handle(ctx context.Context, msg *Message) *Message {
	if msg.Request == nil {
		return nil
	}
	resp := &Response{}
	reply := &Message{
		ID:       msg.ID,
		Version:  Version,
		Response: resp,
	}
	if msg.IsNotification() {
		reply = nil
	}

	m, ok := s.method(msg.Method)
	if !ok {
		resp.Error = &ErrResponse{
			Code:    ErrCodeMethodNotFound,
			Message: fmt.Sprintf("unknown method %q", msg.Method),
		}
		return reply
	}
	res, err := m.CallJSON(ctx, msg.Params)
	if err != nil {
		var errResp *ErrResponse
		if errors.As(err, &errResp) {
			resp.Error = errResp
		} else {
			resp.Error = &ErrResponse{
				Code:    ErrCodeInternal,
				Message: err.Error(),
			}
		}
		return reply
	}
	if resp.Result, err = json.Marshal(res); err != nil {
		resp.Error = &ErrResponse{
			Code:    ErrCodeServer,
			Message: fmt.Sprintf("failed to encode response: %s", err),
		}
	}
	return reply
}

// ServeCodec answers calls from the codec until it fails. Batches are
// answered with a batch in the same order.
func (s *Server) ServeCodec(ctx context.Context, codec Codec) error {
	for {
		frame, err := codec.ReadFrame()
		if err != nil {
			var frameErr *FrameError
			if !errors.As(err, &frameErr) {
				return err
			}
			reply := &Message{
				Version: Version,
				ID:      null,
				Response: &Response{Error: &ErrResponse{
					Code:    ErrCodeParse,
					Message: frameErr.Cause.Error(),
				}},
			}
			if err := codec.WriteMessage(reply); err != nil {
				return err
			}
			continue
		}

		replies := make([]*Message, 0, len(frame.Messages))
		for _, msg := range frame.Messages {
			if reply := s.Handle(ctx, msg); reply != nil {
				replies = append(replies, reply)
			}
		}
		switch {
		case len(replies) == 0:
		case frame.Batch:
			err = codec.WriteBatch(replies)
		default:
			err = codec.WriteMessage(replies[0])
		}
		if err != nil {
			return err
		}
	}
}
