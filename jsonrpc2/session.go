package jsonrpc2

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// Notifier receives messages that arrive without an ID, keyed by their
// method name.
type Notifier interface {
	Dispatch(topic string, params json.RawMessage)
}

// Service represents a remote service that can be called.
type Service interface {
	Call(ctx context.Context, result interface{}, method string, params ...interface{}) error
}

var _ Service = &Session{}

// Session is a client-side JSONRPC session over a single Codec. It assigns
// IDs to outgoing calls, correlates replies with pending calls and routes
// server pushes to the Notifier.
//
// Serve must be running for calls to complete. Once the codec fails or the
// session is closed, the session is dead: pending calls fail and new calls
// fail immediately.
type Session struct {
	Codec
	Client   *Client
	Notifier Notifier

	// PendingLimit is the number of calls to hold before the oldest calls get
	// discarded. Zero means no limit.
	PendingLimit int
	// PendingDiscard is the number of oldest calls that get discarded when
	// PendingLimit is reached.
	PendingDiscard int

	mu       sync.Mutex
	pending  map[string]*Call
	closed   bool
	closeErr error
}

// NewSession returns a Session over codec. notifier may be nil, in which
// case pushes are dropped.
func NewSession(codec Codec, notifier Notifier) *Session {
	return &Session{
		Codec:    codec,
		Client:   &Client{},
		Notifier: notifier,
	}
}

func (s *Session) client() *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Client == nil {
		s.Client = &Client{}
	}
	return s.Client
}

// cleanPending fails and removes num oldest calls, must hold the s.mu lock.
func (s *Session) cleanPending(num int) []*Call {
	discarded := make([]*Call, 0, num)
	for _, key := range pendingOldest(s.pending, num) {
		discarded = append(discarded, s.pending[key])
		delete(s.pending, key)
	}
	return discarded
}

// addPending registers calls, failing if the session is dead.
func (s *Session) addPending(calls ...*Call) error {
	s.mu.Lock()
	if s.closed {
		err := s.closeErr
		s.mu.Unlock()
		return err
	}
	if s.pending == nil {
		s.pending = map[string]*Call{}
	}
	var discarded []*Call
	if s.PendingLimit > 0 && len(s.pending)+len(calls) > s.PendingLimit && s.PendingDiscard > 0 {
		discarded = s.cleanPending(s.PendingDiscard)
	}
	for _, call := range calls {
		s.pending[string(call.ID)] = call
	}
	s.mu.Unlock()

	for _, call := range discarded {
		logger.Printf("Session: Discarding pending call %s (%s)", call.ID, call.Method)
		call.complete(nil, ErrPendingDiscarded)
	}
	return nil
}

func (s *Session) removePending(call *Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(call.ID)
	if s.pending[key] == call {
		delete(s.pending, key)
	}
}

// takePending removes and returns the call with the given ID.
func (s *Session) takePending(id json.RawMessage) (*Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(id)
	call, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	return call, ok
}

// NumPending returns the number of calls awaiting a reply.
func (s *Session) NumPending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Alive returns false once the session has been closed or lost its
// connection.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Go issues a call and returns without waiting for the reply.
func (s *Session) Go(method string, params ...interface{}) *Call {
	msg, err := s.client().Request(method, params...)
	if err != nil {
		return FailedCall(method, err)
	}
	call := newCall(msg)
	call.abandon = s.removePending
	if err := s.addPending(call); err != nil {
		return FailedCall(method, err)
	}
	if err := s.Codec.WriteMessage(msg); err != nil {
		s.removePending(call)
		call.complete(nil, ConnectionLostError{err})
	}
	return call
}

// Call handles sending an RPC and receiving the corresponding response
// synchronously.
func (s *Session) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	return s.Go(method, params...).Decode(ctx, result)
}

// GoBatch issues one call of method per argument, as a single batch write.
// Each item is sent with the argument as its only positional param.
func (s *Session) GoBatch(method string, args ...interface{}) *BatchCall {
	client := s.client()
	msgs := make([]*Message, 0, len(args))
	calls := make([]*Call, 0, len(args))
	for _, arg := range args {
		msg, err := client.Request(method, arg)
		if err != nil {
			return FailedBatch(method, len(args), err)
		}
		call := newCall(msg)
		call.abandon = s.removePending
		msgs = append(msgs, msg)
		calls = append(calls, call)
	}
	batch := newBatchCall(method, calls)
	if len(calls) == 0 {
		return batch
	}
	for _, call := range calls {
		call.notify = batch.itemDone
	}
	if err := s.addPending(calls...); err != nil {
		for _, call := range calls {
			call.complete(nil, err)
		}
		return batch
	}
	if err := s.Codec.WriteBatch(msgs); err != nil {
		for _, call := range calls {
			s.removePending(call)
			call.complete(nil, ConnectionLostError{err})
		}
	}
	return batch
}

// FailedBatch returns a batch of n calls that have already failed with err.
func FailedBatch(method string, n int, err error) *BatchCall {
	calls := make([]*Call, 0, n)
	for i := 0; i < n; i++ {
		calls = append(calls, FailedCall(method, err))
	}
	batch := newBatchCall(method, calls)
	if n > 0 {
		close(batch.done)
	}
	return batch
}

// CallBatch sends a batch and waits for all of its results.
func (s *Session) CallBatch(ctx context.Context, method string, args ...interface{}) ([]BatchResult, error) {
	return s.GoBatch(method, args...).Wait(ctx)
}

// Serve reads frames until the codec fails, resolving pending calls and
// dispatching pushes in arrival order. It returns the read error; by then
// every pending call has failed.
func (s *Session) Serve() error {
	for {
		frame, err := s.Codec.ReadFrame()
		if err != nil {
			var frameErr *FrameError
			if errors.As(err, &frameErr) {
				logger.Printf("Session.Serve(): Skipping %s", err)
				continue
			}
			s.shutdown(ConnectionLostError{err})
			return err
		}
		for _, msg := range frame.Messages {
			s.handle(msg)
		}
	}
}

func (s *Session) handle(msg *Message) {
	switch {
	case msg == nil:
		return
	case msg.IsNotification():
		if s.Notifier == nil {
			logger.Printf("Session.Serve(): Dropping notification without a notifier: %s", msg.Method)
			return
		}
		s.Notifier.Dispatch(msg.Method, msg.Params)
	case msg.Response != nil:
		call, ok := s.takePending(msg.ID)
		if !ok {
			logger.Printf("Session.Serve(): Dropping reply with unknown id: %s", msg.ID)
			return
		}
		if msg.Response.Error != nil {
			call.complete(nil, msg.Response.Error)
			return
		}
		call.complete(msg.Response.Result, nil)
	default:
		logger.Printf("Session.Serve(): Dropping unsupported message: %s", msg)
	}
}

// shutdown marks the session dead and fails every pending call with err,
// oldest first.
func (s *Session) shutdown(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeErr = err
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, key := range pendingOldest(pending, len(pending)) {
		pending[key].complete(nil, err)
	}
}

// Close fails all pending calls with ErrClosed and closes the codec.
func (s *Session) Close() error {
	s.shutdown(ErrClosed)
	return s.Codec.Close()
}
