package jsonrpc2

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Call is an outstanding request. It completes exactly once: with the
// matching reply, with the error the other side reported, or with a local
// failure (connection loss, session close, abandonment).
type Call struct {
	ID      json.RawMessage
	Method  string
	Params  json.RawMessage
	Created time.Time

	once   sync.Once
	done   chan struct{}
	result json.RawMessage
	err    error

	// abandon removes the call from its session's pending set.
	abandon func(*Call)
	// notify is called after the call completes, used by batches.
	notify func()
}

func newCall(msg *Message) *Call {
	return &Call{
		ID:      msg.ID,
		Method:  msg.Method,
		Params:  msg.Params,
		Created: time.Now(),
		done:    make(chan struct{}),
	}
}

// FailedCall returns a call that has already failed with err.
func FailedCall(method string, err error) *Call {
	c := &Call{
		Method:  method,
		Created: time.Now(),
		done:    make(chan struct{}),
	}
	c.complete(nil, err)
	return c
}

// complete resolves the call, returning false if it was already resolved.
func (c *Call) complete(result json.RawMessage, err error) bool {
	ok := false
	c.once.Do(func() {
		c.result, c.err = result, err
		close(c.done)
		ok = true
	})
	if ok && c.notify != nil {
		c.notify()
	}
	return ok
}

// Done is closed when the call completes.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Err returns the call's error, or nil if it hasn't completed or succeeded.
func (c *Call) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the call completes or ctx is done. When ctx is done
// first, the call is abandoned: it fails with ctx.Err() and a late reply is
// ignored.
func (c *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
	}
	if c.complete(nil, ctx.Err()) && c.abandon != nil {
		c.abandon(c)
	}
	<-c.done
	return c.result, c.err
}

// Decode waits for the call and unmarshals its result into v.
func (c *Call) Decode(ctx context.Context, v interface{}) error {
	result, err := c.Wait(ctx)
	if err != nil {
		return err
	}
	resp := Response{Result: result}
	return resp.UnmarshalResult(v)
}

// BatchResult is the outcome of one item of a batch.
type BatchResult struct {
	Result json.RawMessage
	Err    error
}

// Decode unmarshals the item's result into v, or returns the item's error.
func (r BatchResult) Decode(v interface{}) error {
	if r.Err != nil {
		return r.Err
	}
	resp := Response{Result: r.Result}
	return resp.UnmarshalResult(v)
}

// BatchCall is a set of calls written in one batch. Items complete
// independently; results keep the order the items were issued in.
type BatchCall struct {
	Method string
	Calls  []*Call

	remaining int32
	done      chan struct{}
}

func newBatchCall(method string, calls []*Call) *BatchCall {
	b := &BatchCall{
		Method:    method,
		Calls:     calls,
		remaining: int32(len(calls)),
		done:      make(chan struct{}),
	}
	if len(calls) == 0 {
		close(b.done)
	}
	return b
}

func (b *BatchCall) itemDone() {
	if atomic.AddInt32(&b.remaining, -1) == 0 {
		close(b.done)
	}
}

// Done is closed when every item has completed.
func (b *BatchCall) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until all items complete and returns one result per item, in
// order. An error reported by the server for one item is confined to that
// item's result. Any other failure, such as a lost connection, fails the
// whole batch.
func (b *BatchCall) Wait(ctx context.Context) ([]BatchResult, error) {
	results := make([]BatchResult, len(b.Calls))
	for i, call := range b.Calls {
		result, err := call.Wait(ctx)
		results[i] = BatchResult{Result: result, Err: err}
	}
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		var respErr *ErrResponse
		if !errors.As(r.Err, &respErr) {
			return nil, r.Err
		}
	}
	return results, nil
}
