package jsonrpc2

import (
	"encoding/json"
	"sync/atomic"
)

// Client allocates request IDs. IDs increase monotonically for the life of
// the Client.
type Client struct {
	id int32
}

func (c *Client) NextID() int {
	return int(atomic.AddInt32(&c.id, 1))
}

// Request returns a call message with the next ID and positional params.
func (c *Client) Request(method string, params ...interface{}) (*Message, error) {
	msg := &Message{
		Request: &Request{
			Method: method,
		},
		Version: Version,
	}
	var err error
	if msg.ID, err = json.Marshal(c.NextID()); err != nil {
		return nil, err
	}
	if msg.Request.Params, err = marshalParams(params); err != nil {
		return nil, err
	}
	return msg, nil
}
