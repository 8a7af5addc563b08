package jsonrpc2

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const Version = "2.0"

const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
	ErrCodeServer         = -32000
)

type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrResponse    `json:"error,omitempty"`
}

// UnmarshalResult decodes the result into v, or returns the error response.
// A missing or null result leaves v untouched.
func (resp *Response) UnmarshalResult(v interface{}) error {
	if resp.Error != nil {
		return resp.Error
	}
	if v == nil || len(resp.Result) == 0 || bytes.Equal(resp.Result, null) {
		return nil
	}
	return json.Unmarshal(resp.Result, v)
}

// ErrResponse is an error object reported by the other side.
type ErrResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (err *ErrResponse) Error() string {
	return fmt.Sprintf("%d: %s", err.Code, err.Message)
}

// ErrorCode returns the JSONRPC error code.
func (err *ErrResponse) ErrorCode() int {
	return err.Code
}

var null = json.RawMessage("null")

// Message is a single JSONRPC message. A message with a Request and an ID is
// a call, a message with a Request and no ID is a notification, and a message
// with a Response is a reply.
type Message struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Version string          `json:"jsonrpc"`

	*Request
	*Response
}

// IsNotification returns true if the message is a server push that doesn't
// expect a reply.
func (m *Message) IsNotification() bool {
	return m.Request != nil && len(m.ID) == 0
}

func (m *Message) String() string {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprintf("<invalid message: %s>", err)
	}
	return string(b)
}

// wireMessage is the flattened representation of a Message on the wire.
type wireMessage struct {
	Version string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrResponse    `json:"error,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		Version: m.Version,
		ID:      m.ID,
	}
	if m.Request != nil {
		w.Method = m.Request.Method
		w.Params = m.Request.Params
	}
	if m.Response != nil {
		if m.Response.Error != nil {
			w.Error = m.Response.Error
		} else if len(m.Response.Result) > 0 {
			w.Result = m.Response.Result
		} else {
			w.Result = null
		}
	}
	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{Version: w.Version}
	if len(w.ID) > 0 && !bytes.Equal(w.ID, null) {
		m.ID = w.ID
	}
	if w.Method != "" {
		m.Request = &Request{
			Method: w.Method,
			Params: w.Params,
		}
		return nil
	}
	if len(m.ID) > 0 || w.Error != nil {
		m.Response = &Response{
			Result: w.Result,
			Error:  w.Error,
		}
	}
	return nil
}

// NewNotification returns a message without an ID, used for server pushes.
func NewNotification(method string, params ...interface{}) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{
		Version: Version,
		Request: &Request{
			Method: method,
			Params: raw,
		},
	}, nil
}

// marshalParams encodes positional params, always as a JSON array.
func marshalParams(params []interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	return json.Marshal(params)
}
