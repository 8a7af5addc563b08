package jsonrpc2

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Frame is one top-level JSON value read from a stream: either a single
// message or a batch of messages.
type Frame struct {
	Messages []*Message
	Batch    bool
}

// Codec is an abstraction for receiving and sending JSONRPC messages.
type Codec interface {
	// ReadFrame blocks until the next frame is available. A *FrameError is
	// returned for malformed frames; the stream remains usable.
	ReadFrame() (*Frame, error)
	WriteMessage(*Message) error
	// WriteBatch writes all messages as a single JSON array.
	WriteBatch([]*Message) error
	Close() error
}

// FrameError is returned when a frame is not a valid JSONRPC message.
type FrameError struct {
	Frame []byte
	Cause error
}

func (err *FrameError) Error() string {
	return fmt.Sprintf("malformed frame %q: %s", abbrev(err.Frame, 64), err.Cause)
}

func (err *FrameError) Unwrap() error {
	return err.Cause
}

// ParseFrame decodes a single frame.
func ParseFrame(data []byte) (*Frame, error) {
	if isArray(data) {
		var msgs []*Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, &FrameError{data, err}
		}
		return &Frame{Messages: msgs, Batch: true}, nil
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &FrameError{data, err}
	}
	return &Frame{Messages: []*Message{&msg}}, nil
}

var _ Codec = &lineCodec{}

// IOCodec returns a Codec that reads and writes newline-delimited JSON over
// a stream. Partial lines are buffered until the rest of the line arrives.
func IOCodec(rwc io.ReadWriteCloser) *lineCodec {
	return &lineCodec{
		r:   bufio.NewReader(rwc),
		rwc: rwc,
	}
}

type lineCodec struct {
	muRead sync.Mutex
	r      *bufio.Reader

	muWrite sync.Mutex
	rwc     io.ReadWriteCloser
}

func (codec *lineCodec) ReadFrame() (*Frame, error) {
	codec.muRead.Lock()
	defer codec.muRead.Unlock()
	for {
		line, err := codec.r.ReadBytes('\n')
		if err != nil {
			// A trailing partial line at the end of the stream is dropped.
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return ParseFrame(line)
	}
}

func (codec *lineCodec) WriteMessage(msg *Message) error {
	return codec.write(msg)
}

func (codec *lineCodec) WriteBatch(msgs []*Message) error {
	return codec.write(msgs)
}

func (codec *lineCodec) write(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	codec.muWrite.Lock()
	defer codec.muWrite.Unlock()
	_, err = codec.rwc.Write(b)
	return err
}

func (codec *lineCodec) Close() error {
	return codec.rwc.Close()
}
