package jsonrpc2

import (
	"bytes"
	"errors"
	"io"
	"io/ioutil"
	"net"
	"testing"
)

type bufferRWC struct {
	io.Reader
	io.Writer
	io.Closer
}

func TestCodec(t *testing.T) {
	var buf bytes.Buffer
	codec := IOCodec(bufferRWC{&buf, &buf, ioutil.NopCloser(&buf)})
	msg := &Message{
		ID:      []byte("42"),
		Version: "2.0",
		Request: &Request{Method: "server.ping", Params: []byte("[]")},
	}
	if err := codec.WriteMessage(msg); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), msg.String()+"\n"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}
	frame, err := codec.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if frame.Batch || len(frame.Messages) != 1 {
		t.Fatalf("unexpected frame: %+v", frame)
	}
	assertEqualJSON(t, frame.Messages[0], msg, "message mismatch")
}

func TestCodecPartialLines(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	chunks := []string{
		`{"jsonrpc":"2.0","id":1,"res`,
		`ult":"a"}` + "\n" + `{"jsonrpc":"2.0","id":2,"result":"b"}` + "\n\n",
		`{"jsonrpc":"2.0","method":"blockchain.headers.subscribe","params":[]}` + "\n" + `{"jsonrpc"`,
	}
	go func() {
		for _, chunk := range chunks {
			c2.Write([]byte(chunk))
		}
		c2.Close()
	}()

	codec := IOCodec(c1)
	var ids []string
	var methods []string
	for {
		frame, err := codec.ReadFrame()
		if err != nil {
			if err != io.EOF {
				t.Errorf("unexpected error: %s", err)
			}
			break
		}
		for _, msg := range frame.Messages {
			if msg.IsNotification() {
				methods = append(methods, msg.Method)
			} else {
				ids = append(ids, string(msg.ID))
			}
		}
	}

	if got, want := len(ids), 2; got != want {
		t.Fatalf("got: %d replies; want %d", got, want)
	}
	if ids[0] != "1" || ids[1] != "2" {
		t.Errorf("got: %q; want %q", ids, []string{"1", "2"})
	}
	if len(methods) != 1 || methods[0] != "blockchain.headers.subscribe" {
		t.Errorf("got: %q", methods)
	}
}

func TestCodecBatch(t *testing.T) {
	var buf bytes.Buffer
	codec := IOCodec(bufferRWC{&buf, &buf, ioutil.NopCloser(&buf)})
	client := Client{}
	var msgs []*Message
	for _, arg := range []string{"aa", "bb"} {
		msg, err := client.Request("blockchain.scripthash.get_balance", arg)
		if err != nil {
			t.Fatal(err)
		}
		msgs = append(msgs, msg)
	}
	if err := codec.WriteBatch(msgs); err != nil {
		t.Fatal(err)
	}
	if got := bytes.Count(buf.Bytes(), []byte("\n")); got != 1 {
		t.Errorf("batch should be a single line, got %d lines", got)
	}

	frame, err := codec.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if !frame.Batch {
		t.Error("expected batch frame")
	}
	assertEqualJSON(t, frame.Messages, msgs, "batch mismatch")
}

func TestCodecMalformed(t *testing.T) {
	buf := bytes.NewBufferString("not json\n" + `{"jsonrpc":"2.0","id":1,"result":true}` + "\n")
	codec := IOCodec(bufferRWC{buf, buf, ioutil.NopCloser(buf)})

	_, err := codec.ReadFrame()
	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("got: %v; want FrameError", err)
	}
	frame, err := codec.ReadFrame()
	if err != nil {
		t.Fatalf("stream should stay usable: %s", err)
	}
	if got := string(frame.Messages[0].ID); got != "1" {
		t.Errorf("got: %q; want %q", got, "1")
	}
}
