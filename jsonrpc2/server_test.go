package jsonrpc2

import (
	"context"
	"encoding/json"
	"testing"
)

func TestServer(t *testing.T) {
	service := &FruitService{}
	s := Server{}
	if err := s.Register("foo_", service); err != nil {
		t.Error(err)
	}
	if err := s.RegisterMethod("fruit.echo", service, "Echo"); err != nil {
		t.Error(err)
	}

	ctx := context.Background()
	resp := s.Handle(ctx, &Message{
		ID:      json.RawMessage([]byte("1")),
		Version: Version,
		Request: &Request{
			Method: "foo_apple",
		},
	})
	if resp.Error != nil {
		t.Errorf("unexpected error: %q", resp)
	}
	if string(resp.Result) != `"Apple"` {
		t.Errorf("unexpected result: %q", resp.Result)
	}

	resp = s.Handle(ctx, &Message{
		ID:      json.RawMessage([]byte("2")),
		Version: Version,
		Request: &Request{
			Method: "foo_banana",
		},
	})
	if resp.Error != nil {
		t.Errorf("unexpected error: %q", resp)
	}
	if string(resp.Result) != "null" {
		t.Errorf("unexpected result: %q", resp.Result)
	}

	resp = s.Handle(ctx, &Message{
		ID:      json.RawMessage([]byte("3")),
		Version: Version,
		Request: &Request{
			Method: "fruit.echo",
			Params: json.RawMessage(`["kiwi"]`),
		},
	})
	if string(resp.Result) != `"kiwi"` {
		t.Errorf("unexpected result: %q", resp.Result)
	}

	resp = s.Handle(ctx, &Message{
		ID:      json.RawMessage([]byte("4")),
		Version: Version,
		Request: &Request{
			Method: "fruit.missing",
		},
	})
	if resp.Error == nil || resp.Error.Code != ErrCodeMethodNotFound {
		t.Errorf("expected method not found: %q", resp)
	}

	notification := s.Handle(ctx, &Message{
		Version: Version,
		Request: &Request{Method: "foo_apple"},
	})
	if notification != nil {
		t.Errorf("notifications should not be answered: %q", notification)
	}
}
