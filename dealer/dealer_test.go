package dealer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// newTestServer starts a WebSocket echo-ish server whose handler is fully
// controlled by the test via onConn.
func newTestServer(t *testing.T, onConn func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		onConn(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestSubscribeReceivesMessage(t *testing.T) {
	connected := make(chan struct{})
	srv := newTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		close(connected)
		frame, _ := json.Marshal(map[string]any{
			"type": "message",
			"uri":  "hm://x/y/z",
		})
		_ = conn.WriteMessage(websocket.TextMessage, frame)
		time.Sleep(50 * time.Millisecond)
	})

	d := New(func(ctx context.Context) (string, error) { return wsURL(srv.URL), nil })
	sub, err := d.Subscribe([]string{"hm://x"})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw a connection")
	}

	select {
	case msg := <-sub.C():
		if msg.URI != "hm://x/y/z" {
			t.Errorf("got uri %q", msg.URI)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received message")
	}
}

func TestRequestExactlyOneReply(t *testing.T) {
	replies := make(chan map[string]any, 4)
	ready := make(chan struct{})
	srv := newTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		req, _ := json.Marshal(map[string]any{
			"type":          "request",
			"key":           "req-1",
			"message_ident": "hm://do/thing",
		})
		close(ready)
		_ = conn.WriteMessage(websocket.TextMessage, req)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var m map[string]any
			if json.Unmarshal(data, &m) == nil && m["type"] == "reply" {
				replies <- m
			}
		}
	})

	d := New(func(ctx context.Context) (string, error) { return wsURL(srv.URL), nil })
	if err := d.AddHandler("hm://do/thing", func(req Request, resp *Responder) {
		resp.Send(true)
	}); err != nil {
		t.Fatalf("AddHandler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	<-ready
	select {
	case reply := <-replies:
		if reply["key"] != "req-1" {
			t.Errorf("reply key = %v", reply["key"])
		}
		payload, _ := reply["payload"].(map[string]any)
		if payload["success"] != true {
			t.Errorf("reply payload = %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("never received reply")
	}

	select {
	case extra := <-replies:
		t.Fatalf("received a second reply: %v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDuplicateHandlerRejected(t *testing.T) {
	d := New(func(ctx context.Context) (string, error) { return "", nil })
	if err := d.AddHandler("hm://x/y", func(Request, *Responder) {}); err != nil {
		t.Fatalf("first AddHandler: %v", err)
	}
	if err := d.AddHandler("hm://x/y", func(Request, *Responder) {}); err == nil {
		t.Fatal("expected AlreadyHandled on duplicate registration")
	}
}

func TestResponderDropSendsFailureWithoutExplicitSend(t *testing.T) {
	replies := make(chan map[string]any, 4)
	ready := make(chan struct{})
	srv := newTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		req, _ := json.Marshal(map[string]any{
			"type":          "request",
			"key":           "req-2",
			"message_ident": "hm://unhandled/path",
		})
		close(ready)
		_ = conn.WriteMessage(websocket.TextMessage, req)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var m map[string]any
			if json.Unmarshal(data, &m) == nil && m["type"] == "reply" {
				replies <- m
			}
		}
	})

	d := New(func(ctx context.Context) (string, error) { return wsURL(srv.URL), nil })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	<-ready
	select {
	case reply := <-replies:
		payload, _ := reply["payload"].(map[string]any)
		if payload["success"] != false {
			t.Errorf("expected synthetic failure reply, got %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("never received synthetic failure reply")
	}
}
