// Package dealer implements the duplex control-plane multiplexer: it owns
// one WebSocket, fans inbound messages out to subscribers, dispatches
// inbound requests to registered handlers and replies exactly once to
// each, and reconnects transparently on connection loss.
package dealer

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lyra/lyraerr"
	"lyra/uri"
)

const (
	// WebsocketCloseTimeout bounds how long Close waits for the
	// background tasks to wind down.
	WebsocketCloseTimeout = 3 * time.Second
	// PingInterval is how often the receive task emits a ping.
	PingInterval = 30 * time.Second
	// PingTimeout is how long the receive task waits for a pong before
	// considering the link dead.
	PingTimeout = 3 * time.Second
	// ReconnectInterval is the backoff the supervisor sleeps before
	// re-resolving a URL and reconnecting.
	ReconnectInterval = 10 * time.Second

	outboundQueueSize = 256
)

// GetURL resolves a fresh WebSocket URL to (re)connect to. It must be
// re-callable; the supervisor invokes it once per (re)connect attempt.
type GetURL func(ctx context.Context) (string, error)

// Dealer owns one logical WebSocket connection and presents the
// subscribe / add-handler / close API described in spec §4.2.
type Dealer struct {
	getURL GetURL

	handlers *uri.HandlerMap
	subs     *uri.SubscriberMap

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{} // closed once the supervisor has fully exited

	mu   sync.Mutex
	conn *websocket.Conn
	out  chan []byte // per-connection outbound queue, recreated on reconnect
}

// New constructs a Dealer. The connection isn't established until Run is
// called; callers typically do `go dealer.Run(ctx)` once after
// subscribing/registering the handlers they need at startup.
func New(getURL GetURL) *Dealer {
	return &Dealer{
		getURL:   getURL,
		handlers: uri.NewHandlerMap(),
		subs:     uri.NewSubscriberMap(),
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Subscribe registers a new subscription for the given URIs and returns a
// stream of messages matching any of them.
func (d *Dealer) Subscribe(uris []string) (*Subscription, error) {
	ch := make(chan Message, 32)
	anyCh := make(chan any, 32)
	for _, u := range uris {
		path, err := uri.Split(u)
		if err != nil {
			return nil, err
		}
		if err := d.subs.Insert(path, anyCh); err != nil {
			return nil, err
		}
	}
	go bridgeMessages(anyCh, ch)
	return &Subscription{ch: ch}, nil
}

// bridgeMessages adapts the uri package's `chan any` storage to the
// dealer's typed Subscription channel.
func bridgeMessages(in <-chan any, out chan<- Message) {
	defer close(out)
	for v := range in {
		msg, ok := v.(Message)
		if !ok {
			continue
		}
		select {
		case out <- msg:
		default:
		}
	}
}

// AddHandler registers handler for uri. Returns AlreadyHandled if a
// handler is already registered at that exact path.
func (d *Dealer) AddHandler(u string, handler Handler) error {
	path, err := uri.Split(u)
	if err != nil {
		return err
	}
	return d.handlers.Insert(path, handler)
}

// RemoveHandler removes and returns the handler registered at uri, if any.
func (d *Dealer) RemoveHandler(u string) (Handler, bool) {
	path, err := uri.Split(u)
	if err != nil {
		return nil, false
	}
	v, ok := d.handlers.Remove(path)
	if !ok {
		return nil, false
	}
	h, _ := v.(Handler)
	return h, true
}

// Run drives the connect/reconnect supervisor loop until ctx is done or
// Close is called. It is meant to be run in its own goroutine.
func (d *Dealer) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-d.closed:
			return
		case <-ctx.Done():
			return
		default:
		}

		url, err := d.getURL(ctx)
		if err != nil {
			log.Printf("[dealer] resolve url: %v", err)
			if !d.sleepReconnect(ctx) {
				return
			}
			continue
		}

		if err := d.runConnection(ctx, url); err != nil {
			log.Printf("[dealer] connection ended: %v", err)
		}

		select {
		case <-d.closed:
			return
		case <-ctx.Done():
			return
		default:
		}
		if !d.sleepReconnect(ctx) {
			return
		}
	}
}

func (d *Dealer) sleepReconnect(ctx context.Context) bool {
	t := time.NewTimer(ReconnectInterval)
	defer t.Stop()
	select {
	case <-d.closed:
		return false
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// runConnection dials once and runs the send/receive task pair until
// either exits, tearing the connection down afterwards.
func (d *Dealer) runConnection(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return lyraerr.Wrap(lyraerr.Unavailable, "dial", err)
	}

	out := make(chan []byte, outboundQueueSize)
	d.mu.Lock()
	d.conn = conn
	d.out = out
	d.mu.Unlock()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- d.sendTask(connCtx, conn, out) }()
	go func() { errCh <- d.receiveTask(connCtx, conn, out) }()

	var first error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && first == nil {
			first = err
		}
		cancel() // the other task exiting tears down this connection too
	}

	d.mu.Lock()
	d.conn = nil
	d.out = nil
	d.mu.Unlock()
	_ = conn.Close()
	return first
}

// sendTask drains out into the socket until ctx is cancelled or out is
// closed; when the dealer is closed it writes a normal-closure close
// frame and exits.
func (d *Dealer) sendTask(ctx context.Context, conn *websocket.Conn, out <-chan []byte) error {
	for {
		select {
		case <-d.closed:
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case <-ctx.Done():
			return nil
		case frame, ok := <-out:
			if !ok {
				return nil
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return lyraerr.Wrap(lyraerr.Unavailable, "write", err)
			}
		}
	}
}

// receiveTask reads frames, dispatches them, and maintains the
// ping/pong heartbeat. Returning tears the connection down.
func (d *Dealer) receiveTask(ctx context.Context, conn *websocket.Conn, out chan<- []byte) error {
	pongCh := make(chan struct{}, 1)
	conn.SetPongHandler(func(string) error {
		select {
		case pongCh <- struct{}{}:
		default:
		}
		return nil
	})

	readErrCh := make(chan error, 1)
	frameCh := make(chan []byte, 16)
	go func() {
		defer close(frameCh)
		for {
			typ, data, err := conn.ReadMessage()
			if err != nil {
				readErrCh <- lyraerr.Wrap(lyraerr.Unavailable, "read", err)
				return
			}
			if typ != websocket.TextMessage {
				log.Printf("[dealer] dropping malformed (non-text) frame, type=%d", typ)
				continue
			}
			frameCh <- data
		}
	}()

	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.closed:
			return nil
		case <-ctx.Done():
			return nil
		case err := <-readErrCh:
			return err
		case data, ok := <-frameCh:
			if !ok {
				continue
			}
			d.dispatch(data, out)
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(PingTimeout)); err != nil {
				return lyraerr.Wrap(lyraerr.Unavailable, "ping", err)
			}
			select {
			case <-pongCh:
			case <-time.After(PingTimeout):
				return lyraerr.New(lyraerr.Unavailable, "pong timeout")
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (d *Dealer) dispatch(data []byte, out chan<- []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("[dealer] unparseable frame: %v", err)
		return
	}
	switch env.Type {
	case typeMessage:
		var m inboundMessage
		if err := json.Unmarshal(data, &m); err != nil {
			log.Printf("[dealer] unparseable message: %v", err)
			return
		}
		path, err := uri.Split(m.URI)
		if err != nil {
			log.Printf("[dealer] message with invalid uri %q: %v", m.URI, err)
			return
		}
		d.subs.Dispatch(path, Message{URI: m.URI, Payloads: m.Payloads, Headers: m.Headers})
	case typeRequest:
		var r inboundRequest
		if err := json.Unmarshal(data, &r); err != nil {
			log.Printf("[dealer] unparseable request: %v", err)
			return
		}
		path, err := uri.Split(r.MessageIdent)
		if err != nil {
			log.Printf("[dealer] request with invalid message_ident %q: %v", r.MessageIdent, err)
			return
		}
		v, ok := d.handlers.Get(path)
		resp := newResponder(r.Key, func(frame []byte) { enqueue(out, frame) })
		if !ok {
			resp.Drop()
			return
		}
		handler, _ := v.(Handler)
		d.invokeHandler(handler, Request{MessageIdent: r.MessageIdent, Key: r.Key, Payload: r.Payload, Headers: r.Headers}, resp)
	default:
		log.Printf("[dealer] unknown frame type %q", env.Type)
	}
}

// invokeHandler calls handler and guarantees Drop runs afterwards even if
// the handler panics, so the Responder-exactly-once invariant holds
// regardless of handler misbehavior.
func (d *Dealer) invokeHandler(handler Handler, req Request, resp *Responder) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[dealer] handler panicked: %v", r)
		}
		resp.Drop()
	}()
	handler(req, resp)
}

func enqueue(out chan<- []byte, frame []byte) {
	select {
	case out <- frame:
	default:
		log.Printf("[dealer] outbound queue full, dropping frame")
	}
}

// Close signals permanent shutdown and waits up to WebsocketCloseTimeout
// for the background tasks to exit.
func (d *Dealer) Close() error {
	d.closeOnce.Do(func() { close(d.closed) })
	select {
	case <-d.done:
		return nil
	case <-time.After(WebsocketCloseTimeout):
		return errors.New("dealer: close timed out")
	}
}
