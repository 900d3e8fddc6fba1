package dealer

import (
	"log"
	"sync"
)

// Responder is the single-shot reply handle paired with one inbound
// Request. It guarantees exactly one reply is ever sent: if Send is
// called, that response goes out; if the Responder is Dropped without
// Send having been called, a synthetic {success:false} reply is emitted
// instead — unless Suppress was called,
// for the advanced case where the reply will be produced out of band.
type Responder struct {
	mu        sync.Mutex
	key       string
	enqueue   func(frame []byte)
	sent      bool
	suppress  bool
}

func newResponder(key string, enqueue func(frame []byte)) *Responder {
	return &Responder{key: key, enqueue: enqueue}
}

// Send emits response as the one reply for this request. It does nothing
// if a reply was already sent, suppressed, or produced by Drop.
func (r *Responder) Send(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent {
		return
	}
	r.sendLocked(success)
}

// Suppress marks this Responder as handled without producing a reply
// here; the implementer is responsible for having emitted (or arranging
// to emit) the reply some other way. Drop will then no-op.
func (r *Responder) Suppress() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = true
	r.suppress = true
}

// Drop finalises the Responder: if Send was never called and Suppress
// wasn't either, a synthetic failure reply is sent. Callers holding a
// Responder outside a dealer-invoked Handler should call this once
// they're done with it; handlers invoked
// synchronously by the dealer have Drop called for them automatically
// after the Handler func returns.
func (r *Responder) Drop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent || r.suppress {
		return
	}
	r.sendLocked(false)
}

func (r *Responder) sendLocked(success bool) {
	r.sent = true
	frame, err := newReplyFrame(r.key, success)
	if err != nil {
		log.Printf("[dealer] encode reply for %q: %v", r.key, err)
		return
	}
	r.enqueue(frame)
}
