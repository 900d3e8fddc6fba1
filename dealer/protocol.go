package dealer

import "encoding/json"

// frameType discriminates the dealer's JSON envelope, mirroring the
// "type" field on every frame described in spec §4.2.
type frameType string

const (
	typeMessage frameType = "message"
	typeRequest frameType = "request"
	typeReply   frameType = "reply"
)

// envelope is the outermost shape every inbound frame is first decoded
// into, just enough to read "type" and branch.
type envelope struct {
	Type frameType `json:"type"`
}

// Message is a server-pushed payload delivered to subscribers of its URI.
type Message struct {
	URI      string            `json:"uri"`
	Payloads []string          `json:"payloads,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// inboundMessage is the wire shape of a "message" frame.
type inboundMessage struct {
	Type     frameType         `json:"type"`
	URI      string            `json:"uri"`
	Payloads []string          `json:"payloads,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// Request is a server-initiated RPC delivered to a registered handler.
type Request struct {
	MessageIdent string            `json:"message_ident"`
	Key          string            `json:"key"`
	Payload      json.RawMessage   `json:"payload,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// inboundRequest is the wire shape of a "request" frame.
type inboundRequest struct {
	Type         frameType         `json:"type"`
	Key          string            `json:"key"`
	MessageIdent string            `json:"message_ident"`
	Payload      json.RawMessage   `json:"payload,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// replyPayload is the body of an outbound reply frame.
type replyPayload struct {
	Success bool `json:"success"`
}

// outboundReply is the wire shape of a reply frame sent back for a Request.
type outboundReply struct {
	Type    frameType    `json:"type"`
	Key     string       `json:"key"`
	Payload replyPayload `json:"payload"`
}

func newReplyFrame(key string, success bool) ([]byte, error) {
	return json.Marshal(outboundReply{
		Type:    typeReply,
		Key:     key,
		Payload: replyPayload{Success: success},
	})
}

// Handler processes an inbound Request and uses the Responder to reply.
// The dealer calls Responder.Drop as soon as the Handler returns, so a
// Handler that has not called Send (or Suppress) by then produces a
// {success:false} reply, and a later Send — for example from a goroutine
// the Handler started — is ignored. Responder guarantees exactly one
// reply is ever emitted for a given Request.
type Handler func(req Request, resp *Responder)

// Subscription is the consumer-facing handle returned by Subscribe: a
// receive-only stream of messages matching the subscribed URIs.
type Subscription struct {
	ch <-chan Message
}

// C returns the channel of delivered messages. The Dealer never closes
// it, including on Close.
func (s *Subscription) C() <-chan Message { return s.ch }
