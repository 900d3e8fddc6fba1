package uri

import (
	"sync"

	"lyra/lyraerr"
)

// node is one level of the path trie. children is keyed by path
// component; handler/channels live at whichever node matches a full
// inserted path.
type node struct {
	children map[string]*node
	handler  any // set for HandlerMap nodes
	hasValue bool
	channels []chan any // set for SubscriberMap nodes
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

func (n *node) child(part string) *node {
	c, ok := n.children[part]
	if !ok {
		c = newNode()
		n.children[part] = c
	}
	return c
}

// HandlerMap is a prefix tree with at most one handler per exact path,
// used by the dealer to register request handlers. Lookups return the
// handler at the longest matching prefix. All operations are guarded by a
// single short-lived lock; the lock is never held across a suspension
// point (callers invoke the handler themselves, after Get returns).
type HandlerMap struct {
	mu   sync.Mutex
	root *node
}

// NewHandlerMap returns an empty HandlerMap.
func NewHandlerMap() *HandlerMap {
	return &HandlerMap{root: newNode()}
}

// Insert registers handler at path. Returns AlreadyHandled if a handler
// already exists at that exact path. path must be non-empty.
func (m *HandlerMap) Insert(path []string, handler any) error {
	if len(path) == 0 {
		return lyraerr.New(lyraerr.InvalidArgument, "empty path")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.root
	for _, part := range path {
		n = n.child(part)
	}
	if n.hasValue {
		return lyraerr.New(lyraerr.AlreadyHandled, "handler already registered")
	}
	n.handler = handler
	n.hasValue = true
	return nil
}

// Get returns the handler at the deepest ancestor of path that has one,
// or (nil, false) if no ancestor does.
func (m *HandlerMap) Get(path []string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.root
	var best any
	var found bool
	if n.hasValue {
		best, found = n.handler, true
	}
	for _, part := range path {
		c, ok := n.children[part]
		if !ok {
			break
		}
		n = c
		if n.hasValue {
			best, found = n.handler, true
		}
	}
	return best, found
}

// Remove deletes the handler at the exact path and returns the prior
// value, if any.
func (m *HandlerMap) Remove(path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.root
	for _, part := range path {
		c, ok := n.children[part]
		if !ok {
			return nil, false
		}
		n = c
	}
	if !n.hasValue {
		return nil, false
	}
	prev := n.handler
	n.handler = nil
	n.hasValue = false
	return prev, true
}

// SubscriberMap is the message-delivery counterpart of HandlerMap: each
// node carries a set of delivery channels rather than a single handler,
// and dispatch visits every node on the matched prefix chain (not just
// the deepest), delivering to every channel found along the way.
type SubscriberMap struct {
	mu   sync.Mutex
	root *node
}

// NewSubscriberMap returns an empty SubscriberMap.
func NewSubscriberMap() *SubscriberMap {
	return &SubscriberMap{root: newNode()}
}

// Insert appends ch to the channel list at path.
func (m *SubscriberMap) Insert(path []string, ch chan any) error {
	if len(path) == 0 {
		return lyraerr.New(lyraerr.InvalidArgument, "empty path")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.root
	for _, part := range path {
		n = n.child(part)
	}
	n.channels = append(n.channels, ch)
	return nil
}

// Dispatch visits every node on path's matched prefix chain and attempts
// to deliver msg to each registered channel non-blockingly. A channel
// whose send would block is treated as not promptly draining and is
// dropped from the map (no backpressure on the inbound queue, per the
// dealer's failure semantics).
func (m *SubscriberMap) Dispatch(path []string, msg any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.root
	m.deliverAndPrune(n, msg)
	for _, part := range path {
		c, ok := n.children[part]
		if !ok {
			return
		}
		n = c
		m.deliverAndPrune(n, msg)
	}
}

func (m *SubscriberMap) deliverAndPrune(n *node, msg any) {
	if len(n.channels) == 0 {
		return
	}
	kept := n.channels[:0]
	for _, ch := range n.channels {
		if trySend(ch, msg) {
			kept = append(kept, ch)
		}
	}
	n.channels = kept
}

// trySend attempts a non-blocking send, returning false — meaning the
// caller should prune this channel from the map — when the receive side
// either isn't draining promptly (buffer full) or has been closed.
func trySend(ch chan any, msg any) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false // send on closed channel
		}
	}()
	select {
	case ch <- msg:
		return true
	default:
		return false // full buffer: not draining promptly
	}
}

// Retain visits every node on path's matched prefix chain and drops
// channels for which pred returns false, pruning nodes left with none.
func (m *SubscriberMap) Retain(path []string, pred func(chan any) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.root
	nodes := []*node{n}
	for _, part := range path {
		c, ok := n.children[part]
		if !ok {
			break
		}
		n = c
		nodes = append(nodes, n)
	}
	for _, nd := range nodes {
		if len(nd.channels) == 0 {
			continue
		}
		kept := nd.channels[:0]
		for _, ch := range nd.channels {
			if pred(ch) {
				kept = append(kept, ch)
			}
		}
		nd.channels = kept
	}
	for i := len(nodes) - 1; i >= 1; i-- {
		nd := nodes[i]
		if len(nd.channels) == 0 && len(nd.children) == 0 && !nd.hasValue {
			delete(nodes[i-1].children, path[i-1])
		}
	}
}
