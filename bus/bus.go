// bus.go
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

// Wildcards: "+" matches exactly one level, "#" matches zero or more
// trailing levels. Both only have meaning in subscription topics.
const (
	SingleLevel = "+"
	MultiLevel  = "#"
)

// Topic is a sequence of comparable tokens (strings or integers).
type Topic []any

// T builds a topic, panicking on tokens that cannot be map keys.
func T(tokens ...any) Topic {
	for _, tok := range tokens {
		switch tok.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64:
		default:
			panic("bus: topic token must be a string, bool or integer")
		}
	}
	return Topic(tokens)
}

func (t Topic) Len() int     { return len(t) }
func (t Topic) At(i int) any { return t[i] }

// Append returns a new topic with extra tokens after t.
func (t Topic) Append(tokens ...any) Topic {
	out := make(Topic, 0, len(t)+len(tokens))
	out = append(out, t...)
	return append(out, T(tokens...)...)
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection // owning connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// -----------------------------------------------------------------------------
// Tries: one for subscription patterns, one for retained messages
// -----------------------------------------------------------------------------

type subNode struct {
	children map[any]*subNode
	subs     []*Subscription
}

type retNode struct {
	children map[any]*retNode
	msg      *Message
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu       sync.Mutex
	subs     *subNode
	retained *retNode
	qLen     int
	seq      atomic.Uint32
}

// NewBus creates a new bus with the given subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8 // safe default
	}
	return &Bus{
		subs:     &subNode{},
		retained: &retNode{},
		qLen:     queueLen,
	}
}

// NewMessage builds a message; it does not publish it.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// Publish delivers a message to every matching subscriber. A retained
// message replaces the one stored for its topic; a retained nil payload
// clears it.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*Subscription
	matchSubs(b.subs, msg.Topic, &out)
	for _, sub := range out {
		deliver(sub.ch, msg)
	}

	if msg.Retained {
		b.storeRetained(msg)
	}
}

// deliver never blocks: when the queue is full the oldest message is dropped.
func deliver(ch chan *Message, msg *Message) {
	select {
	case ch <- msg:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- msg:
	default:
	}
}

func matchSubs(n *subNode, topic Topic, out *[]*Subscription) {
	if c := n.children[MultiLevel]; c != nil {
		*out = append(*out, c.subs...)
	}
	if len(topic) == 0 {
		*out = append(*out, n.subs...)
		return
	}
	tok := topic[0]
	if c := n.children[tok]; c != nil {
		matchSubs(c, topic[1:], out)
	}
	if tok != SingleLevel {
		if c := n.children[SingleLevel]; c != nil {
			matchSubs(c, topic[1:], out)
		}
	}
}

func (b *Bus) storeRetained(msg *Message) {
	n := b.retained
	path := make([]*retNode, 0, len(msg.Topic)+1)
	path = append(path, n)
	for _, tok := range msg.Topic {
		c := n.children[tok]
		if c == nil {
			if msg.Payload == nil {
				return // nothing stored here
			}
			if n.children == nil {
				n.children = make(map[any]*retNode)
			}
			c = &retNode{}
			n.children[tok] = c
		}
		n = c
		path = append(path, n)
	}
	if msg.Payload != nil {
		n.msg = msg
		return
	}
	n.msg = nil
	// Prune empty nodes.
	for i := len(msg.Topic) - 1; i >= 0; i-- {
		child := path[i+1]
		if child.msg != nil || len(child.children) > 0 {
			break
		}
		delete(path[i].children, msg.Topic[i])
	}
}

func collectRetained(n *retNode, pattern Topic, out *[]*Message) {
	if len(pattern) == 0 {
		if n.msg != nil {
			*out = append(*out, n.msg)
		}
		return
	}
	switch pattern[0] {
	case MultiLevel:
		collectAll(n, out)
	case SingleLevel:
		for _, c := range n.children {
			collectRetained(c, pattern[1:], out)
		}
	default:
		if c := n.children[pattern[0]]; c != nil {
			collectRetained(c, pattern[1:], out)
		}
	}
}

func collectAll(n *retNode, out *[]*Message) {
	if n.msg != nil {
		*out = append(*out, n.msg)
	}
	for _, c := range n.children {
		collectAll(c, out)
	}
}

// addSubscription inserts a subscription and hands it any retained
// messages its pattern matches.
func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.subs
	for _, tok := range sub.topic {
		if n.children == nil {
			n.children = make(map[any]*subNode)
		}
		c, ok := n.children[tok]
		if !ok {
			c = &subNode{}
			n.children[tok] = c
		}
		n = c
	}
	n.subs = append(n.subs, sub)

	var ret []*Message
	collectRetained(b.retained, sub.topic, &ret)
	for _, m := range ret {
		select {
		case sub.ch <- m:
		default:
		}
	}
}

// removeSubscription reports whether sub was found.
func (b *Bus) removeSubscription(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.subs
	stack := make([]*subNode, 0, len(sub.topic))
	for _, tok := range sub.topic {
		c, ok := n.children[tok]
		if !ok {
			return false
		}
		stack = append(stack, n)
		n = c
	}

	found := false
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			found = true
			break
		}
	}

	// Prune empty nodes.
	for i := len(sub.topic) - 1; i >= 0; i-- {
		parent := stack[i]
		child := parent.children[sub.topic[i]]
		if len(child.subs) > 0 || len(child.children) > 0 {
			break
		}
		delete(parent.children, sub.topic[i])
	}
	return found
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

// ErrNoReply is returned by RequestWait when the reply subscription closes.
var ErrNoReply = errors.New("no_reply")

type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

// NewConnection creates a new connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe registers a subscription owned by this connection.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.addSubscription(sub)
	return sub
}

// Unsubscribe removes a subscription and closes its channel. Repeated calls
// are harmless.
func (c *Connection) Unsubscribe(sub *Subscription) {
	owned := false
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			owned = true
			break
		}
	}
	c.mu.Unlock()
	if !owned {
		return
	}
	c.bus.removeSubscription(sub)
	close(sub.ch)
}

// Disconnect closes all subscriptions and clears them.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.removeSubscription(sub)
		close(sub.ch)
	}
}

// Request publishes msg with a private ReplyTo topic (unless one is set)
// and returns the subscription replies arrive on. The caller unsubscribes.
func (c *Connection) Request(msg *Message) *Subscription {
	if len(msg.ReplyTo) == 0 {
		msg.ReplyTo = T("_reply", c.id, c.bus.seq.Add(1))
	}
	sub := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return sub
}

// RequestWait sends a request and blocks for the first reply or ctx end.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m, ok := <-sub.ch:
		if !ok {
			return nil, ErrNoReply
		}
		return m, nil
	}
}

// Reply answers a request on its ReplyTo topic. It reports false when the
// request carried no ReplyTo.
func (c *Connection) Reply(req *Message, payload any, retained bool) bool {
	if len(req.ReplyTo) == 0 {
		return false
	}
	c.Publish(&Message{Topic: req.ReplyTo, Payload: payload, Retained: retained})
	return true
}
