// Package chantransport implements transport.Transport over in-process Go
// channels. It is the default transport: used by every unit and
// integration test, and by the `eparl sim` CLI subcommand, before a
// caller opts into a real network transport such as zmqtransport.
package chantransport

import (
	"sync"

	"github.com/minutemodem/eparl/message"
	"github.com/minutemodem/eparl/transport"
	"github.com/minutemodem/eparl/types"
)

const inboxSize = 1024

type envelope struct {
	from types.ReplicaID
	msg  message.Message
}

// Chan is one replica's end of an in-process cluster transport.
type Chan struct {
	self  types.ReplicaID
	peers []chan envelope

	mu      sync.RWMutex
	handler transport.Handler

	closeOnce sync.Once
	done      chan struct{}
}

// NewCluster builds n interconnected Chan transports, one per replica in
// [0, n).
func NewCluster(n int) []*Chan {
	inboxes := make([]chan envelope, n)
	for i := range inboxes {
		inboxes[i] = make(chan envelope, inboxSize)
	}

	out := make([]*Chan, n)
	for i := range out {
		c := &Chan{
			self:  types.ReplicaID(i),
			peers: inboxes,
			done:  make(chan struct{}),
		}
		out[i] = c
		go c.loop(inboxes[i])
	}
	return out
}

func (c *Chan) loop(inbox chan envelope) {
	for {
		select {
		case e := <-inbox:
			c.mu.RLock()
			h := c.handler
			c.mu.RUnlock()
			if h != nil {
				h(e.from, e.msg)
			}
		case <-c.done:
			return
		}
	}
}

func (c *Chan) Self() types.ReplicaID { return c.self }

// Send is fire-and-forget: a full inbox drops the message, modeling
// message loss rather than blocking the sender.
func (c *Chan) Send(to types.ReplicaID, msg message.Message) {
	if int(to) >= len(c.peers) {
		return
	}
	select {
	case c.peers[to] <- envelope{from: c.self, msg: msg}:
	default:
	}
}

func (c *Chan) Broadcast(msg message.Message) {
	for i := range c.peers {
		c.Send(types.ReplicaID(i), msg)
	}
}

func (c *Chan) RegisterHandler(h transport.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *Chan) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
