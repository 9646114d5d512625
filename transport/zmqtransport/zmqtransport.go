//go:build zmq

// Package zmqtransport implements transport.Transport over ZeroMQ
// PUB/SUB sockets, for running the cluster across real processes or
// machines instead of chantransport's in-process channels, wiring
// github.com/pebbe/zmq4 sockets for a multi-host benchmark mode.
//
// This package is only compiled in under the "zmq" build tag: it
// requires the libzmq shared library on the build host, so it cannot be
// the only transport the module offers. chantransport is the
// always-built default.
package zmqtransport

import (
	"fmt"
	"sync"

	zmq "github.com/pebbe/zmq4"

	"github.com/minutemodem/eparl/message"
	"github.com/minutemodem/eparl/transport"
	"github.com/minutemodem/eparl/types"
)

// ZMQ addresses every peer by a fixed tcp:// endpoint known up front.
// Every outbound message is published with a one-byte
// destination header; every peer subscribes to its own replica id and to
// the broadcast marker, so a single PUB socket per replica serves both
// Send and Broadcast.
const broadcastDest = byte(0xff)

// ZMQ is a transport.Transport backed by one ZeroMQ PUB socket (outbound)
// and one SUB socket per peer (inbound).
type ZMQ struct {
	self  types.ReplicaID
	pub   *zmq.Socket
	subs  []*zmq.Socket
	addrs []string

	mu      sync.RWMutex
	handler transport.Handler

	closeOnce sync.Once
	done      chan struct{}
}

// New binds a PUB socket at addrs[self] and connects a SUB socket to
// every other address in addrs.
func New(self types.ReplicaID, addrs []string) (*ZMQ, error) {
	if int(self) >= len(addrs) {
		return nil, fmt.Errorf("zmqtransport: replica %d out of range for %d addresses", self, len(addrs))
	}

	pub, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, fmt.Errorf("zmqtransport: new pub socket: %w", err)
	}
	if err := pub.Bind(addrs[self]); err != nil {
		return nil, fmt.Errorf("zmqtransport: bind %s: %w", addrs[self], err)
	}

	z := &ZMQ{
		self:  self,
		pub:   pub,
		addrs: addrs,
		subs:  make([]*zmq.Socket, len(addrs)),
		done:  make(chan struct{}),
	}

	for i, addr := range addrs {
		if types.ReplicaID(i) == self {
			continue
		}
		sub, err := zmq.NewSocket(zmq.SUB)
		if err != nil {
			z.Close()
			return nil, fmt.Errorf("zmqtransport: new sub socket: %w", err)
		}
		if err := sub.Connect(addr); err != nil {
			z.Close()
			return nil, fmt.Errorf("zmqtransport: connect %s: %w", addr, err)
		}
		// SetSubscribe matches a raw byte-prefix against the first frame
		// publish() sends, so the filter must be built from the literal
		// destination byte, not string(x) (Go's rune-to-UTF-8 conversion,
		// which re-encodes any value >= 0x80 into two or more bytes).
		if err := sub.SetSubscribe(string([]byte{byte(self)})); err != nil {
			z.Close()
			return nil, fmt.Errorf("zmqtransport: subscribe: %w", err)
		}
		if err := sub.SetSubscribe(string([]byte{broadcastDest})); err != nil {
			z.Close()
			return nil, fmt.Errorf("zmqtransport: subscribe broadcast: %w", err)
		}
		z.subs[i] = sub
		go z.recvLoop(types.ReplicaID(i), sub)
	}

	return z, nil
}

func (z *ZMQ) recvLoop(peer types.ReplicaID, sub *zmq.Socket) {
	for {
		frames, err := sub.RecvMessageBytes(0)
		select {
		case <-z.done:
			return
		default:
		}
		if err != nil || len(frames) != 2 {
			continue
		}
		msg, err := message.Decode(frames[1])
		if err != nil {
			continue
		}
		z.mu.RLock()
		h := z.handler
		z.mu.RUnlock()
		if h != nil {
			h(peer, msg)
		}
	}
}

func (z *ZMQ) publish(dest byte, msg message.Message) {
	data, err := message.Encode(msg)
	if err != nil {
		return
	}
	z.pub.SendBytes([]byte{dest}, zmq.SNDMORE)
	z.pub.SendBytes(data, 0)
}

func (z *ZMQ) Self() types.ReplicaID { return z.self }

func (z *ZMQ) Send(to types.ReplicaID, msg message.Message) {
	if int(to) >= len(z.addrs) {
		return
	}
	if to == z.self {
		z.deliverLocal(msg)
		return
	}
	z.publish(byte(to), msg)
}

func (z *ZMQ) Broadcast(msg message.Message) {
	// A PUB socket never loops back to its own SUB sockets, so self's
	// copy is delivered in-process, and the wire copy only needs to
	// reach the other replicas.
	z.deliverLocal(msg)
	z.publish(broadcastDest, msg)
}

func (z *ZMQ) deliverLocal(msg message.Message) {
	z.mu.RLock()
	h := z.handler
	z.mu.RUnlock()
	if h != nil {
		h(z.self, msg)
	}
}

func (z *ZMQ) RegisterHandler(h transport.Handler) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.handler = h
}

func (z *ZMQ) Close() error {
	z.closeOnce.Do(func() {
		close(z.done)
		z.pub.Close()
		for _, sub := range z.subs {
			if sub != nil {
				sub.Close()
			}
		}
	})
	return nil
}
