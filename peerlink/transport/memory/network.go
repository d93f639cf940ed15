// Package memory is an in-process channel between nodes. Every message goes through the
// same frame codec as the network transports, so what arrives is what a wire would carry.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/TheusHen/peerlink/peerlink/identity"
	"github.com/TheusHen/peerlink/peerlink/protocol"
	"go.uber.org/zap"
)

var (
	ErrUnknownPeer = errors.New("memory: unknown peer")
	ErrDuplicate   = errors.New("memory: peer already attached")
)

// Receiver accepts inbound messages without blocking. *node.Node satisfies it.
type Receiver interface {
	Deliver(msg protocol.Message) error
}

// Tap sees every message after it is encoded and decoded, before delivery.
// Returning false drops the message.
type Tap func(msg protocol.Message) bool

type Option func(*Network)

func WithLogger(l *zap.Logger) Option {
	return func(n *Network) { n.log = l }
}

func WithTap(t Tap) Option {
	return func(n *Network) { n.tap = t }
}

// Network routes messages by PeerID. Delivery to a receiver is ordered per sender
// because Send hands the message over synchronously.
type Network struct {
	mu    sync.RWMutex
	peers map[identity.PeerID]Receiver
	log   *zap.Logger
	tap   Tap
}

func NewNetwork(opts ...Option) *Network {
	n := &Network{
		peers: make(map[identity.PeerID]Receiver),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.log = n.log.Named("memory")
	return n
}

func (n *Network) Attach(id identity.PeerID, r Receiver) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.peers[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, id.Short())
	}
	n.peers[id] = r
	return nil
}

func (n *Network) Detach(id identity.PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.peers, id)
}

// Send implements node.Sender.
func (n *Network) Send(ctx context.Context, msg protocol.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	decoded, err := protocol.DecodeMessage(frame)
	if err != nil {
		return err
	}

	n.mu.RLock()
	r, ok := n.peers[decoded.To.ID]
	tap := n.tap
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, decoded.To)
	}
	if tap != nil && !tap(decoded) {
		n.log.Debug("message dropped by tap", zap.Stringer("msg", decoded))
		return nil
	}
	n.log.Debug("deliver", zap.Stringer("msg", decoded), zap.Int("bytes", len(frame.Payload)))
	return r.Deliver(decoded)
}

// Inject puts a hand-built message on the network, as if msg.From had sent it.
func (n *Network) Inject(msg protocol.Message) error {
	return n.Send(context.Background(), msg)
}
