// Package node runs the connection-establishment protocol for one peer.
//
// A Node owns its handshake tables and grant table and mutates them only on its own loop
// goroutine. Public operations and inbound messages are queued to that loop, so two
// messages for the same node never interleave. Operations return once the local step is
// done; they never wait for a peer's reply.
package node

import (
	"context"
	"sync"
	"time"

	"github.com/TheusHen/peerlink/peerlink/grant"
	"github.com/TheusHen/peerlink/peerlink/handshake"
	"github.com/TheusHen/peerlink/peerlink/identity"
	"github.com/TheusHen/peerlink/peerlink/protocol"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Sender hands protocol messages to the channel that delivers them to msg.To.
// The channel is expected to be reliable and ordered per sender.
type Sender interface {
	Send(ctx context.Context, msg protocol.Message) error
}

type Node struct {
	self   identity.Identity
	cfg    Config
	log    *zap.Logger
	clock  clock.Clock
	sender Sender

	// owned by the loop goroutine
	state  *handshake.State
	grants *grant.Table

	inbox     *mailbox
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New starts a node for self that emits through sender.
func New(self identity.Identity, sender Sender, cfg Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	n := &Node{
		self:   self,
		cfg:    cfg,
		log:    cfg.Logger.Named("node").With(zap.Stringer("node", self)),
		clock:  cfg.Clock,
		sender: sender,
		state:  handshake.NewState(),
		grants: grant.NewTable(),
		inbox:  newMailbox(),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go n.run()
	return n, nil
}

func (n *Node) Identity() identity.Identity { return n.self }

func (n *Node) Policy() Policy { return n.cfg.Policy }

// Close stops the loop. Queued work that has not run is discarded.
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		close(n.quit)
	})
	<-n.done
	return nil
}

// Deliver queues an inbound message. Transports call it; it never blocks.
func (n *Node) Deliver(msg protocol.Message) error {
	select {
	case <-n.quit:
		return ErrNodeClosed
	default:
	}
	n.inbox.push(func() { n.handle(msg) })
	return nil
}

func (n *Node) run() {
	defer close(n.done)

	var tick <-chan time.Time
	if n.cfg.SweepInterval > 0 {
		t := n.clock.Ticker(n.cfg.SweepInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-n.quit:
			return
		case <-n.inbox.ready:
			for {
				job, ok := n.inbox.pop()
				if !ok {
					break
				}
				job()
			}
		case <-tick:
			n.sweep()
		}
	}
}

// do runs fn on the loop and waits for its result.
func (n *Node) do(ctx context.Context, fn func() error) error {
	select {
	case <-n.quit:
		return ErrNodeClosed
	default:
	}
	reply := make(chan error, 1)
	n.inbox.push(func() { reply <- fn() })
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-n.done:
		return ErrNodeClosed
	}
}

func (n *Node) emit(ev Event) {
	if n.cfg.Observer == nil {
		return
	}
	ev.At = n.clock.Now()
	ev.Node = n.self
	n.cfg.Observer(ev)
}

// send hands msg to the channel. Failures are logged and reported as events; the
// protocol never retries.
func (n *Node) send(ctx context.Context, msg protocol.Message) error {
	if n.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.cfg.SendTimeout)
		defer cancel()
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		n.log.Warn("send failed",
			zap.Stringer("type", msg.Type),
			zap.Stringer("peer", msg.To),
			zap.Error(err))
		n.emit(Event{Kind: EventSendFailed, Peer: msg.To, Message: msg.Type, Secret: msg.Secret, Err: err})
		return err
	}
	return nil
}

func (n *Node) deadline(now time.Time) time.Time {
	if n.cfg.PendingTimeout <= 0 {
		return time.Time{}
	}
	return now.Add(n.cfg.PendingTimeout)
}

func (n *Node) sweep() {
	now := n.clock.Now()
	for _, l := range n.state.Expire(now) {
		n.log.Info("pending entry expired",
			zap.Stringer("table", l.Table),
			zap.Stringer("peer", l.Entry.Peer))
		n.emit(Event{Kind: EventPendingExpired, Peer: l.Entry.Peer, Secret: l.Entry.Secret, Table: l.Table})
	}
	for _, g := range n.grants.Cleanup(now) {
		n.log.Info("grant expired", zap.Stringer("grant", g.ID))
		n.emit(Event{Kind: EventGrantExpired, Grant: g})
	}
	n.log.Debug("swept", zap.Int("grants", n.grants.Count()))
}

// Sweep drops every pending entry and grant whose deadline has passed.
func (n *Node) Sweep(ctx context.Context) error {
	return n.do(ctx, func() error {
		n.sweep()
		return nil
	})
}

// View is a copy of one node's local tables. It says nothing about the peer's view.
type View struct {
	handshake.View
	Grants map[grant.Triple]grant.ProxyGrant
}

func (n *Node) Snapshot(ctx context.Context) (View, error) {
	var v View
	err := n.do(ctx, func() error {
		v = View{View: n.state.View(), Grants: n.grants.Snapshot()}
		return nil
	})
	return v, err
}

// Stage reports where this node stands with peer.
func (n *Node) Stage(ctx context.Context, peer identity.PeerID) (handshake.Stage, error) {
	var st handshake.Stage
	err := n.do(ctx, func() error {
		st = n.state.Stage(peer, n.clock.Now())
		return nil
	})
	return st, err
}

// Grant returns a copy of the grant this node issued or holds for tr.
func (n *Node) Grant(ctx context.Context, tr grant.Triple) (grant.ProxyGrant, bool, error) {
	var (
		g  grant.ProxyGrant
		ok bool
	)
	err := n.do(ctx, func() error {
		found, err := n.grants.Lookup(tr)
		if err == nil {
			g, ok = *found, true
		}
		return nil
	})
	return g, ok, err
}
