package node

import (
	"context"
	"fmt"

	"github.com/TheusHen/peerlink/peerlink/grant"
	"github.com/TheusHen/peerlink/peerlink/handshake"
	"github.com/TheusHen/peerlink/peerlink/identity"
	"github.com/TheusHen/peerlink/peerlink/protocol"
	"go.uber.org/zap"
)

// InitiateConnection sends a direct connection request to target under a fresh secret.
// Delivery failures are reported through events only.
func (n *Node) InitiateConnection(ctx context.Context, target identity.Identity) error {
	return n.do(ctx, func() error {
		return n.initiate(ctx, target, identity.Identity{})
	})
}

// InitiateProxiedConnection asks proxy to vouch for an introduction to target. The request
// itself leaves once the proxy's grant arrives.
func (n *Node) InitiateProxiedConnection(ctx context.Context, target, proxy identity.Identity) error {
	return n.do(ctx, func() error {
		if proxy.IsZero() {
			return fmt.Errorf("%w: missing proxy", ErrInvalidGrant)
		}
		return n.initiate(ctx, target, proxy)
	})
}

func (n *Node) initiate(ctx context.Context, target, proxy identity.Identity) error {
	if target.Is(n.self) || proxy.Is(n.self) {
		return ErrSelfConnection
	}
	now := n.clock.Now()
	if prev, ok := n.state.Sent(target.ID, now); ok {
		if !n.cfg.OverwritePending {
			return fmt.Errorf("%w: to %s", ErrPendingExists, target)
		}
		n.log.Warn("overwriting outstanding request", zap.Stringer("peer", target))
		n.emit(Event{Kind: EventSecretOverwritten, Peer: target, Secret: prev.Secret})
	}

	entry := handshake.Entry{
		Peer:     target,
		Secret:   protocol.NewSecret(),
		Deadline: n.deadline(now),
		Proxy:    proxy,
		Emitted:  proxy.IsZero(),
	}
	n.state.PutSent(entry)

	if entry.Direct() {
		n.log.Debug("sending direct request", zap.Stringer("peer", target))
		n.emit(Event{Kind: EventRequestSent, Peer: target, Secret: entry.Secret})
		_ = n.send(ctx, protocol.NewConnectionRequest(n.self, target, entry.Secret, protocol.Direct{}))
		return nil
	}

	n.log.Debug("asking proxy for introduction", zap.Stringer("peer", target), zap.Stringer("proxy", proxy))
	n.emit(Event{Kind: EventProxyRequested, Peer: proxy, Secret: entry.Secret})
	_ = n.send(ctx, protocol.NewProxyRequest(n.self, proxy, target))
	return nil
}

// ApproveConnection accepts the pending request from requester and answers it.
func (n *Node) ApproveConnection(ctx context.Context, requester identity.Identity) error {
	return n.do(ctx, func() error {
		now := n.clock.Now()
		e, err := n.state.TakeReceived(requester.ID, now)
		if err != nil {
			return fmt.Errorf("approve %s: %w", requester, err)
		}
		e.Deadline = n.deadline(now)
		n.state.PutAwaiting(e)
		n.consumeGrant(e)

		n.log.Info("approved request", zap.Stringer("peer", e.Peer))
		n.emit(Event{Kind: EventApproved, Peer: e.Peer, Secret: e.Secret})
		_ = n.send(ctx, protocol.NewApproval(n.self, e.Peer, e.Secret))
		return nil
	})
}

// RejectConnection discards the pending request from requester. The requester is not told.
func (n *Node) RejectConnection(ctx context.Context, requester identity.Identity) error {
	return n.do(ctx, func() error {
		e, err := n.state.TakeReceived(requester.ID, n.clock.Now())
		if err != nil {
			return fmt.Errorf("reject %s: %w", requester, err)
		}
		n.consumeGrant(e)
		n.log.Info("rejected request", zap.Stringer("peer", e.Peer))
		n.emit(Event{Kind: EventRejected, Peer: e.Peer, Secret: e.Secret})
		return nil
	})
}

// CancelConnection forgets the outstanding request to target without telling it. A proxied
// attempt also drops the grant copy it would have presented.
func (n *Node) CancelConnection(ctx context.Context, target identity.Identity) error {
	return n.do(ctx, func() error {
		e, ok := n.state.DeleteSent(target.ID)
		if !ok {
			return fmt.Errorf("cancel %s: %w", target, ErrNoPendingState)
		}
		if !e.Direct() {
			n.grants.Revoke(grant.Triple{Handler: e.Proxy.ID, Requester: n.self.ID, Receiver: e.Peer.ID})
		}
		n.log.Info("canceled request", zap.Stringer("peer", e.Peer))
		n.emit(Event{Kind: EventCanceled, Peer: e.Peer, Secret: e.Secret})
		return nil
	})
}

// FinalizeConnection commits the attempt with target that awaits finalization and
// confirms it to target. Receiving an approval runs it automatically.
func (n *Node) FinalizeConnection(ctx context.Context, target identity.Identity) error {
	return n.do(ctx, func() error {
		return n.finalize(ctx, target)
	})
}

func (n *Node) finalize(ctx context.Context, target identity.Identity) error {
	e, err := n.state.TakeAwaiting(target.ID, n.clock.Now())
	if err != nil {
		return fmt.Errorf("finalize %s: %w", target, err)
	}
	n.state.Commit(e)
	n.log.Info("connection established", zap.Stringer("peer", e.Peer), zap.Stringer("secret", e.Secret))
	n.emit(Event{Kind: EventFinalized, Peer: e.Peer, Secret: e.Secret})
	_ = n.send(ctx, protocol.NewFinalize(n.self, e.Peer, e.Secret))
	return nil
}

// TerminateConnection tells target the connection is over and drops it locally
// regardless of what target does with the message.
func (n *Node) TerminateConnection(ctx context.Context, target identity.Identity) error {
	return n.do(ctx, func() error {
		e, ok := n.state.RemoveConnection(target.ID)
		if !ok {
			return fmt.Errorf("terminate %s: %w", target, ErrNoConnection)
		}
		n.log.Info("terminating connection", zap.Stringer("peer", e.Peer))
		_ = n.send(ctx, protocol.NewTerminate(n.self, e.Peer, e.Secret))
		n.emit(Event{Kind: EventTerminated, Peer: e.Peer, Secret: e.Secret})
		return nil
	})
}

// SendMessage delivers payload to a connected peer. Unlike the handshake operations it
// returns the channel's error.
func (n *Node) SendMessage(ctx context.Context, peer identity.Identity, payload []byte) error {
	return n.do(ctx, func() error {
		e, ok := n.state.Connection(peer.ID)
		if !ok {
			n.log.Warn("message blocked, not connected", zap.Stringer("peer", peer))
			n.emit(Event{Kind: EventMessageBlocked, Peer: peer, Err: ErrNoConnection})
			return fmt.Errorf("send to %s: %w", peer, ErrNoConnection)
		}
		if err := n.send(ctx, protocol.NewApplicationMessage(n.self, e.Peer, e.Secret, payload)); err != nil {
			return err
		}
		n.emit(Event{Kind: EventMessageSent, Peer: e.Peer, Secret: e.Secret})
		return nil
	})
}

// consumeGrant expires the grant that authorized e, if e came through a proxy.
func (n *Node) consumeGrant(e handshake.Entry) {
	if e.Direct() {
		return
	}
	tr := grant.Triple{Handler: e.Proxy.ID, Requester: e.Peer.ID, Receiver: n.self.ID}
	if n.grants.Expire(tr) {
		g, err := n.grants.Lookup(tr)
		if err == nil {
			n.emit(Event{Kind: EventGrantConsumed, Peer: e.Peer, Grant: g.Clone()})
		}
	}
}
