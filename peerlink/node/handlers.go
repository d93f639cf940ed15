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

func (n *Node) handle(msg protocol.Message) {
	if err := msg.Validate(); err != nil {
		n.drop(msg, err)
		return
	}
	if !msg.To.Is(n.self) {
		n.drop(msg, ErrMisrouted)
		return
	}

	ctx := context.Background()
	var err error
	switch msg.Type {
	case protocol.MessageTypeConnectionRequest:
		err = n.receiveConnectionRequest(msg)
	case protocol.MessageTypeApproval:
		err = n.receiveApproval(ctx, msg)
	case protocol.MessageTypeFinalize:
		err = n.receiveFinalize(msg)
	case protocol.MessageTypeTerminate:
		err = n.receiveTerminate(msg)
	case protocol.MessageTypeProxyRequest:
		err = n.handleProxyRequest(ctx, msg)
	case protocol.MessageTypeProxyKeyShare:
		err = n.receiveProxyKeyShare(ctx, msg)
	case protocol.MessageTypeApplicationMessage:
		err = n.receiveMessage(msg)
	default:
		err = ErrUnexpectedMessage
	}
	if err != nil {
		n.drop(msg, err)
	}
}

func (n *Node) drop(msg protocol.Message, err error) {
	n.log.Warn("dropped message",
		zap.Stringer("type", msg.Type),
		zap.Stringer("peer", msg.From),
		zap.Error(err))
	n.emit(Event{Kind: EventDropped, Peer: msg.From, Message: msg.Type, Secret: msg.Secret, Err: err})
}

func (n *Node) receiveConnectionRequest(msg protocol.Message) error {
	now := n.clock.Now()
	entry := handshake.Entry{Peer: msg.From, Secret: msg.Secret, Deadline: n.deadline(now)}

	switch kind := msg.Kind().(type) {
	case protocol.Direct:
		if !n.cfg.Policy.AllowDirectRequest {
			return fmt.Errorf("%w: direct request", ErrPolicyBlocked)
		}
	case protocol.Indirect:
		if !n.cfg.Policy.AllowIndirectRequest {
			return fmt.Errorf("%w: indirect request", ErrPolicyBlocked)
		}
		cred := kind.Credential
		g, err := n.grants.Lookup(grant.Triple{Handler: cred.Handler, Requester: msg.From.ID, Receiver: n.self.ID})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidGrant, err)
		}
		if g.PastDeadline(now) {
			g.Expire()
		}
		if err := g.Verify(cred.Handler, msg.From.ID, n.self.ID, cred.Key); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidGrant, err)
		}
		g.Expire()
		entry.Proxy = identity.Identity{ID: cred.Handler}
		n.emit(Event{Kind: EventGrantConsumed, Peer: msg.From, Grant: g.Clone()})
	default:
		return ErrUnexpectedMessage
	}

	n.state.PutReceived(entry)
	n.log.Info("received connection request",
		zap.Stringer("peer", msg.From),
		zap.Bool("proxied", !entry.Direct()))
	n.emit(Event{Kind: EventRequestReceived, Peer: msg.From, Secret: msg.Secret})
	return nil
}

func (n *Node) receiveApproval(ctx context.Context, msg protocol.Message) error {
	now := n.clock.Now()
	e, err := n.state.TakeSent(msg.From.ID, msg.Secret, now)
	if err != nil {
		return fmt.Errorf("invalid approval: %w", err)
	}
	if e.Peer.Name == "" {
		e.Peer.Name = msg.From.Name
	}
	e.Deadline = n.deadline(now)
	n.state.PutAwaiting(e)
	n.emit(Event{Kind: EventApprovalReceived, Peer: e.Peer, Secret: e.Secret})
	return n.finalize(ctx, e.Peer)
}

func (n *Node) receiveFinalize(msg protocol.Message) error {
	e, err := n.state.TakeAwaitingMatching(msg.From.ID, msg.Secret, n.clock.Now())
	if err != nil {
		return fmt.Errorf("invalid finalize: %w", err)
	}
	n.state.Commit(e)
	n.log.Info("connection established", zap.Stringer("peer", e.Peer), zap.Stringer("secret", e.Secret))
	n.emit(Event{Kind: EventEstablished, Peer: e.Peer, Secret: e.Secret})
	return nil
}

func (n *Node) receiveTerminate(msg protocol.Message) error {
	e, err := n.state.RemoveConnectionMatching(msg.From.ID, msg.Secret)
	if err != nil {
		return fmt.Errorf("invalid terminate: %w", err)
	}
	n.log.Info("connection terminated by peer", zap.Stringer("peer", e.Peer))
	n.emit(Event{Kind: EventTerminateReceived, Peer: e.Peer, Secret: e.Secret})
	return nil
}

func (n *Node) receiveMessage(msg protocol.Message) error {
	e, ok := n.state.Connection(msg.From.ID)
	if !ok {
		return ErrNoConnection
	}
	if n.cfg.VerifyMessageSecret && e.Secret != msg.Secret {
		return fmt.Errorf("message: %w", ErrSecretMismatch)
	}
	n.log.Debug("received message", zap.Stringer("peer", e.Peer), zap.Int("bytes", len(msg.Payload)))
	n.emit(Event{Kind: EventMessageReceived, Peer: e.Peer, Secret: e.Secret, Payload: msg.Payload})
	return nil
}

// handleProxyRequest runs on the intermediary: mint a grant for exactly
// (self, requester, receiver) and share it with both, receiver first.
func (n *Node) handleProxyRequest(ctx context.Context, msg protocol.Message) error {
	if !n.cfg.Policy.AllowProxyRequests {
		return fmt.Errorf("%w: proxy request", ErrPolicyBlocked)
	}
	requester, receiver := msg.From, msg.Peer
	if requester.Is(receiver) || requester.Is(n.self) || receiver.Is(n.self) {
		return fmt.Errorf("%w: cannot introduce %s to %s", ErrInvalidGrant, requester, receiver)
	}
	g, err := grant.Issue(n.self.ID, requester.ID, receiver.ID, n.clock.Now(), n.cfg.GrantTTL)
	if err != nil {
		return err
	}
	n.grants.Put(g)
	n.log.Info("issued proxy grant",
		zap.Stringer("grant", g.ID),
		zap.Stringer("requester", requester),
		zap.Stringer("receiver", receiver))
	n.emit(Event{Kind: EventGrantIssued, Peer: requester, Grant: g.Clone()})

	_ = n.send(ctx, protocol.NewProxyKeyShare(n.self, receiver, requester, g))
	_ = n.send(ctx, protocol.NewProxyKeyShare(n.self, requester, receiver, g))
	return nil
}

// receiveProxyKeyShare files a grant copy. On the requester it releases the indirect request
// that was waiting for it. A grant already on file is never replaced by a copy of itself, so a
// consumed grant cannot be re-armed by sharing it again.
func (n *Node) receiveProxyKeyShare(ctx context.Context, msg protocol.Message) error {
	g := msg.Grant.Clone()
	if g.Handler != msg.From.ID {
		return fmt.Errorf("%w: grant not issued by sender", ErrInvalidGrant)
	}
	switch n.self.ID {
	case g.Requester:
		if g.Receiver != msg.Peer.ID {
			return fmt.Errorf("%w: grant names another receiver", ErrInvalidGrant)
		}
	case g.Receiver:
		if g.Requester != msg.Peer.ID {
			return fmt.Errorf("%w: grant names another requester", ErrInvalidGrant)
		}
	default:
		return fmt.Errorf("%w: grant does not name this node", ErrInvalidGrant)
	}
	now := n.clock.Now()
	if g.Expired || g.PastDeadline(now) {
		return fmt.Errorf("%w: %w", ErrInvalidGrant, grant.ErrGrantExpired)
	}

	if held, err := n.grants.Lookup(g.Triple()); err == nil && held.ID == g.ID {
		return fmt.Errorf("%w: grant %s already held", ErrInvalidGrant, g.ID)
	}
	n.grants.Put(g)
	n.log.Debug("received proxy grant", zap.Stringer("grant", g.ID), zap.Stringer("proxy", msg.From))
	n.emit(Event{Kind: EventGrantReceived, Peer: msg.From, Grant: g.Clone()})

	if n.self.ID != g.Requester {
		return nil
	}
	e, ok := n.state.Sent(msg.Peer.ID, now)
	if !ok || e.Emitted || e.Proxy.ID != g.Handler {
		return nil
	}
	if !g.IsValidFor(e.Proxy.ID, n.self.ID, e.Peer.ID) {
		return nil
	}
	n.state.MarkEmitted(e.Peer.ID, e.Secret)
	n.log.Debug("sending proxied request", zap.Stringer("peer", e.Peer), zap.Stringer("proxy", e.Proxy))
	n.emit(Event{Kind: EventRequestSent, Peer: e.Peer, Secret: e.Secret})
	_ = n.send(ctx, protocol.NewConnectionRequest(n.self, e.Peer, e.Secret, protocol.Indirect{Credential: g.Credential()}))
	return nil
}
