package peerlink

import (
	"context"
	"testing"
	"time"

	dmem "github.com/TheusHen/peerlink/peerlink/discovery/memory"
	"github.com/TheusHen/peerlink/peerlink/grant"
	"github.com/TheusHen/peerlink/peerlink/handshake"
	"github.com/TheusHen/peerlink/peerlink/identity"
	"github.com/TheusHen/peerlink/peerlink/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbox chan node.Event

func startPeer(t *testing.T, name string, resolver *dmem.Store) (*Peer, inbox) {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	events := make(inbox, 64)
	cfg := DefaultConfig(name)
	cfg.Node.Observer = func(ev node.Event) {
		select {
		case events <- ev:
		default:
		}
	}
	p, err := NewPeer(kp, resolver, cfg)
	require.NoError(t, err)
	require.NoError(t, p.Listen("127.0.0.1:0"))
	t.Cleanup(func() { _ = p.Close() })
	return p, events
}

func waitStage(t *testing.T, p *Peer, peer identity.Identity, want handshake.Stage) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := p.Stage(context.Background(), peer.ID)
		return err == nil && st == want
	}, 10*time.Second, 10*time.Millisecond)
}

func waitKind(t *testing.T, in inbox, kind node.EventKind) node.Event {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-in:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", kind)
			return node.Event{}
		}
	}
}

func TestPeersConnectOverQUIC(t *testing.T) {
	ctx := context.Background()
	resolver := dmem.New()
	a, _ := startPeer(t, "a", resolver)
	b, bEvents := startPeer(t, "b", resolver)

	require.NoError(t, a.InitiateConnection(ctx, b.Identity()))
	waitStage(t, b, a.Identity(), handshake.StageReceived)
	require.NoError(t, b.ApproveConnection(ctx, a.Identity()))
	waitStage(t, a, b.Identity(), handshake.StageEstablished)
	waitStage(t, b, a.Identity(), handshake.StageEstablished)

	va, err := a.Snapshot(ctx)
	require.NoError(t, err)
	vb, err := b.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, va.Connections[b.Identity().ID].Secret, vb.Connections[a.Identity().ID].Secret)

	require.NoError(t, a.SendMessage(ctx, b.Identity(), []byte("over quic")))
	ev := waitKind(t, bEvents, node.EventMessageReceived)
	assert.Equal(t, []byte("over quic"), ev.Payload)
	assert.Equal(t, "a", ev.Peer.Name)

	require.NoError(t, a.TerminateConnection(ctx, b.Identity()))
	waitStage(t, b, a.Identity(), handshake.StageIdle)
	require.ErrorIs(t, a.SendMessage(ctx, b.Identity(), []byte("late")), node.ErrNoConnection)
}

func TestProxiedIntroductionOverQUIC(t *testing.T) {
	ctx := context.Background()
	resolver := dmem.New()
	a, _ := startPeer(t, "a", resolver)
	b, _ := startPeer(t, "b", resolver)
	c, _ := startPeer(t, "c", resolver)

	require.NoError(t, a.InitiateProxiedConnection(ctx, c.Identity(), b.Identity()))
	waitStage(t, c, a.Identity(), handshake.StageReceived)
	require.NoError(t, c.ApproveConnection(ctx, a.Identity()))
	waitStage(t, a, c.Identity(), handshake.StageEstablished)
	waitStage(t, c, a.Identity(), handshake.StageEstablished)

	g, ok, err := c.Grant(ctx, grant.Triple{Handler: b.Identity().ID, Requester: a.Identity().ID, Receiver: c.Identity().ID})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, g.Expired)
}
