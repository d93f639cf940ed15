package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/TheusHen/peerlink/peerlink/handshake"
	"github.com/TheusHen/peerlink/peerlink/identity"
	"github.com/TheusHen/peerlink/peerlink/transport/memory"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) observe(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last(kind EventKind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return Event{}, false
}

type testPeer struct {
	*Node
	id  identity.Identity
	rec *recorder
}

func startPeer(t *testing.T, net *memory.Network, name string, cfg Config) *testPeer {
	t.Helper()
	id := identityFor(t, name)
	rec := &recorder{}
	cfg.Observer = rec.observe
	n, err := New(id, net, cfg)
	require.NoError(t, err)
	require.NoError(t, net.Attach(id.ID, n))
	t.Cleanup(func() { _ = n.Close() })
	return &testPeer{Node: n, id: id, rec: rec}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SweepInterval = 0
	return cfg
}

func waitStage(t *testing.T, p *testPeer, peer identity.Identity, want handshake.Stage) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := p.Stage(context.Background(), peer.ID)
		return err == nil && st == want
	}, waitFor, tick, "%s never reached %s with %s", p.id, want, peer)
}

func waitEvent(t *testing.T, p *testPeer, kind EventKind) Event {
	t.Helper()
	require.Eventually(t, func() bool {
		return p.rec.count(kind) > 0
	}, waitFor, tick, "%s never emitted %s", p.id, kind)
	ev, _ := p.rec.last(kind)
	return ev
}

func snapshot(t *testing.T, p *testPeer) View {
	t.Helper()
	v, err := p.Snapshot(context.Background())
	require.NoError(t, err)
	return v
}

// connect runs a direct handshake from a to b to completion.
func connect(t *testing.T, a, b *testPeer) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.InitiateConnection(ctx, b.id))
	waitStage(t, b, a.id, handshake.StageReceived)
	require.NoError(t, b.ApproveConnection(ctx, a.id))
	waitStage(t, a, b.id, handshake.StageEstablished)
	waitStage(t, b, a.id, handshake.StageEstablished)
}

func identityFor(t *testing.T, name string) identity.Identity {
	t.Helper()
	id, _, err := identity.Generate(name)
	require.NoError(t, err)
	return id
}
