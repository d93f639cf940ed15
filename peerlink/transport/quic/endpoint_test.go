package quic

import (
	"context"
	"testing"
	"time"

	"github.com/TheusHen/peerlink/peerlink/discovery"
	dmem "github.com/TheusHen/peerlink/peerlink/discovery/memory"
	"github.com/TheusHen/peerlink/peerlink/identity"
	"github.com/TheusHen/peerlink/peerlink/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanReceiver chan protocol.Message

func (c chanReceiver) Deliver(msg protocol.Message) error {
	c <- msg
	return nil
}

type endpointUnderTest struct {
	*Endpoint
	kp  identity.KeyPair
	in  chanReceiver
	err chan error
}

func startEndpoint(t *testing.T, name string, resolver *dmem.Store) *endpointUnderTest {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	ep := NewEndpoint(kp, name, resolver, DefaultOptions())
	require.NoError(t, ep.Listen("127.0.0.1:0"))
	info, err := discovery.FromAddrPort(ep.Identity(), ep.ListenAddr())
	require.NoError(t, err)
	require.NoError(t, resolver.Announce(info))

	eut := &endpointUnderTest{Endpoint: ep, kp: kp, in: make(chanReceiver, 16), err: make(chan error, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { eut.err <- ep.Serve(ctx, eut.in) }()
	t.Cleanup(func() {
		cancel()
		_ = ep.Close()
	})
	return eut
}

func receive(t *testing.T, in chanReceiver) protocol.Message {
	t.Helper()
	select {
	case m := <-in:
		return m
	case <-time.After(5 * time.Second):
		t.Fatalf("no message received")
		return protocol.Message{}
	}
}

func TestEndpointDeliversInOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resolver := dmem.New()
	a := startEndpoint(t, "a", resolver)
	b := startEndpoint(t, "b", resolver)

	secret := protocol.NewSecret()
	require.NoError(t, a.Send(ctx, protocol.NewConnectionRequest(a.Identity(), b.Identity(), secret, protocol.Direct{})))
	require.NoError(t, a.Send(ctx, protocol.NewApplicationMessage(a.Identity(), b.Identity(), secret, []byte("one"))))
	require.NoError(t, a.Send(ctx, protocol.NewApplicationMessage(a.Identity(), b.Identity(), secret, []byte("two"))))

	first := receive(t, b.in)
	assert.Equal(t, protocol.MessageTypeConnectionRequest, first.Type)
	assert.True(t, first.From.Is(a.Identity()))
	assert.Equal(t, "a", first.From.Name)
	assert.Equal(t, []byte("one"), receive(t, b.in).Payload)
	assert.Equal(t, []byte("two"), receive(t, b.in).Payload)

	// reverse direction dials its own connection
	require.NoError(t, b.Send(ctx, protocol.NewApproval(b.Identity(), a.Identity(), secret)))
	back := receive(t, a.in)
	assert.Equal(t, protocol.MessageTypeApproval, back.Type)
	assert.Equal(t, secret, back.Secret)
}

func TestEndpointDropsSpoofedSender(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resolver := dmem.New()
	a := startEndpoint(t, "a", resolver)
	b := startEndpoint(t, "b", resolver)
	c := startEndpoint(t, "c", resolver)

	require.NoError(t, a.Send(ctx, protocol.NewFinalize(c.Identity(), b.Identity(), protocol.NewSecret())))
	select {
	case m := <-b.in:
		t.Fatalf("spoofed message delivered: %s", m)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestEndpointRejectsWrongIdentity(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resolver := dmem.New()
	a := startEndpoint(t, "a", resolver)
	b := startEndpoint(t, "b", resolver)

	// announce an impostor id at b's address
	impostor, _, err := identity.Generate("impostor")
	require.NoError(t, err)
	info, err := discovery.FromAddrPort(impostor, b.ListenAddr())
	require.NoError(t, err)
	require.NoError(t, resolver.Announce(info))

	err = a.Send(ctx, protocol.NewFinalize(a.Identity(), impostor, protocol.NewSecret()))
	require.ErrorIs(t, err, ErrUnexpectedPeer)
}

func TestEndpointUnknownPeer(t *testing.T) {
	resolver := dmem.New()
	a := startEndpoint(t, "a", resolver)
	ghost, _, err := identity.Generate("ghost")
	require.NoError(t, err)

	err = a.Send(context.Background(), protocol.NewFinalize(a.Identity(), ghost, protocol.NewSecret()))
	require.ErrorIs(t, err, discovery.ErrNotFound)
}

func TestEndpointClosed(t *testing.T) {
	resolver := dmem.New()
	a := startEndpoint(t, "a", resolver)
	b := startEndpoint(t, "b", resolver)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	err := a.Send(context.Background(), protocol.NewFinalize(a.Identity(), b.Identity(), protocol.NewSecret()))
	require.ErrorIs(t, err, ErrClosed)

	select {
	case err := <-a.err:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after Close")
	}
}

func TestServeWithoutListen(t *testing.T) {
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	ep := NewEndpoint(kp, "x", dmem.New(), DefaultOptions())
	require.ErrorIs(t, ep.Serve(context.Background(), make(chanReceiver)), ErrNotListening)
}
