package quic

import (
	"context"
	"testing"
	"time"

	"github.com/TheusHen/peerlink/peerlink/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeClientServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverKP, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	clientKP, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	ln, err := Listen("127.0.0.1:0", serverKP, time.Minute)
	require.NoError(t, err)
	defer ln.Close()

	addr := ln.AddrString()
	require.NotEmpty(t, addr)

	type result struct {
		sess *Session
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err != nil {
			done <- result{err: err}
			return
		}
		sess, err := HandshakeServer(ctx, conn, serverKP, "server")
		done <- result{sess: sess, err: err}
	}()

	conn, err := Dial(ctx, addr, clientKP, time.Minute)
	require.NoError(t, err)
	clientSess, err := HandshakeClient(ctx, conn, clientKP, "client", serverKP.PeerID())
	require.NoError(t, err)
	defer clientSess.Close("done")

	res := <-done
	require.NoError(t, res.err)
	defer res.sess.Close("done")

	assert.Equal(t, serverKP.PeerID(), clientSess.Remote().ID)
	assert.Equal(t, "server", clientSess.Remote().Name)
	assert.Equal(t, clientKP.PeerID(), res.sess.Remote().ID)
	assert.Equal(t, "client", res.sess.Remote().Name)
}

func TestHandshakeRejectsForeignCertificate(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverKP, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	clientKP, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	relayKP, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	ln, err := Listen("127.0.0.1:0", serverKP, time.Minute)
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err != nil {
			done <- err
			return
		}
		_, err = HandshakeServer(ctx, conn, serverKP, "server")
		if err != nil {
			_ = conn.CloseWithError(1, "handshake failed")
		}
		done <- err
	}()

	// TLS terminated with one key, hello signed with another
	conn, err := Dial(ctx, ln.AddrString(), relayKP, time.Minute)
	require.NoError(t, err)
	_, err = HandshakeClient(ctx, conn, clientKP, "client", serverKP.PeerID())
	require.Error(t, err)
	require.ErrorIs(t, <-done, ErrCertificateMismatch)
}
