// Package quic carries protocol messages between peers over QUIC.
//
// Each peer dials its counterpart for outbound traffic and keeps the connection. Both ends
// present a certificate for their node key. The dialer opens one control stream, both sides
// exchange hellos signed over the connection's exported keying material, and then the dialer
// writes message frames on it in order. The listening side binds every message it reads to
// the identity the dialer proved in its hello.
package quic

import (
	"context"
	"net"
	"time"

	"github.com/TheusHen/peerlink/peerlink/identity"
	q "github.com/quic-go/quic-go"
)

type Listener struct {
	inner *q.Listener
}

func quicConfig(idle time.Duration) *q.Config {
	return &q.Config{
		MaxIdleTimeout:  idle,
		KeepAlivePeriod: idle / 3,
	}
}

// Listen accepts QUIC connections presenting a certificate for kp.
func Listen(addr string, kp identity.KeyPair, idle time.Duration) (*Listener, error) {
	tlsConf, err := NewServerTLSConfig(kp)
	if err != nil {
		return nil, err
	}
	ln, err := q.ListenAddr(addr, tlsConf, quicConfig(idle))
	if err != nil {
		return nil, err
	}
	return &Listener{inner: ln}, nil
}

func (l *Listener) Accept(ctx context.Context) (*q.Conn, error) {
	return l.inner.Accept(ctx)
}

func (l *Listener) Addr() net.Addr { return l.inner.Addr() }

func (l *Listener) AddrString() string {
	if l.inner == nil {
		return ""
	}
	return l.inner.Addr().String()
}

func (l *Listener) Close() error { return l.inner.Close() }

func Dial(ctx context.Context, addr string, kp identity.KeyPair, idle time.Duration) (*q.Conn, error) {
	tlsConf, err := NewClientTLSConfig(kp)
	if err != nil {
		return nil, err
	}
	return q.DialAddr(ctx, addr, tlsConf, quicConfig(idle))
}
