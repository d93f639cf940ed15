package quic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TheusHen/peerlink/peerlink/identity"
	"github.com/TheusHen/peerlink/peerlink/protocol"
	q "github.com/quic-go/quic-go"
)

var (
	ErrHandshakeExpectedHello = errors.New("quic: handshake expected HELLO")
	ErrUnexpectedPeer         = errors.New("quic: remote proved a different identity")
	ErrSpoofedSender          = errors.New("quic: message sender does not match session")
	ErrCertificateMismatch    = errors.New("quic: hello identity does not match TLS certificate")
)

// Session is a QUIC connection bound to the identity proven in the remote hello.
type Session struct {
	conn    *q.Conn
	control *q.Stream
	local   identity.Identity
	remote  identity.Identity

	writeMu sync.Mutex
}

func (s *Session) Local() identity.Identity { return s.local }

func (s *Session) Remote() identity.Identity { return s.remote }

func (s *Session) Done() <-chan struct{} { return s.conn.Context().Done() }

// WriteMessage writes m as one frame on the control stream.
func (s *Session) WriteMessage(m protocol.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return protocol.WriteMessage(s.control, m)
}

// ReadMessage reads the next message and checks that it comes from the session's peer.
func (s *Session) ReadMessage() (protocol.Message, error) {
	m, err := protocol.ReadMessage(s.control)
	if err != nil {
		return protocol.Message{}, err
	}
	if !m.From.Is(s.remote) {
		return m, fmt.Errorf("%w: claims %s, proved %s", ErrSpoofedSender, m.From, s.remote)
	}
	if m.From.Name == "" {
		m.From.Name = s.remote.Name
	}
	return m, nil
}

func (s *Session) Close(reason string) error {
	return s.conn.CloseWithError(0, reason)
}

// tlsBinding returns the exported keying material hellos on conn sign over, and the PeerID
// the remote certificate names.
func tlsBinding(conn *q.Conn) ([]byte, identity.PeerID, error) {
	cs := conn.ConnectionState().TLS
	binding, err := channelBinding(cs)
	if err != nil {
		return nil, identity.PeerID{}, err
	}
	certID, err := peerIDFromState(cs)
	if err != nil {
		return nil, identity.PeerID{}, err
	}
	return binding, certID, nil
}

func writeHello(st *q.Stream, kp identity.KeyPair, name string, binding []byte) error {
	h, err := protocol.NewHello(kp, name)
	if err != nil {
		return err
	}
	if err := h.Sign(kp, binding); err != nil {
		return err
	}
	f, err := protocol.EncodeHello(h)
	if err != nil {
		return err
	}
	return protocol.WriteFrame(st, f)
}

// readHello reads the remote hello and checks it was signed for this connection by the key
// the TLS certificate carries.
func readHello(st *q.Stream, binding []byte, certID identity.PeerID) (protocol.Hello, error) {
	f, err := protocol.ReadFrame(st)
	if err != nil {
		return protocol.Hello{}, err
	}
	if f.Type != protocol.MessageTypeHello {
		return protocol.Hello{}, ErrHandshakeExpectedHello
	}
	h, err := protocol.DecodeHello(f)
	if err != nil {
		return protocol.Hello{}, err
	}
	if err := h.Verify(time.Now(), binding); err != nil {
		return protocol.Hello{}, err
	}
	if h.PeerID != certID {
		return protocol.Hello{}, fmt.Errorf("%w: hello %s, certificate %s", ErrCertificateMismatch, h.PeerID.Short(), certID.Short())
	}
	return h, nil
}

// HandshakeClient opens the control stream and runs the hello exchange as the dialer.
// expect, when non-zero, must match the identity the listener proves.
func HandshakeClient(ctx context.Context, conn *q.Conn, kp identity.KeyPair, name string, expect identity.PeerID) (*Session, error) {
	binding, certID, err := tlsBinding(conn)
	if err != nil {
		return nil, err
	}
	control, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = control.SetReadDeadline(deadline)
		defer control.SetReadDeadline(time.Time{})
	}
	if err := writeHello(control, kp, name, binding); err != nil {
		return nil, err
	}
	remote, err := readHello(control, binding, certID)
	if err != nil {
		return nil, err
	}
	if !expect.IsZero() && remote.PeerID != expect {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrUnexpectedPeer, expect.Short(), remote.PeerID.Short())
	}
	return &Session{conn: conn, control: control, local: kp.Identity(name), remote: remote.Identity()}, nil
}

// HandshakeServer accepts the dialer's control stream and answers its hello.
func HandshakeServer(ctx context.Context, conn *q.Conn, kp identity.KeyPair, name string) (*Session, error) {
	binding, certID, err := tlsBinding(conn)
	if err != nil {
		return nil, err
	}
	control, err := conn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = control.SetReadDeadline(deadline)
		defer control.SetReadDeadline(time.Time{})
	}
	remote, err := readHello(control, binding, certID)
	if err != nil {
		return nil, err
	}
	if err := writeHello(control, kp, name, binding); err != nil {
		return nil, err
	}
	return &Session{conn: conn, control: control, local: kp.Identity(name), remote: remote.Identity()}, nil
}
