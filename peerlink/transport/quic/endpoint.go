package quic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/TheusHen/peerlink/peerlink/discovery"
	"github.com/TheusHen/peerlink/peerlink/identity"
	"github.com/TheusHen/peerlink/peerlink/protocol"
	"go.uber.org/zap"
)

var (
	ErrNotListening = errors.New("quic: endpoint is not listening")
	ErrClosed       = errors.New("quic: endpoint closed")
)

// Receiver accepts inbound messages without blocking. *node.Node satisfies it.
type Receiver interface {
	Deliver(msg protocol.Message) error
}

type Options struct {
	Logger *zap.Logger
	// DialTimeout bounds dialing plus the hello exchange.
	DialTimeout time.Duration
	// IdleTimeout closes connections without traffic. Keepalives run at a third of it.
	IdleTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		DialTimeout: 5 * time.Second,
		IdleTimeout: 2 * time.Minute,
	}
}

// Endpoint is a node.Sender over QUIC. Outbound sessions are cached per peer and redialed
// after any write error.
type Endpoint struct {
	kp       identity.KeyPair
	self     identity.Identity
	resolver discovery.Resolver
	opts     Options
	log      *zap.Logger

	mu       sync.Mutex
	ln       *Listener
	outbound map[identity.PeerID]*Session
	inbound  map[*Session]struct{}
	closed   bool

	wg sync.WaitGroup
}

func NewEndpoint(kp identity.KeyPair, name string, resolver discovery.Resolver, opts Options) *Endpoint {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	self := kp.Identity(name)
	return &Endpoint{
		kp:       kp,
		self:     self,
		resolver: resolver,
		opts:     opts,
		log:      opts.Logger.Named("quic").With(zap.Stringer("node", self)),
		outbound: make(map[identity.PeerID]*Session),
		inbound:  make(map[*Session]struct{}),
	}
}

func (e *Endpoint) Identity() identity.Identity { return e.self }

func (e *Endpoint) Listen(addr string) error {
	ln, err := Listen(addr, e.kp, e.opts.IdleTimeout)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		_ = ln.Close()
		return ErrClosed
	}
	e.ln = ln
	e.log.Info("listening", zap.String("addr", ln.AddrString()))
	return nil
}

func (e *Endpoint) ListenAddr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ln == nil {
		return ""
	}
	return e.ln.AddrString()
}

// Serve accepts connections until ctx ends or the endpoint closes, handing every verified
// message to r.
func (e *Endpoint) Serve(ctx context.Context, r Receiver) error {
	e.mu.Lock()
	ln := e.ln
	e.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || e.isClosed() {
				return nil
			}
			return err
		}
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			hctx, cancel := e.dialContext(ctx)
			sess, err := HandshakeServer(hctx, conn, e.kp, e.self.Name)
			cancel()
			if err != nil {
				e.log.Warn("inbound handshake failed", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
				_ = conn.CloseWithError(1, "handshake failed")
				return
			}
			e.readLoop(sess, r)
		}()
	}
}

func (e *Endpoint) readLoop(sess *Session, r Receiver) {
	if !e.track(sess) {
		_ = sess.Close("closed")
		return
	}
	defer e.untrack(sess)

	log := e.log.With(zap.Stringer("peer", sess.Remote()))
	log.Debug("inbound session")
	for {
		msg, err := sess.ReadMessage()
		if errors.Is(err, ErrSpoofedSender) {
			log.Warn("closing session", zap.Error(err))
			_ = sess.Close("spoofed sender")
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("inbound session ended", zap.Error(err))
			}
			return
		}
		if err := r.Deliver(msg); err != nil {
			log.Debug("receiver refused message", zap.Error(err))
			return
		}
	}
}

// Send implements node.Sender.
func (e *Endpoint) Send(ctx context.Context, msg protocol.Message) error {
	sess, err := e.session(ctx, msg.To.ID)
	if err != nil {
		return err
	}
	if err := sess.WriteMessage(msg); err != nil {
		e.forget(msg.To.ID, sess)
		_ = sess.Close("write failed")
		return fmt.Errorf("send %s to %s: %w", msg.Type, msg.To, err)
	}
	return nil
}

func (e *Endpoint) session(ctx context.Context, peer identity.PeerID) (*Session, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	if s, ok := e.outbound[peer]; ok {
		select {
		case <-s.Done():
			delete(e.outbound, peer)
		default:
			e.mu.Unlock()
			return s, nil
		}
	}
	e.mu.Unlock()

	info, err := e.resolver.Lookup(peer)
	if err != nil {
		return nil, err
	}
	dctx, cancel := e.dialContext(ctx)
	defer cancel()
	conn, err := Dial(dctx, info.String(), e.kp, e.opts.IdleTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", info, err)
	}
	sess, err := HandshakeClient(dctx, conn, e.kp, e.self.Name, peer)
	if err != nil {
		_ = conn.CloseWithError(1, "handshake failed")
		return nil, fmt.Errorf("handshake with %s: %w", info, err)
	}
	e.log.Debug("outbound session", zap.Stringer("peer", sess.Remote()), zap.Stringer("addr", info))

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		_ = sess.Close("closed")
		return nil, ErrClosed
	}
	if existing, ok := e.outbound[peer]; ok {
		_ = sess.Close("duplicate")
		return existing, nil
	}
	e.outbound[peer] = sess
	return sess, nil
}

func (e *Endpoint) dialContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.DialTimeout > 0 {
		return context.WithTimeout(ctx, e.opts.DialTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Endpoint) forget(peer identity.PeerID, sess *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.outbound[peer] == sess {
		delete(e.outbound, peer)
	}
}

func (e *Endpoint) track(sess *Session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.inbound[sess] = struct{}{}
	return true
}

func (e *Endpoint) untrack(sess *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inbound, sess)
}

func (e *Endpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close stops listening, closes every session and waits for inbound readers to exit.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	var err error
	if e.ln != nil {
		err = e.ln.Close()
	}
	for id, s := range e.outbound {
		_ = s.Close("shutdown")
		delete(e.outbound, id)
	}
	for s := range e.inbound {
		_ = s.Close("shutdown")
	}
	e.mu.Unlock()

	e.wg.Wait()
	return err
}
