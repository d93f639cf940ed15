package peerlink

import (
	"context"
	"errors"
	"sync"

	"github.com/TheusHen/peerlink/peerlink/discovery"
	"github.com/TheusHen/peerlink/peerlink/identity"
	"github.com/TheusHen/peerlink/peerlink/node"
	"github.com/TheusHen/peerlink/peerlink/transport/quic"
	"go.uber.org/zap"
)

var ErrNotListening = errors.New("peer is not listening")

type Config struct {
	Name      string
	Node      node.Config
	Transport quic.Options
}

func DefaultConfig(name string) Config {
	return Config{
		Name:      name,
		Node:      node.DefaultConfig(),
		Transport: quic.DefaultOptions(),
	}
}

// Peer is a node wired to a QUIC endpoint. Connection operations come from the embedded
// node; the resolver maps peer ids to the addresses messages are dialed at.
type Peer struct {
	*node.Node

	kp       identity.KeyPair
	resolver discovery.Resolver
	endpoint *quic.Endpoint
	log      *zap.Logger

	cancel  context.CancelFunc
	serving sync.WaitGroup
}

func NewPeer(kp identity.KeyPair, resolver discovery.Resolver, cfg Config) (*Peer, error) {
	if cfg.Node.Logger == nil {
		cfg.Node.Logger = zap.NewNop()
	}
	if cfg.Transport.Logger == nil {
		cfg.Transport.Logger = cfg.Node.Logger
	}
	ep := quic.NewEndpoint(kp, cfg.Name, resolver, cfg.Transport)
	n, err := node.New(ep.Identity(), ep, cfg.Node)
	if err != nil {
		return nil, err
	}
	return &Peer{
		Node:     n,
		kp:       kp,
		resolver: resolver,
		endpoint: ep,
		log:      cfg.Node.Logger.With(zap.Stringer("node", ep.Identity())),
	}, nil
}

// Listen binds addr, announces it and starts delivering inbound messages to the node.
func (p *Peer) Listen(addr string) error {
	if err := p.endpoint.Listen(addr); err != nil {
		return err
	}
	info, err := discovery.FromAddrPort(p.Identity(), p.endpoint.ListenAddr())
	if err != nil {
		return err
	}
	if err := p.resolver.Announce(info); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.serving.Add(1)
	go func() {
		defer p.serving.Done()
		if err := p.endpoint.Serve(ctx, p.Node); err != nil {
			p.log.Error("serve stopped", zap.Error(err))
		}
	}()
	return nil
}

func (p *Peer) ListenAddr() string {
	return p.endpoint.ListenAddr()
}

func (p *Peer) KeyPair() identity.KeyPair { return p.kp }

// Close stops the transport first so nothing is delivered to a stopped node.
func (p *Peer) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	err := p.endpoint.Close()
	p.serving.Wait()
	return errors.Join(err, p.Node.Close())
}
