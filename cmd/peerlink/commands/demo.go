package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/TheusHen/peerlink/peerlink/grant"
	"github.com/TheusHen/peerlink/peerlink/handshake"
	"github.com/TheusHen/peerlink/peerlink/identity"
	"github.com/TheusHen/peerlink/peerlink/node"
	"github.com/TheusHen/peerlink/peerlink/protocol"
	"github.com/TheusHen/peerlink/peerlink/transport/memory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type scenario struct {
	name string
	run  func(ctx context.Context, c *cluster, out io.Writer) error
}

var scenarios = []scenario{
	{"direct handshake", runDirect},
	{"proxied handshake", runProxied},
	{"grant replay", runReplay},
	{"message without connection", runUnconnected},
	{"message after terminate", runTerminated},
}

func demoCmd() *cobra.Command {
	var (
		only    int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the handshake scenarios between in-process nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if only < 0 || only > len(scenarios) {
				return fmt.Errorf("scenario must be between 1 and %d", len(scenarios))
			}
			out := cmd.OutOrStdout()
			var failed int
			for i, sc := range scenarios {
				if only != 0 && only != i+1 {
					continue
				}
				fmt.Fprintf(out, "scenario %d: %s\n", i+1, sc.name)
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				c := newCluster(logger)
				err := sc.run(ctx, c, out)
				c.close()
				cancel()
				if err != nil {
					failed++
					fmt.Fprintf(out, "  FAIL: %v\n", err)
					continue
				}
				fmt.Fprintln(out, "  ok")
			}
			if failed > 0 {
				return fmt.Errorf("%d scenario(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&only, "scenario", 0, "run only this scenario (1-5)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-scenario timeout")
	return cmd
}

type cluster struct {
	net   *memory.Network
	log   *zap.Logger
	nodes []*node.Node

	// application messages delivered to any node
	received atomic.Int64
}

func newCluster(log *zap.Logger) *cluster {
	if log == nil {
		log = zap.NewNop()
	}
	return &cluster{net: memory.NewNetwork(memory.WithLogger(log)), log: log}
}

func (c *cluster) add(name string) (*node.Node, error) {
	id, _, err := identity.Generate(name)
	if err != nil {
		return nil, err
	}
	cfg := node.DefaultConfig()
	cfg.Logger = c.log
	cfg.Observer = func(ev node.Event) {
		if ev.Kind == node.EventMessageReceived {
			c.received.Add(1)
		}
	}
	n, err := node.New(id, c.net, cfg)
	if err != nil {
		return nil, err
	}
	if err := c.net.Attach(id.ID, n); err != nil {
		_ = n.Close()
		return nil, err
	}
	c.nodes = append(c.nodes, n)
	return n, nil
}

func (c *cluster) addAll(names ...string) ([]*node.Node, error) {
	out := make([]*node.Node, 0, len(names))
	for _, name := range names {
		n, err := c.add(name)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (c *cluster) close() {
	for _, n := range c.nodes {
		_ = n.Close()
	}
}

// await polls n until it reaches want with peer.
func await(ctx context.Context, n *node.Node, peer identity.Identity, want handshake.Stage) error {
	t := time.NewTicker(5 * time.Millisecond)
	defer t.Stop()
	for {
		st, err := n.Stage(ctx, peer.ID)
		if err != nil {
			return err
		}
		if st == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s stuck at %s with %s, want %s", n.Identity(), st, peer, want)
		case <-t.C:
		}
	}
}

func handshakeSecrets(ctx context.Context, a, b *node.Node) (protocol.Secret, error) {
	va, err := a.Snapshot(ctx)
	if err != nil {
		return protocol.Secret{}, err
	}
	vb, err := b.Snapshot(ctx)
	if err != nil {
		return protocol.Secret{}, err
	}
	ea, okA := va.Connections[b.Identity().ID]
	eb, okB := vb.Connections[a.Identity().ID]
	if !okA || !okB {
		return protocol.Secret{}, errors.New("connection missing on one side")
	}
	if ea.Secret != eb.Secret {
		return protocol.Secret{}, fmt.Errorf("secrets differ: %s vs %s", ea.Secret, eb.Secret)
	}
	if va.Pending(b.Identity().ID) || vb.Pending(a.Identity().ID) {
		return protocol.Secret{}, errors.New("pending state left behind")
	}
	return ea.Secret, nil
}

func connectDirect(ctx context.Context, a, b *node.Node) error {
	if err := a.InitiateConnection(ctx, b.Identity()); err != nil {
		return err
	}
	if err := await(ctx, b, a.Identity(), handshake.StageReceived); err != nil {
		return err
	}
	if err := b.ApproveConnection(ctx, a.Identity()); err != nil {
		return err
	}
	if err := await(ctx, a, b.Identity(), handshake.StageEstablished); err != nil {
		return err
	}
	return await(ctx, b, a.Identity(), handshake.StageEstablished)
}

func runDirect(ctx context.Context, c *cluster, out io.Writer) error {
	nodes, err := c.addAll("a", "b")
	if err != nil {
		return err
	}
	a, b := nodes[0], nodes[1]
	if err := connectDirect(ctx, a, b); err != nil {
		return err
	}
	secret, err := handshakeSecrets(ctx, a, b)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  %s <-> %s established, secret %s\n", a.Identity(), b.Identity(), secret)
	return nil
}

// introduce runs a proxied handshake a -> c through b and returns the three nodes.
func introduce(ctx context.Context, c *cluster, out io.Writer) (a, b, r *node.Node, err error) {
	nodes, err := c.addAll("a", "b", "c")
	if err != nil {
		return nil, nil, nil, err
	}
	a, b, r = nodes[0], nodes[1], nodes[2]

	if err := a.InitiateProxiedConnection(ctx, r.Identity(), b.Identity()); err != nil {
		return nil, nil, nil, err
	}
	if err := await(ctx, r, a.Identity(), handshake.StageReceived); err != nil {
		return nil, nil, nil, err
	}
	g, ok, err := r.Grant(ctx, grant.Triple{Handler: b.Identity().ID, Requester: a.Identity().ID, Receiver: r.Identity().ID})
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok || !g.Expired {
		return nil, nil, nil, errors.New("receiver did not consume the grant on accept")
	}
	fmt.Fprintf(out, "  %s consumed %s\n", r.Identity(), g.ID)

	if err := r.ApproveConnection(ctx, a.Identity()); err != nil {
		return nil, nil, nil, err
	}
	if err := await(ctx, a, r.Identity(), handshake.StageEstablished); err != nil {
		return nil, nil, nil, err
	}
	if err := await(ctx, r, a.Identity(), handshake.StageEstablished); err != nil {
		return nil, nil, nil, err
	}
	secret, err := handshakeSecrets(ctx, a, r)
	if err != nil {
		return nil, nil, nil, err
	}
	if secret.String() == g.ID.String() {
		return nil, nil, nil, errors.New("connection secret equals grant id")
	}
	fmt.Fprintf(out, "  %s <-> %s established via %s, secret %s\n", a.Identity(), r.Identity(), b.Identity(), secret)
	return a, b, r, nil
}

func runProxied(ctx context.Context, c *cluster, out io.Writer) error {
	_, _, _, err := introduce(ctx, c, out)
	return err
}

func runReplay(ctx context.Context, c *cluster, out io.Writer) error {
	a, b, r, err := introduce(ctx, c, out)
	if err != nil {
		return err
	}
	g, ok, err := a.Grant(ctx, grant.Triple{Handler: b.Identity().ID, Requester: a.Identity().ID, Receiver: r.Identity().ID})
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("requester holds no grant copy")
	}

	replay := protocol.NewConnectionRequest(a.Identity(), r.Identity(), protocol.NewSecret(), protocol.Indirect{Credential: g.Credential()})
	if err := c.net.Inject(replay); err != nil {
		return err
	}
	// the snapshot is queued behind the replayed request
	v, err := r.Snapshot(ctx)
	if err != nil {
		return err
	}
	if _, ok := v.PendingReceived[a.Identity().ID]; ok {
		return errors.New("replayed grant created a pending request")
	}
	fmt.Fprintf(out, "  replay of %s refused\n", g.ID)
	return nil
}

func runUnconnected(ctx context.Context, c *cluster, out io.Writer) error {
	nodes, err := c.addAll("a", "b")
	if err != nil {
		return err
	}
	a, b := nodes[0], nodes[1]
	err = a.SendMessage(ctx, b.Identity(), []byte("hello"))
	if !errors.Is(err, node.ErrNoConnection) {
		return fmt.Errorf("expected %v, got %v", node.ErrNoConnection, err)
	}
	// b's mailbox is drained up to here once the snapshot returns
	if _, err := b.Snapshot(ctx); err != nil {
		return err
	}
	if n := c.received.Load(); n != 0 {
		return fmt.Errorf("%s received %d message(s) without a connection", b.Identity(), n)
	}
	fmt.Fprintf(out, "  blocked: %v\n", err)
	return nil
}

func runTerminated(ctx context.Context, c *cluster, out io.Writer) error {
	nodes, err := c.addAll("a", "b")
	if err != nil {
		return err
	}
	a, b := nodes[0], nodes[1]
	if err := connectDirect(ctx, a, b); err != nil {
		return err
	}
	if err := a.SendMessage(ctx, b.Identity(), []byte("hello")); err != nil {
		return err
	}
	if err := a.TerminateConnection(ctx, b.Identity()); err != nil {
		return err
	}
	if err := await(ctx, b, a.Identity(), handshake.StageIdle); err != nil {
		return err
	}
	err = a.SendMessage(ctx, b.Identity(), []byte("again"))
	if !errors.Is(err, node.ErrNoConnection) {
		return fmt.Errorf("expected %v, got %v", node.ErrNoConnection, err)
	}
	fmt.Fprintf(out, "  blocked after terminate: %v\n", err)
	return nil
}
