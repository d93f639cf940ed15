package node

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Policy gates which request kinds a node accepts. It is fixed at construction.
type Policy struct {
	AllowDirectRequest   bool
	AllowIndirectRequest bool
	AllowProxyRequests   bool
}

// DefaultPolicy accepts everything.
func DefaultPolicy() Policy {
	return Policy{
		AllowDirectRequest:   true,
		AllowIndirectRequest: true,
		AllowProxyRequests:   true,
	}
}

// Config holds node behavior. Start from DefaultConfig; the zero value disables
// overwrite of pending requests and every timeout.
type Config struct {
	Policy Policy

	// PendingTimeout bounds how long sent, received and awaiting entries live. 0 = forever.
	PendingTimeout time.Duration
	// GrantTTL bounds the lifetime of issued grants. 0 = until consumed.
	GrantTTL time.Duration
	// SweepInterval is the period of the background expiry sweep. 0 = lazy expiry only.
	SweepInterval time.Duration
	// SendTimeout caps each hand-off to the Sender. 0 = caller context only.
	SendTimeout time.Duration

	// OverwritePending lets a second initiate to the same target replace the outstanding
	// secret. When false the second initiate fails with ErrPendingExists.
	OverwritePending bool
	// VerifyMessageSecret makes the receiver compare the secret carried by application
	// messages with its stored one, instead of only checking that a connection exists.
	VerifyMessageSecret bool

	Logger   *zap.Logger
	Clock    clock.Clock
	Observer Observer
}

func DefaultConfig() Config {
	return Config{
		Policy:           DefaultPolicy(),
		PendingTimeout:   2 * time.Minute,
		GrantTTL:         5 * time.Minute,
		SweepInterval:    30 * time.Second,
		SendTimeout:      10 * time.Second,
		OverwritePending: true,
	}
}

func (c Config) Validate() error {
	for name, d := range map[string]time.Duration{
		"pending timeout": c.PendingTimeout,
		"grant ttl":       c.GrantTTL,
		"sweep interval":  c.SweepInterval,
		"send timeout":    c.SendTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%w: negative %s %s", ErrInvalidConfig, name, d)
		}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}
