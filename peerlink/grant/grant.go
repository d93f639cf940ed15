package grant

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/TheusHen/peerlink/peerlink/crypto"
	"github.com/TheusHen/peerlink/peerlink/identity"
	"github.com/google/uuid"
)

var (
	ErrGrantNotFound = errors.New("grant: not found")
	ErrGrantExpired  = errors.New("grant: expired")
	ErrGrantMismatch = errors.New("grant: triple mismatch")
	ErrKeyMismatch   = errors.New("grant: key mismatch")
	ErrInvalidKey    = errors.New("grant: invalid key encoding")
)

// Key is the secret part of a grant. Holders compare it in constant time.
type Key [crypto.GrantKeySize]byte

func (k Key) Equal(other Key) bool {
	return subtle.ConstantTimeCompare(k[:], other[:]) == 1
}

func (k Key) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(k[:])), nil
}

func (k *Key) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil || len(b) != len(k) {
		return ErrInvalidKey
	}
	copy(k[:], b)
	return nil
}

// ProxyGrant is a single-use credential minted by Handler authorizing exactly one
// introduction of Requester to Receiver. Each holder keeps its own copy and expires it locally.
type ProxyGrant struct {
	ID        uuid.UUID       `json:"id"`
	Handler   identity.PeerID `json:"handler"`
	Requester identity.PeerID `json:"requester"`
	Receiver  identity.PeerID `json:"receiver"`
	Key       Key             `json:"key"`
	Expired   bool            `json:"expired"`
	IssuedAt  int64           `json:"issued_at"`
	ExpiresAt int64           `json:"expires_at,omitempty"` // unix seconds, 0 = no deadline
}

// Issue mints a grant for the triple. ttl <= 0 leaves it without a deadline.
func Issue(handler, requester, receiver identity.PeerID, now time.Time, ttl time.Duration) (*ProxyGrant, error) {
	nonce := make([]byte, crypto.GrantNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	key, err := crypto.DeriveGrantKey(nonce, handler, requester, receiver)
	if err != nil {
		return nil, err
	}
	g := &ProxyGrant{
		ID:        uuid.New(),
		Handler:   handler,
		Requester: requester,
		Receiver:  receiver,
		Key:       key,
		IssuedAt:  now.Unix(),
	}
	if ttl > 0 {
		g.ExpiresAt = now.Add(ttl).Unix()
	}
	return g, nil
}

// Expire marks the grant consumed. It never becomes valid again.
func (g *ProxyGrant) Expire() {
	g.Expired = true
}

// IsValidFor reports whether the grant is unexpired and was minted for exactly this triple.
func (g *ProxyGrant) IsValidFor(handler, requester, receiver identity.PeerID) bool {
	return !g.Expired &&
		g.Handler == handler &&
		g.Requester == requester &&
		g.Receiver == receiver
}

// Verify is IsValidFor plus the key check, with the reason for a refusal.
func (g *ProxyGrant) Verify(handler, requester, receiver identity.PeerID, key Key) error {
	if g.Expired {
		return ErrGrantExpired
	}
	if !g.IsValidFor(handler, requester, receiver) {
		return ErrGrantMismatch
	}
	if !g.Key.Equal(key) {
		return ErrKeyMismatch
	}
	return nil
}

// PastDeadline reports whether the grant's lifetime ran out at now.
func (g *ProxyGrant) PastDeadline(now time.Time) bool {
	return g.ExpiresAt != 0 && now.Unix() > g.ExpiresAt
}

// Credential is what the requester presents to the receiver: who vouched, and the key.
func (g *ProxyGrant) Credential() Credential {
	return Credential{Handler: g.Handler, Key: g.Key}
}

func (g *ProxyGrant) Clone() *ProxyGrant {
	c := *g
	return &c
}

func (g *ProxyGrant) String() string {
	return fmt.Sprintf("grant %s handler=%s requester=%s receiver=%s expired=%t",
		g.ID, g.Handler.Short(), g.Requester.Short(), g.Receiver.Short(), g.Expired)
}

// Credential identifies a grant on the wire.
type Credential struct {
	Handler identity.PeerID `json:"handler"`
	Key     Key             `json:"key"`
}
