package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
)

var (
	ErrInvalidPublicKey  = errors.New("identity: invalid Ed25519 public key size")
	ErrInvalidPrivateKey = errors.New("identity: invalid Ed25519 private key size")
)

// KeyPair is the Ed25519 keypair behind a node's PeerID.
// Only the hello exchange of a transport signs with it; the handshake itself never does.
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// KeyPairFromSeed rebuilds a keypair from a 32-byte Ed25519 seed.
func KeyPairFromSeed(seed []byte) (KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return KeyPair{}, ErrInvalidPrivateKey
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return KeyPair{PublicKey: priv.Public().(ed25519.PublicKey), PrivateKey: priv}, nil
}

func (kp KeyPair) PeerID() PeerID {
	return PeerIDFromPublicKey(kp.PublicKey)
}

// Identity names the keypair's owner.
func (kp KeyPair) Identity(name string) Identity {
	return Identity{ID: kp.PeerID(), Name: name}
}

func (kp KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(kp.PrivateKey, message)
}

func Verify(publicKey ed25519.PublicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}
