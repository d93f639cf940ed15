package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrInvalidPeerID = errors.New("identity: invalid PeerID length")

// PeerID is the stable identifier for a peer.
// It is defined as: PeerID = SHA-256(PublicKey).
type PeerID [32]byte

func PeerIDFromPublicKey(publicKey []byte) PeerID {
	return PeerID(sha256.Sum256(publicKey))
}

func ParsePeerIDHex(s string) (PeerID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PeerID{}, err
	}
	if len(b) != len(PeerID{}) {
		return PeerID{}, ErrInvalidPeerID
	}
	var id PeerID
	copy(id[:], b)
	return id, nil
}

func (id PeerID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first 8 hex characters, for logs.
func (id PeerID) Short() string {
	return hex.EncodeToString(id[:4])
}

func (id PeerID) IsZero() bool {
	return id == PeerID{}
}

func (id PeerID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *PeerID) UnmarshalText(text []byte) error {
	parsed, err := ParsePeerIDHex(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
