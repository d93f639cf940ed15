package crypto

import (
	"crypto/sha256"
	"errors"
	"io"

	"github.com/TheusHen/peerlink/peerlink/identity"
	"golang.org/x/crypto/hkdf"
)

const (
	GrantKeySize   = 32
	GrantNonceSize = 32

	grantKeyInfo = "peerlink-proxy-grant"
)

var ErrShortNonce = errors.New("crypto: grant nonce too short")

// DeriveKey derives a key of the specified length using HKDF-SHA256.
// salt can be nil (uses zero salt), info provides context binding.
func DeriveKey(secret, salt, info []byte, length int) ([]byte, error) {
	hk := hkdf.New(sha256.New, secret, salt, info)
	key := make([]byte, length)
	if _, err := io.ReadFull(hk, key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveGrantKey binds fresh randomness to one (handler, requester, receiver) triple.
// The same nonce under a different triple yields an unrelated key.
func DeriveGrantKey(nonce []byte, handler, requester, receiver identity.PeerID) ([GrantKeySize]byte, error) {
	var out [GrantKeySize]byte
	if len(nonce) < GrantNonceSize {
		return out, ErrShortNonce
	}
	info := make([]byte, 0, len(grantKeyInfo)+3*len(identity.PeerID{}))
	info = append(info, grantKeyInfo...)
	info = append(info, handler[:]...)
	info = append(info, requester[:]...)
	info = append(info, receiver[:]...)

	key, err := DeriveKey(nonce, handler[:], info, GrantKeySize)
	if err != nil {
		return out, err
	}
	copy(out[:], key)
	return out, nil
}
