package protocol

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"

	"github.com/TheusHen/peerlink/peerlink/identity"
)

// MaxHelloSkew bounds how far a hello timestamp may be from the verifier's clock.
const MaxHelloSkew = 5 * time.Minute

var (
	ErrHelloPeerIDMismatch = errors.New("hello peerid does not match public key")
	ErrHelloBadSignature   = errors.New("hello invalid signature")
	ErrHelloMissingKey     = errors.New("hello missing public key")
	ErrHelloStale          = errors.New("hello timestamp out of range")
	ErrHelloMissingPeerID  = errors.New("hello missing peer_id")
)

// Hello binds a transport connection to an Ed25519 identity.
// The signature is computed over SigningBytes(binding), where binding is keying material
// exported from the connection it is sent on, so a hello cannot be relayed onto another one.
type Hello struct {
	PeerID       identity.PeerID `json:"peer_id"`
	Name         string          `json:"name,omitempty"`
	PublicKey    []byte          `json:"public_key"`
	TimestampSec int64           `json:"timestamp_sec"`
	Nonce        []byte          `json:"nonce"`
	Signature    []byte          `json:"signature"`
}

func NewHello(kp identity.KeyPair, name string) (Hello, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return Hello{}, err
	}
	return Hello{
		PeerID:       kp.PeerID(),
		Name:         name,
		PublicKey:    append([]byte(nil), kp.PublicKey...),
		TimestampSec: time.Now().Unix(),
		Nonce:        nonce,
	}, nil
}

// Identity is the identity this hello claims. Only trust it after Verify.
func (h Hello) Identity() identity.Identity {
	return identity.Identity{ID: h.PeerID, Name: h.Name}
}

func (h Hello) SigningBytes(binding []byte) ([]byte, error) {
	if len(h.PublicKey) != ed25519.PublicKeySize {
		return nil, ErrHelloMissingKey
	}

	var b bytes.Buffer
	b.Write(h.PeerID[:])
	b.Write(h.PublicKey)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(h.TimestampSec))
	b.Write(ts[:])
	b.Write(h.Nonce)
	var nl [2]byte
	binary.BigEndian.PutUint16(nl[:], uint16(len(h.Name)))
	b.Write(nl[:])
	b.WriteString(h.Name)
	binary.BigEndian.PutUint16(nl[:], uint16(len(binding)))
	b.Write(nl[:])
	b.Write(binding)
	return b.Bytes(), nil
}

func (h *Hello) Sign(kp identity.KeyPair, binding []byte) error {
	toSign, err := h.SigningBytes(binding)
	if err != nil {
		return err
	}
	h.Signature = kp.Sign(toSign)
	return nil
}

// Verify checks key binding and the signature over binding, and that the hello is fresh
// relative to now.
func (h Hello) Verify(now time.Time, binding []byte) error {
	if len(h.PublicKey) != ed25519.PublicKeySize {
		return ErrHelloMissingKey
	}
	if identity.PeerIDFromPublicKey(h.PublicKey) != h.PeerID {
		return ErrHelloPeerIDMismatch
	}
	toVerify, err := h.SigningBytes(binding)
	if err != nil {
		return err
	}
	if !identity.Verify(ed25519.PublicKey(h.PublicKey), toVerify, h.Signature) {
		return ErrHelloBadSignature
	}
	skew := now.Sub(time.Unix(h.TimestampSec, 0))
	if skew > MaxHelloSkew || skew < -MaxHelloSkew {
		return ErrHelloStale
	}
	return nil
}

func EncodeHello(h Hello) (Frame, error) {
	payload, err := json.Marshal(h)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: MessageTypeHello, Payload: payload}, nil
}

func DecodeHello(f Frame) (Hello, error) {
	if f.Type != MessageTypeHello {
		return Hello{}, ErrTypeMismatch
	}
	var h Hello
	if err := json.Unmarshal(f.Payload, &h); err != nil {
		return Hello{}, err
	}
	if h.PeerID.IsZero() {
		return Hello{}, ErrHelloMissingPeerID
	}
	return h, nil
}
