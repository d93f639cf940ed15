package identity

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerIDDerivationStable(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	id1 := kp.PeerID()
	id2 := PeerIDFromPublicKey(kp.PublicKey)
	require.Equal(t, id1, id2)

	parsed, err := ParsePeerIDHex(id1.String())
	require.NoError(t, err)
	require.Equal(t, id1, parsed)

	_, err = ParsePeerIDHex("abcd")
	require.ErrorIs(t, err, ErrInvalidPeerID)
}

func TestSignVerify(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("hello")
	sig := kp.Sign(msg)
	require.NotEmpty(t, sig)
	assert.True(t, Verify(kp.PublicKey, msg, sig))
	assert.False(t, Verify(kp.PublicKey, []byte("tampered"), sig))

	kp2, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.False(t, Verify(kp2.PublicKey, msg, sig))
	assert.False(t, Verify(kp.PublicKey[:8], msg, sig))

	// signature bytes are not expected to be all zero
	assert.False(t, bytes.Equal(sig, make([]byte, len(sig))))
}

func TestKeyPairFromSeed(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	a, err := KeyPairFromSeed(seed)
	require.NoError(t, err)
	b, err := KeyPairFromSeed(seed)
	require.NoError(t, err)
	assert.Equal(t, a.PeerID(), b.PeerID())

	_, err = KeyPairFromSeed(seed[:5])
	require.ErrorIs(t, err, ErrInvalidPrivateKey)
}

func TestIdentityJSON(t *testing.T) {
	alice, _, err := Generate("alice")
	require.NoError(t, err)

	raw, err := json.Marshal(alice)
	require.NoError(t, err)
	assert.Contains(t, string(raw), alice.ID.String())

	var back Identity
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Is(alice))
	assert.Equal(t, "alice", back.Name)
	assert.Equal(t, "alice("+alice.ID.Short()+")", alice.String())
}

func TestIdentityZero(t *testing.T) {
	var zero Identity
	assert.True(t, zero.IsZero())

	bob, _, err := Generate("")
	require.NoError(t, err)
	assert.False(t, bob.IsZero())
	assert.Equal(t, bob.ID.Short(), bob.String())
}
