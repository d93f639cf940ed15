package quic

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"math/big"
	"testing"
	"time"

	"github.com/TheusHen/peerlink/peerlink/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertificateCarriesNodeKey(t *testing.T) {
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	cert, err := certificateFor(kp)
	require.NoError(t, err)

	require.NoError(t, verifyPeerCertificate(cert.Certificate, nil))
	id, err := peerIDFromState(tls.ConnectionState{PeerCertificates: []*x509.Certificate{cert.Leaf}})
	require.NoError(t, err)
	assert.Equal(t, kp.PeerID(), id)
}

func TestVerifyPeerCertificateRejectsOtherKeys(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &tpl, &tpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	require.ErrorIs(t, verifyPeerCertificate([][]byte{der}, nil), ErrPeerCertificate)
	require.ErrorIs(t, verifyPeerCertificate(nil, nil), ErrPeerCertificate)
	_, err = peerIDFromState(tls.ConnectionState{PeerCertificates: []*x509.Certificate{leaf}})
	require.ErrorIs(t, err, ErrPeerCertificate)
	_, err = peerIDFromState(tls.ConnectionState{})
	require.ErrorIs(t, err, ErrPeerCertificate)
}
