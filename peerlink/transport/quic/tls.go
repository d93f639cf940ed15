package quic

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/TheusHen/peerlink/peerlink/identity"
)

const (
	ALPN = "peerlink/1"

	// exporterLabel names the keying material each hello signature covers.
	exporterLabel = "EXPORTER-peerlink-hello"
	bindingSize   = 32
)

var ErrPeerCertificate = errors.New("quic: peer certificate does not carry an Ed25519 key")

// certificateFor issues a short-lived certificate for the node's own Ed25519 key, so the
// TLS layer and the hello prove the same PeerID.
func certificateFor(kp identity.KeyPair) (tls.Certificate, error) {
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return tls.Certificate{}, err
	}
	now := time.Now()
	tpl := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: kp.PeerID().String()},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
			x509.ExtKeyUsageClientAuth,
		},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &tpl, &tpl, kp.PublicKey, kp.PrivateKey)
	if err != nil {
		return tls.Certificate{}, err
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: kp.PrivateKey, Leaf: leaf}, nil
}

// verifyPeerCertificate accepts any self-issued certificate whose key is Ed25519. There is no
// CA; which PeerID the key names is checked against the hello once the handshake completes.
func verifyPeerCertificate(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return ErrPeerCertificate
	}
	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPeerCertificate, err)
	}
	if _, ok := cert.PublicKey.(ed25519.PublicKey); !ok {
		return ErrPeerCertificate
	}
	return cert.CheckSignatureFrom(cert)
}

func newTLSConfig(kp identity.KeyPair) (*tls.Config, error) {
	cert, err := certificateFor(kp)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		NextProtos:   []string{ALPN},
		// Chains are not verified against a CA; VerifyPeerCertificate still runs.
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verifyPeerCertificate,
	}, nil
}

func NewServerTLSConfig(kp identity.KeyPair) (*tls.Config, error) {
	conf, err := newTLSConfig(kp)
	if err != nil {
		return nil, err
	}
	conf.ClientAuth = tls.RequireAnyClientCert
	return conf, nil
}

func NewClientTLSConfig(kp identity.KeyPair) (*tls.Config, error) { return newTLSConfig(kp) }

// peerIDFromState returns the PeerID of the key in the remote leaf certificate.
func peerIDFromState(cs tls.ConnectionState) (identity.PeerID, error) {
	if len(cs.PeerCertificates) == 0 {
		return identity.PeerID{}, ErrPeerCertificate
	}
	pub, ok := cs.PeerCertificates[0].PublicKey.(ed25519.PublicKey)
	if !ok {
		return identity.PeerID{}, ErrPeerCertificate
	}
	return identity.PeerIDFromPublicKey(pub), nil
}

// channelBinding exports keying material unique to this TLS session. Both ends derive the
// same bytes; a relay terminating two sessions cannot make them match.
func channelBinding(cs tls.ConnectionState) ([]byte, error) {
	return cs.ExportKeyingMaterial(exporterLabel, nil, bindingSize)
}
