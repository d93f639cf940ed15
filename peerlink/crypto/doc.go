// Package crypto holds the key derivation used by proxy grants.
//
// Grant keys are HKDF-SHA256 outputs over a random nonce, salted with the issuing
// handler's PeerID and bound to the full introduction triple. They authenticate an
// introduction; they never encrypt anything.
package crypto
