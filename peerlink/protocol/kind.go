package protocol

import "github.com/TheusHen/peerlink/peerlink/grant"

// RequestKind says how a connection request reached the receiver.
// It is either Direct or Indirect; switch on it exhaustively.
type RequestKind interface {
	requestKind()
}

// Direct requests come straight from the requester.
type Direct struct{}

// Indirect requests are vouched for by a proxy grant.
type Indirect struct {
	Credential grant.Credential
}

func (Direct) requestKind()   {}
func (Indirect) requestKind() {}
