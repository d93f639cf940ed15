package node

import (
	"errors"
	"fmt"

	"github.com/TheusHen/peerlink/peerlink/handshake"
)

// The four recoverable outcomes every operation and handler reports. None of them
// changes node state.
var (
	ErrPolicyBlocked  = errors.New("node: request kind blocked by policy")
	ErrNoPendingState = handshake.ErrNoPendingState
	ErrSecretMismatch = handshake.ErrSecretMismatch
	ErrInvalidGrant   = errors.New("node: invalid or expired proxy grant")
)

var (
	// ErrNoConnection is ErrNoPendingState for the connection table.
	ErrNoConnection = fmt.Errorf("%w: no connection", ErrNoPendingState)

	ErrPendingExists     = errors.New("node: request already pending")
	ErrSelfConnection    = errors.New("node: cannot connect to itself")
	ErrMisrouted         = errors.New("node: message addressed to another node")
	ErrUnexpectedMessage = errors.New("node: unexpected message type")
	ErrNodeClosed        = errors.New("node: closed")
	ErrInvalidConfig     = errors.New("node: invalid config")
)
