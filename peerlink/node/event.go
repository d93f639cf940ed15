package node

import (
	"time"

	"github.com/TheusHen/peerlink/peerlink/grant"
	"github.com/TheusHen/peerlink/peerlink/handshake"
	"github.com/TheusHen/peerlink/peerlink/identity"
	"github.com/TheusHen/peerlink/peerlink/protocol"
)

type EventKind uint8

const (
	EventRequestSent EventKind = iota + 1
	EventProxyRequested
	EventSecretOverwritten
	EventGrantIssued
	EventGrantReceived
	EventGrantConsumed
	EventRequestReceived
	EventApproved
	EventApprovalReceived
	EventFinalized
	EventEstablished
	EventRejected
	EventCanceled
	EventTerminated
	EventTerminateReceived
	EventMessageSent
	EventMessageReceived
	EventMessageBlocked
	EventPendingExpired
	EventGrantExpired
	EventSendFailed
	EventDropped
)

var eventNames = map[EventKind]string{
	EventRequestSent:       "request_sent",
	EventProxyRequested:    "proxy_requested",
	EventSecretOverwritten: "secret_overwritten",
	EventGrantIssued:       "grant_issued",
	EventGrantReceived:     "grant_received",
	EventGrantConsumed:     "grant_consumed",
	EventRequestReceived:   "request_received",
	EventApproved:          "approved",
	EventApprovalReceived:  "approval_received",
	EventFinalized:         "finalized",
	EventEstablished:       "established",
	EventRejected:          "rejected",
	EventCanceled:          "canceled",
	EventTerminated:        "terminated",
	EventTerminateReceived: "terminate_received",
	EventMessageSent:       "message_sent",
	EventMessageReceived:   "message_received",
	EventMessageBlocked:    "message_blocked",
	EventPendingExpired:    "pending_expired",
	EventGrantExpired:      "grant_expired",
	EventSendFailed:        "send_failed",
	EventDropped:           "dropped",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event reports one state change, or one refusal, on a single node.
type Event struct {
	Kind EventKind
	At   time.Time
	Node identity.Identity
	Peer identity.Identity

	Secret  protocol.Secret
	Grant   *grant.ProxyGrant    // copy; grant events only
	Table   handshake.Table      // EventPendingExpired only
	Message protocol.MessageType // EventDropped and EventSendFailed
	Payload []byte               // EventMessageReceived
	Err     error
}

// Observer receives events on the node's loop goroutine. It must return quickly and must
// not call back into the node it observes.
type Observer func(Event)
