package handshake

import (
	"time"

	"github.com/TheusHen/peerlink/peerlink/identity"
)

// Stage is where the relationship with one peer stands, from this node's side only.
type Stage uint8

const (
	StageIdle Stage = iota
	StageSent
	StageReceived
	StageAwaitingFinal
	StageEstablished
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "IDLE"
	case StageSent:
		return "SENT"
	case StageReceived:
		return "RECEIVED"
	case StageAwaitingFinal:
		return "AWAITING_FINAL"
	case StageEstablished:
		return "ESTABLISHED"
	default:
		return "UNKNOWN"
	}
}

// Stage reports the furthest stage reached with peer. An established connection wins
// over a fresh attempt to the same peer.
func (s *State) Stage(peer identity.PeerID, now time.Time) Stage {
	if _, ok := s.Connection(peer); ok {
		return StageEstablished
	}
	if _, ok := s.Awaiting(peer, now); ok {
		return StageAwaitingFinal
	}
	if _, ok := s.Received(peer, now); ok {
		return StageReceived
	}
	if _, ok := s.Sent(peer, now); ok {
		return StageSent
	}
	return StageIdle
}

// View is a copy of all four tables.
type View struct {
	PendingSent     map[identity.PeerID]Entry
	PendingReceived map[identity.PeerID]Entry
	Awaiting        map[identity.PeerID]Entry
	Connections     map[identity.PeerID]Entry
}

func (s *State) View() View {
	return View{
		PendingSent:     copyTable(s.sent),
		PendingReceived: copyTable(s.received),
		Awaiting:        copyTable(s.awaiting),
		Connections:     copyTable(s.connected),
	}
}

// Pending reports whether any table other than Connections mentions peer.
func (v View) Pending(peer identity.PeerID) bool {
	_, a := v.PendingSent[peer]
	_, b := v.PendingReceived[peer]
	_, c := v.Awaiting[peer]
	return a || b || c
}

func copyTable(m map[identity.PeerID]Entry) map[identity.PeerID]Entry {
	out := make(map[identity.PeerID]Entry, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
