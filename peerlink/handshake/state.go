// Package handshake keeps one node's bookkeeping of its connection attempts.
//
// A State has four tables keyed by peer: requests sent and not yet answered, requests
// received and not yet decided, attempts approved and waiting for the closing FINALIZE,
// and established connections. A State is owned by a single node loop and is not safe
// for concurrent use.
package handshake

import (
	"errors"
	"time"

	"github.com/TheusHen/peerlink/peerlink/identity"
	"github.com/TheusHen/peerlink/peerlink/protocol"
)

var (
	ErrNoPendingState = errors.New("handshake: no pending state")
	ErrSecretMismatch = errors.New("handshake: secret mismatch")
)

// Table names one of the four tables.
type Table uint8

const (
	TableSent Table = iota + 1
	TableReceived
	TableAwaiting
	TableConnected
)

func (t Table) String() string {
	switch t {
	case TableSent:
		return "pending_sent"
	case TableReceived:
		return "pending_received"
	case TableAwaiting:
		return "awaiting_finalization"
	case TableConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Entry is one attempt (or connection) with a peer.
type Entry struct {
	Peer   identity.Identity
	Secret protocol.Secret

	// Deadline is when a pending entry lapses. Zero means never; connections have none.
	Deadline time.Time

	// Proxy is the grant handler the attempt runs through, zero for direct attempts.
	Proxy identity.Identity

	// Emitted is false while a proxied sent request still waits for its grant.
	Emitted bool
}

func (e Entry) Direct() bool { return e.Proxy.IsZero() }

func (e Entry) expired(now time.Time) bool {
	return !e.Deadline.IsZero() && now.After(e.Deadline)
}

// Lapsed is an entry removed because its deadline passed.
type Lapsed struct {
	Table Table
	Entry Entry
}

type State struct {
	sent      map[identity.PeerID]Entry
	received  map[identity.PeerID]Entry
	awaiting  map[identity.PeerID]Entry
	connected map[identity.PeerID]Entry
}

func NewState() *State {
	return &State{
		sent:      make(map[identity.PeerID]Entry),
		received:  make(map[identity.PeerID]Entry),
		awaiting:  make(map[identity.PeerID]Entry),
		connected: make(map[identity.PeerID]Entry),
	}
}

func (s *State) table(t Table) map[identity.PeerID]Entry {
	switch t {
	case TableSent:
		return s.sent
	case TableReceived:
		return s.received
	case TableAwaiting:
		return s.awaiting
	case TableConnected:
		return s.connected
	default:
		return nil
	}
}

// PutSent records an outgoing attempt and returns the entry it replaced, if any.
func (s *State) PutSent(e Entry) (Entry, bool) {
	prev, ok := s.sent[e.Peer.ID]
	s.sent[e.Peer.ID] = e
	return prev, ok
}

// Sent looks up an outgoing attempt; lapsed entries are not returned.
func (s *State) Sent(peer identity.PeerID, now time.Time) (Entry, bool) {
	return s.lookup(TableSent, peer, now)
}

// MarkEmitted flags a proxied sent entry as having left, if it still carries secret.
func (s *State) MarkEmitted(peer identity.PeerID, secret protocol.Secret) bool {
	e, ok := s.sent[peer]
	if !ok || e.Secret != secret {
		return false
	}
	e.Emitted = true
	s.sent[peer] = e
	return true
}

// TakeSent removes the outgoing attempt to peer if it carries secret.
func (s *State) TakeSent(peer identity.PeerID, secret protocol.Secret, now time.Time) (Entry, error) {
	return s.takeMatching(TableSent, peer, secret, now)
}

func (s *State) DeleteSent(peer identity.PeerID) (Entry, bool) {
	return s.remove(TableSent, peer)
}

func (s *State) PutReceived(e Entry) (Entry, bool) {
	prev, ok := s.received[e.Peer.ID]
	s.received[e.Peer.ID] = e
	return prev, ok
}

func (s *State) Received(peer identity.PeerID, now time.Time) (Entry, bool) {
	return s.lookup(TableReceived, peer, now)
}

// TakeReceived removes the undecided request from peer.
func (s *State) TakeReceived(peer identity.PeerID, now time.Time) (Entry, error) {
	e, ok := s.lookup(TableReceived, peer, now)
	if !ok {
		return Entry{}, ErrNoPendingState
	}
	delete(s.received, peer)
	return e, nil
}

func (s *State) PutAwaiting(e Entry) {
	s.awaiting[e.Peer.ID] = e
}

func (s *State) Awaiting(peer identity.PeerID, now time.Time) (Entry, bool) {
	return s.lookup(TableAwaiting, peer, now)
}

// TakeAwaiting removes whatever attempt with peer awaits finalization.
func (s *State) TakeAwaiting(peer identity.PeerID, now time.Time) (Entry, error) {
	e, ok := s.lookup(TableAwaiting, peer, now)
	if !ok {
		return Entry{}, ErrNoPendingState
	}
	delete(s.awaiting, peer)
	return e, nil
}

// TakeAwaitingMatching removes the attempt awaiting finalization only if it carries secret.
func (s *State) TakeAwaitingMatching(peer identity.PeerID, secret protocol.Secret, now time.Time) (Entry, error) {
	return s.takeMatching(TableAwaiting, peer, secret, now)
}

// Commit records an established connection. Deadline and proxy bookkeeping are dropped.
func (s *State) Commit(e Entry) {
	s.connected[e.Peer.ID] = Entry{Peer: e.Peer, Secret: e.Secret, Proxy: e.Proxy, Emitted: true}
}

func (s *State) Connection(peer identity.PeerID) (Entry, bool) {
	e, ok := s.connected[peer]
	return e, ok
}

// RemoveConnection drops the connection to peer unconditionally.
func (s *State) RemoveConnection(peer identity.PeerID) (Entry, bool) {
	return s.remove(TableConnected, peer)
}

// RemoveConnectionMatching drops the connection to peer only if it carries secret.
func (s *State) RemoveConnectionMatching(peer identity.PeerID, secret protocol.Secret) (Entry, error) {
	e, ok := s.connected[peer]
	if !ok {
		return Entry{}, ErrNoPendingState
	}
	if e.Secret != secret {
		return Entry{}, ErrSecretMismatch
	}
	delete(s.connected, peer)
	return e, nil
}

// Expire removes every pending entry whose deadline passed at now.
func (s *State) Expire(now time.Time) []Lapsed {
	var out []Lapsed
	for _, t := range []Table{TableSent, TableReceived, TableAwaiting} {
		m := s.table(t)
		for id, e := range m {
			if e.expired(now) {
				delete(m, id)
				out = append(out, Lapsed{Table: t, Entry: e})
			}
		}
	}
	return out
}

func (s *State) lookup(t Table, peer identity.PeerID, now time.Time) (Entry, bool) {
	e, ok := s.table(t)[peer]
	if !ok || e.expired(now) {
		return Entry{}, false
	}
	return e, true
}

func (s *State) takeMatching(t Table, peer identity.PeerID, secret protocol.Secret, now time.Time) (Entry, error) {
	e, ok := s.lookup(t, peer, now)
	if !ok {
		return Entry{}, ErrNoPendingState
	}
	if e.Secret != secret {
		return Entry{}, ErrSecretMismatch
	}
	delete(s.table(t), peer)
	return e, nil
}

func (s *State) remove(t Table, peer identity.PeerID) (Entry, bool) {
	m := s.table(t)
	e, ok := m[peer]
	if ok {
		delete(m, peer)
	}
	return e, ok
}
