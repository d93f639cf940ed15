package memory

import (
	"fmt"
	"sync"

	"github.com/TheusHen/peerlink/peerlink/discovery"
	"github.com/TheusHen/peerlink/peerlink/identity"
)

// Store is an in-memory discovery resolver.
// It is useful for tests, examples and embedding in applications.
type Store struct {
	mu    sync.RWMutex
	peers map[identity.PeerID]discovery.AddrInfo
}

func New() *Store {
	return &Store{peers: map[identity.PeerID]discovery.AddrInfo{}}
}

func (s *Store) Announce(info discovery.AddrInfo) error {
	if info.Peer.IsZero() || !info.Addr.IsValid() || info.Port == 0 {
		return fmt.Errorf("%w: %s at %s", discovery.ErrInvalidAddr, info.Peer, info.AddrPort())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[info.Peer.ID] = info
	return nil
}

func (s *Store) Withdraw(peer identity.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, peer)
}

func (s *Store) Lookup(peer identity.PeerID) (discovery.AddrInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.peers[peer]
	if !ok {
		return discovery.AddrInfo{}, fmt.Errorf("%w: %s", discovery.ErrNotFound, peer.Short())
	}
	return info, nil
}

func (s *Store) List() ([]discovery.AddrInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]discovery.AddrInfo, 0, len(s.peers))
	for _, info := range s.peers {
		out = append(out, info)
	}
	return out, nil
}
