// Package discovery maps peer identities to the addresses their transports listen on.
package discovery

import (
	"errors"
	"net/netip"

	"github.com/TheusHen/peerlink/peerlink/identity"
)

var (
	ErrNotFound    = errors.New("discovery: peer not found")
	ErrInvalidAddr = errors.New("discovery: invalid address")
)

// AddrInfo is where one peer can be reached.
type AddrInfo struct {
	Peer identity.Identity
	Addr netip.Addr
	Port uint16
}

func (a AddrInfo) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(a.Addr, a.Port)
}

func (a AddrInfo) String() string {
	return a.AddrPort().String()
}

// FromAddrPort builds an AddrInfo from a "host:port" string such as a listener address.
func FromAddrPort(peer identity.Identity, s string) (AddrInfo, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return AddrInfo{}, errors.Join(ErrInvalidAddr, err)
	}
	return AddrInfo{Peer: peer, Addr: ap.Addr(), Port: ap.Port()}, nil
}

// Resolver is a generic discovery interface.
// Implementations can be backed by DHT, mDNS/DNS-SD, bootstrap lists, etc.
type Resolver interface {
	Announce(info AddrInfo) error
	Lookup(peer identity.PeerID) (AddrInfo, error)
	List() ([]AddrInfo, error)
}
