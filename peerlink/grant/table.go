package grant

import (
	"sync"
	"time"

	"github.com/TheusHen/peerlink/peerlink/identity"
)

// Triple names one introduction. Issued and held grants share a table because a grant's
// triple already says which role the holder plays in it.
type Triple struct {
	Handler   identity.PeerID
	Requester identity.PeerID
	Receiver  identity.PeerID
}

func (g *ProxyGrant) Triple() Triple {
	return Triple{Handler: g.Handler, Requester: g.Requester, Receiver: g.Receiver}
}

// Table holds the grants a node issued or received.
type Table struct {
	mu     sync.RWMutex
	grants map[Triple]*ProxyGrant
}

func NewTable() *Table {
	return &Table{grants: make(map[Triple]*ProxyGrant)}
}

// Put stores g under its triple, replacing any previous grant for the same introduction.
func (t *Table) Put(g *ProxyGrant) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.grants[g.Triple()] = g
}

// Lookup returns the stored grant itself; callers on the owning node may expire it in place.
func (t *Table) Lookup(tr Triple) (*ProxyGrant, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.grants[tr]
	if !ok {
		return nil, ErrGrantNotFound
	}
	return g, nil
}

// Expire consumes the grant stored under tr. It reports whether a live grant was consumed.
func (t *Table) Expire(tr Triple) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.grants[tr]
	if !ok || g.Expired {
		return false
	}
	g.Expire()
	return true
}

// Revoke forgets the grant under tr and reports whether there was one.
func (t *Table) Revoke(tr Triple) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.grants[tr]
	delete(t.grants, tr)
	return ok
}

// Cleanup removes grants whose lifetime ran out and returns them, expired.
// Consumed grants stay so a replay keeps failing as "expired" rather than "not found".
func (t *Table) Cleanup(now time.Time) []*ProxyGrant {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []*ProxyGrant
	for tr, g := range t.grants {
		if g.PastDeadline(now) {
			g.Expire()
			delete(t.grants, tr)
			removed = append(removed, g.Clone())
		}
	}
	return removed
}

// Snapshot copies every grant.
func (t *Table) Snapshot() map[Triple]ProxyGrant {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Triple]ProxyGrant, len(t.grants))
	for tr, g := range t.grants {
		out[tr] = *g
	}
	return out
}

// Count returns the number of stored grants, consumed ones included.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.grants)
}
