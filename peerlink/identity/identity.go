package identity

import "fmt"

// Identity is a peer as the protocol sees it: an unguessable PeerID plus a display name.
// Two identities are the same peer when their IDs are equal; the name is informational.
type Identity struct {
	ID   PeerID `json:"id"`
	Name string `json:"name,omitempty"`
}

// Generate creates a fresh keypair and the identity it names.
func Generate(name string) (Identity, KeyPair, error) {
	kp, err := GenerateKeyPair()
	if err != nil {
		return Identity{}, KeyPair{}, err
	}
	return kp.Identity(name), kp, nil
}

func (i Identity) Is(other Identity) bool {
	return i.ID == other.ID
}

func (i Identity) IsZero() bool {
	return i.ID.IsZero()
}

func (i Identity) String() string {
	if i.Name == "" {
		return i.ID.Short()
	}
	return fmt.Sprintf("%s(%s)", i.Name, i.ID.Short())
}
