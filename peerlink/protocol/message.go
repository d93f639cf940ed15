package protocol

import (
	"errors"
	"fmt"

	"github.com/TheusHen/peerlink/peerlink/grant"
	"github.com/TheusHen/peerlink/peerlink/identity"
)

var (
	ErrMissingSecret = errors.New("protocol: message missing secret")
	ErrMissingGrant  = errors.New("protocol: proxy key share missing grant")
	ErrMissingPeer   = errors.New("protocol: message missing peer")
	ErrMissingRoute  = errors.New("protocol: message missing sender or recipient")
)

// Message is one protocol message between two nodes.
// Which optional fields are set depends on Type; Validate checks it.
type Message struct {
	Type MessageType       `json:"type"`
	From identity.Identity `json:"from"`
	To   identity.Identity `json:"to"`

	// Secret is set on every type except PROXY_REQUEST and PROXY_KEY_SHARE.
	Secret Secret `json:"secret"`

	// Proxy is the credential of an indirect CONNECTION_REQUEST.
	Proxy *grant.Credential `json:"proxy,omitempty"`

	// Peer is the receiver named in a PROXY_REQUEST, or the counterpart of a PROXY_KEY_SHARE.
	Peer identity.Identity `json:"peer"`

	// Grant is the copy delivered by PROXY_KEY_SHARE.
	Grant *grant.ProxyGrant `json:"grant,omitempty"`

	Payload []byte `json:"payload,omitempty"`
}

// Kind returns the request kind of a CONNECTION_REQUEST.
func (m Message) Kind() RequestKind {
	if m.Proxy == nil {
		return Direct{}
	}
	return Indirect{Credential: *m.Proxy}
}

func (m Message) Validate() error {
	if !m.Type.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidType, m.Type)
	}
	if m.From.IsZero() || m.To.IsZero() {
		return ErrMissingRoute
	}
	switch m.Type {
	case MessageTypeProxyRequest:
		if m.Peer.IsZero() {
			return ErrMissingPeer
		}
	case MessageTypeProxyKeyShare:
		if m.Grant == nil {
			return ErrMissingGrant
		}
		if m.Peer.IsZero() {
			return ErrMissingPeer
		}
	default:
		if m.Secret.IsZero() {
			return ErrMissingSecret
		}
	}
	return nil
}

func (m Message) String() string {
	return fmt.Sprintf("%s %s->%s", m.Type, m.From, m.To)
}

func NewConnectionRequest(from, to identity.Identity, secret Secret, kind RequestKind) Message {
	m := Message{Type: MessageTypeConnectionRequest, From: from, To: to, Secret: secret}
	switch k := kind.(type) {
	case Direct:
	case Indirect:
		cred := k.Credential
		m.Proxy = &cred
	}
	return m
}

func NewApproval(from, to identity.Identity, secret Secret) Message {
	return Message{Type: MessageTypeApproval, From: from, To: to, Secret: secret}
}

func NewFinalize(from, to identity.Identity, secret Secret) Message {
	return Message{Type: MessageTypeFinalize, From: from, To: to, Secret: secret}
}

func NewTerminate(from, to identity.Identity, secret Secret) Message {
	return Message{Type: MessageTypeTerminate, From: from, To: to, Secret: secret}
}

func NewProxyRequest(from, proxy, receiver identity.Identity) Message {
	return Message{Type: MessageTypeProxyRequest, From: from, To: proxy, Peer: receiver}
}

func NewProxyKeyShare(from, to, counterpart identity.Identity, g *grant.ProxyGrant) Message {
	return Message{Type: MessageTypeProxyKeyShare, From: from, To: to, Peer: counterpart, Grant: g.Clone()}
}

func NewApplicationMessage(from, to identity.Identity, secret Secret, payload []byte) Message {
	return Message{
		Type:    MessageTypeApplicationMessage,
		From:    from,
		To:      to,
		Secret:  secret,
		Payload: append([]byte(nil), payload...),
	}
}
