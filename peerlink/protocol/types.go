package protocol

type MessageType uint8

const (
	MessageTypeHello              MessageType = 1
	MessageTypeConnectionRequest  MessageType = 2
	MessageTypeApproval           MessageType = 3
	MessageTypeFinalize           MessageType = 4
	MessageTypeTerminate          MessageType = 5
	MessageTypeProxyRequest       MessageType = 6
	MessageTypeProxyKeyShare      MessageType = 7
	MessageTypeApplicationMessage MessageType = 8
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeHello:
		return "HELLO"
	case MessageTypeConnectionRequest:
		return "CONNECTION_REQUEST"
	case MessageTypeApproval:
		return "APPROVAL"
	case MessageTypeFinalize:
		return "FINALIZE"
	case MessageTypeTerminate:
		return "TERMINATE"
	case MessageTypeProxyRequest:
		return "PROXY_REQUEST"
	case MessageTypeProxyKeyShare:
		return "PROXY_KEY_SHARE"
	case MessageTypeApplicationMessage:
		return "APPLICATION_MESSAGE"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether t is a handshake or application message type.
// HELLO belongs to the transport and is not a Message.
func (t MessageType) Valid() bool {
	return t >= MessageTypeConnectionRequest && t <= MessageTypeApplicationMessage
}
