package protocol

import (
	"github.com/google/uuid"
)

// Secret correlates the messages of one connection attempt. It is generated by the
// initiator and shared by both sides once established. It is not key material.
type Secret uuid.UUID

func NewSecret() Secret {
	return Secret(uuid.New())
}

func ParseSecret(s string) (Secret, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Secret{}, err
	}
	return Secret(u), nil
}

func (s Secret) IsZero() bool {
	return s == Secret{}
}

func (s Secret) String() string {
	return uuid.UUID(s).String()
}

func (s Secret) MarshalText() ([]byte, error) {
	return uuid.UUID(s).MarshalText()
}

func (s *Secret) UnmarshalText(text []byte) error {
	return (*uuid.UUID)(s).UnmarshalText(text)
}
