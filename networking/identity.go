package networking

import (
	"fmt"
	"strings"

	"go_secure_send/constants"

	"github.com/google/uuid"
)

// ClientID is the 16 byte identity issued by the server at registration
type ClientID [constants.CLIENT_ID_SIZE]byte

// String returns the canonical UUID text form
func (id ClientID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the placeholder used before registration
func (id ClientID) IsZero() bool {
	return id == ClientID{}
}

// ParseClientID accepts both the hyphenated form and 32 bare hex digits
func ParseClientID(s string) (ClientID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return ClientID{}, fmt.Errorf("invalid client id %q: %w", s, err)
	}
	return ClientID(u), nil
}

// ClientIDFromBytes copies exactly 16 bytes into a ClientID
func ClientIDFromBytes(b []byte) (ClientID, error) {
	var id ClientID
	if len(b) != len(id) {
		return id, fmt.Errorf("client id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}
