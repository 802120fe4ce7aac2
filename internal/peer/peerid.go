package peer

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
)

// ErrBadPeerID is returned for identifiers that are not <uuid>@<host:port>.
var ErrBadPeerID = errors.New("invalid peer id")

// PeerID is the opaque address a host publishes in the directory. Guests treat
// it as a token and pass it back to ConnectTo.
type PeerID string

// NewPeerID mints a fresh identifier for a link listening on addr.
func NewPeerID(addr string) PeerID {
	return PeerID(uuid.NewString() + "@" + addr)
}

// ParsePeerID splits an identifier into its link token and dial address.
func ParsePeerID(s string) (token uuid.UUID, addr string, err error) {
	i := strings.LastIndex(s, "@")
	if i < 0 {
		return uuid.Nil, "", fmt.Errorf("%w: %q", ErrBadPeerID, s)
	}
	token, err = uuid.Parse(s[:i])
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: %q: %v", ErrBadPeerID, s, err)
	}
	addr = s[i+1:]
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: %q: %v", ErrBadPeerID, s, err)
	}
	return token, addr, nil
}

func (p PeerID) String() string { return string(p) }

// Valid reports whether the id parses.
func (p PeerID) Valid() bool {
	_, _, err := ParsePeerID(string(p))
	return err == nil
}
