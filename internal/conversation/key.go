// Package conversation derives the canonical identifier for a two-party
// conversation. The identifier is an ordered pair of user ids, not a bare
// joined string, so user ids containing the serialization separator can
// never collide.
package conversation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bera-tech-ai/gramX/internal/domain"
)

// MaxUserIDLen bounds user ids accepted as participants.
const MaxUserIDLen = 128

// ID is the canonical conversation identifier: the two participant ids
// ordered by the total order over strings. Key(a,b) == Key(b,a) always.
type ID struct {
	low  string
	high string
}

// Key derives the conversation ID for the unordered pair {a, b}.
// It fails with domain.ErrInvalidParticipants when the pair does not
// describe a two-party conversation.
func Key(a, b string) (ID, error) {
	if err := validateUserID(a); err != nil {
		return ID{}, err
	}
	if err := validateUserID(b); err != nil {
		return ID{}, err
	}
	if a == b {
		return ID{}, fmt.Errorf("%w: self-conversation %q", domain.ErrInvalidParticipants, a)
	}
	if a < b {
		return ID{low: a, high: b}, nil
	}
	return ID{low: b, high: a}, nil
}

// Parse reconstructs an ID from its serialized form.
func Parse(s string) (ID, error) {
	sep := strings.IndexByte(s, ':')
	if sep <= 0 {
		return ID{}, fmt.Errorf("%w: malformed conversation id", domain.ErrInvalidParticipants)
	}
	n, err := strconv.Atoi(s[:sep])
	if err != nil || n <= 0 || sep+1+n >= len(s) {
		return ID{}, fmt.Errorf("%w: malformed conversation id", domain.ErrInvalidParticipants)
	}
	low := s[sep+1 : sep+1+n]
	if s[sep+1+n] != ':' {
		return ID{}, fmt.Errorf("%w: malformed conversation id", domain.ErrInvalidParticipants)
	}
	high := s[sep+2+n:]
	return Key(low, high)
}

// String serializes the ID for use as a storage key. The first participant
// is length-prefixed, so the encoding is injective regardless of what
// characters the ids themselves contain.
func (id ID) String() string {
	return strconv.Itoa(len(id.low)) + ":" + id.low + ":" + id.high
}

// Participants returns both participant ids in canonical order.
func (id ID) Participants() (string, string) {
	return id.low, id.high
}

// Other returns the counterpart of userID in this conversation, or the
// empty string if userID is not a participant.
func (id ID) Other(userID string) string {
	switch userID {
	case id.low:
		return id.high
	case id.high:
		return id.low
	default:
		return ""
	}
}

// Has reports whether userID is a participant.
func (id ID) Has(userID string) bool {
	return userID == id.low || userID == id.high
}

func validateUserID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty user id", domain.ErrInvalidParticipants)
	}
	if len(id) > MaxUserIDLen {
		return fmt.Errorf("%w: user id exceeds %d bytes", domain.ErrInvalidParticipants, MaxUserIDLen)
	}
	return nil
}
