package chat

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const roomIDLength = 32

// RoomID derives the room identifier for an unordered pair of users.
// RoomID(a, b) == RoomID(b, a) for all valid a, b.
func RoomID(a, b string) (string, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return "", fmt.Errorf("%w: both participants are required", ErrInvalidArgument)
	}
	if a == b {
		return "", fmt.Errorf("%w: a room needs two distinct participants", ErrInvalidArgument)
	}
	if b < a {
		a, b = b, a
	}

	sum := sha256.Sum256([]byte(a + "\x00" + b))
	return hex.EncodeToString(sum[:])[:roomIDLength], nil
}
