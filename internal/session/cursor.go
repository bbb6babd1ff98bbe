package session

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// Cursors encode the sequence number of the last returned message. Paging
// resumes strictly after that position, so a cursor never re-returns a seen
// message and never skips one inserted before the cursor point. The encoding
// is opaque to clients.

// encodeCursor produces the cursor for a page ending at seq.
func encodeCursor(seq int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(seq)))
}

// decodeCursor recovers the sequence position from a client-supplied cursor.
// An empty cursor means "from the beginning".
func decodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	seq, err := strconv.Atoi(string(raw))
	if err != nil || seq < 0 {
		return 0, ErrInvalidCursor
	}
	return seq, nil
}
