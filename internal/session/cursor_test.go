package session

import (
	"errors"
	"testing"
)

func TestCursorRoundTrip(t *testing.T) {
	for _, seq := range []int{0, 1, 42, 999999} {
		cursor := encodeCursor(seq)
		got, err := decodeCursor(cursor)
		if err != nil {
			t.Fatalf("decodeCursor(%q) error = %v", cursor, err)
		}
		if got != seq {
			t.Errorf("round trip %d -> %q -> %d", seq, cursor, got)
		}
	}
}

func TestDecodeCursor_Empty(t *testing.T) {
	seq, err := decodeCursor("")
	if err != nil || seq != 0 {
		t.Errorf("decodeCursor(\"\") = %d, %v, want 0, nil", seq, err)
	}
}

func TestDecodeCursor_Invalid(t *testing.T) {
	for _, cursor := range []string{"not base64 !!!", "bm90LWEtbnVtYmVy", encodeCursor(-1)} {
		if _, err := decodeCursor(cursor); !errors.Is(err, ErrInvalidCursor) {
			t.Errorf("decodeCursor(%q) error = %v, want ErrInvalidCursor", cursor, err)
		}
	}
}

func TestAnonOwnerID(t *testing.T) {
	if got := AnonOwnerID("abc123"); got != "anon:abc123" {
		t.Errorf("AnonOwnerID() = %q", got)
	}
}
