package identity

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestOwner_ID(t *testing.T) {
	anon := AnonymousOwner("tok-123")
	if !anon.Anonymous() {
		t.Error("AnonymousOwner must report Anonymous")
	}
	if got := anon.ID(); got != "anon:tok-123" {
		t.Errorf("anon ID() = %q", got)
	}

	userID := uuid.New()
	user := UserOwner(userID)
	if user.Anonymous() {
		t.Error("UserOwner must not report Anonymous")
	}
	if got := user.ID(); got != userID.String() {
		t.Errorf("user ID() = %q, want %q", got, userID)
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"user@example.com", "user@example.com", false},
		{"  USER@Example.COM ", "user@example.com", false},
		{"no-at-sign", "", true},
		{"@example.com", "", true},
		{"user@", "", true},
		{"user@nodot", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := NormalizeEmail(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidEmail) {
				t.Errorf("NormalizeEmail(%q) error = %v, want ErrInvalidEmail", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeEmail(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
