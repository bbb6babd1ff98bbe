// Package identity is the gate between clients and the chat pipeline.
//
// It enforces the anonymous message quota, manages registered users, and
// performs the one-time promotion of an anonymous visitor into an account,
// moving every session the visitor owns in a single transaction.
package identity

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/eloquentai/eloquent-chat/internal/session"
)

// Sentinel errors. Check with errors.Is.
var (
	// ErrQuotaExceeded indicates an anonymous token has used up its free
	// messages and must register to continue.
	ErrQuotaExceeded = errors.New("anonymous message quota exceeded")

	// ErrEmailTaken indicates registration with an email that already has
	// an account.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials covers both unknown email and wrong password.
	// Callers must not distinguish the two to the client.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrUserNotFound indicates no user exists for the given id.
	ErrUserNotFound = errors.New("user not found")

	// ErrAlreadyPromoted indicates the anonymous token was promoted before;
	// promotion is a one-time transition.
	ErrAlreadyPromoted = errors.New("anonymous token already promoted")

	// ErrWeakPassword indicates the password fails the minimum length rule.
	ErrWeakPassword = errors.New("password must be at least 8 characters")

	// ErrInvalidEmail indicates a syntactically unusable email address.
	ErrInvalidEmail = errors.New("invalid email address")
)

// User is a registered account.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Owner identifies who a request acts as: an anonymous token or a
// registered user, never both.
type Owner struct {
	UserID    uuid.UUID // set for registered users
	AnonToken string    // set for anonymous visitors
}

// AnonymousOwner builds an Owner for an anonymous token.
func AnonymousOwner(token string) Owner {
	return Owner{AnonToken: token}
}

// UserOwner builds an Owner for a registered user.
func UserOwner(userID uuid.UUID) Owner {
	return Owner{UserID: userID}
}

// Anonymous reports whether the owner is an unregistered visitor.
func (o Owner) Anonymous() bool {
	return o.AnonToken != ""
}

// ID returns the session owner id form: "anon:<token>" for visitors, the
// user UUID string for accounts.
func (o Owner) ID() string {
	if o.Anonymous() {
		return session.AnonOwnerID(o.AnonToken)
	}
	return o.UserID.String()
}
