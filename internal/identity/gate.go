package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/eloquentai/eloquent-chat/internal/log"
	"github.com/eloquentai/eloquent-chat/internal/session"
)

// DefaultQuotaLimit is the number of free messages an anonymous visitor
// gets before registration is required.
const DefaultQuotaLimit = 3

// MinPasswordLen is the minimum accepted password length.
const MinPasswordLen = 8

// Gate enforces the anonymous quota and owns the account lifecycle:
// registration, login, and the one-time promotion of an anonymous token.
//
// Safe for concurrent use.
type Gate struct {
	sessions *session.Store
	users    *Users
	signer   *Signer
	limit    int
	logger   log.Logger
}

// NewGate creates a Gate. limit <= 0 selects DefaultQuotaLimit.
func NewGate(sessions *session.Store, users *Users, signer *Signer, limit int, logger log.Logger) *Gate {
	if limit <= 0 {
		limit = DefaultQuotaLimit
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Gate{
		sessions: sessions,
		users:    users,
		signer:   signer,
		limit:    limit,
		logger:   logger,
	}
}

// Signer exposes the credential signer for the HTTP layer's verification
// path.
func (g *Gate) Signer() *Signer {
	return g.signer
}

// Authorize decides whether owner may send a message right now. Registered
// users always may; anonymous tokens are refused once their quota is spent
// or their token was promoted. The check runs before any provider call so a
// refused send costs nothing.
func (g *Gate) Authorize(ctx context.Context, owner Owner) error {
	if !owner.Anonymous() {
		return nil
	}

	state, err := g.sessions.Quota(ctx, owner.AnonToken)
	if err != nil {
		return fmt.Errorf("checking quota: %w", err)
	}
	if state.Promoted {
		return ErrAlreadyPromoted
	}
	if state.Count >= g.limit {
		g.logger.Debug("quota exhausted", "count", state.Count, "limit", g.limit)
		return ErrQuotaExceeded
	}
	return nil
}

// ConsumeQuota charges one message against an anonymous owner. Called only
// after the exchange persisted successfully, so a failed generation never
// costs quota. Registered owners are a no-op.
func (g *Gate) ConsumeQuota(ctx context.Context, owner Owner) error {
	if !owner.Anonymous() {
		return nil
	}
	count, err := g.sessions.IncrementQuota(ctx, owner.AnonToken)
	if err != nil {
		return fmt.Errorf("consuming quota: %w", err)
	}
	g.logger.Debug("quota consumed", "count", count, "limit", g.limit)
	return nil
}

// Remaining reports how many free messages an owner has left. Registered
// owners report the full limit.
func (g *Gate) Remaining(ctx context.Context, owner Owner) (int, error) {
	if !owner.Anonymous() {
		return g.limit, nil
	}
	state, err := g.sessions.Quota(ctx, owner.AnonToken)
	if err != nil {
		return 0, fmt.Errorf("checking quota: %w", err)
	}
	if state.Promoted || state.Count >= g.limit {
		return 0, nil
	}
	return g.limit - state.Count, nil
}

// Register creates an account and returns it with a fresh access
// credential.
func (g *Gate) Register(ctx context.Context, email, password string) (*User, string, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, "", err
	}
	if len(password) < MinPasswordLen {
		return nil, "", ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}

	user, err := g.users.Create(ctx, g.users.Pool(), email, string(hash))
	if err != nil {
		return nil, "", err
	}

	g.logger.Info("user registered", "user_id", user.ID)
	return user, g.signer.Issue(user.ID), nil
}

// Login validates credentials and returns the account with a fresh access
// credential. Unknown email and wrong password are indistinguishable.
func (g *Gate) Login(ctx context.Context, email, password string) (*User, string, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}

	user, err := g.users.ByEmail(ctx, g.users.Pool(), email)
	if err != nil {
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	return user, g.signer.Issue(user.ID), nil
}

// Promote upgrades an anonymous token into an account in one transaction:
// it creates the account (or validates the password of an existing one),
// re-parents every session the token owns to the account, and retires the
// token's quota for good. A failure anywhere rolls the whole transition
// back, so sessions are never orphaned under a dead token. Returns the
// account, a fresh access credential, and how many sessions moved.
func (g *Gate) Promote(ctx context.Context, anonToken, email, password string) (*User, string, int, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, "", 0, err
	}
	if len(password) < MinPasswordLen {
		return nil, "", 0, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", 0, fmt.Errorf("hashing password: %w", err)
	}

	tx, err := g.sessions.Pool().Begin(ctx)
	if err != nil {
		return nil, "", 0, fmt.Errorf("beginning promotion transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			g.logger.Debug("promotion rollback", "error", rbErr)
		}
	}()

	// Promotion is terminal per token.
	state, err := g.sessions.QuotaOn(ctx, tx, anonToken)
	if err != nil {
		return nil, "", 0, fmt.Errorf("checking promotion state: %w", err)
	}
	if state.Promoted {
		return nil, "", 0, ErrAlreadyPromoted
	}

	user, err := g.users.Create(ctx, tx, email, string(hash))
	if errors.Is(err, ErrEmailTaken) {
		// Existing account: the password must match before any session
		// moves under it.
		user, err = g.users.ByEmail(ctx, tx, email)
		if err != nil {
			return nil, "", 0, err
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
			return nil, "", 0, ErrInvalidCredentials
		}
	} else if err != nil {
		return nil, "", 0, err
	}

	moved, err := g.sessions.Reparent(ctx, tx, session.AnonOwnerID(anonToken), user.ID.String())
	if err != nil {
		return nil, "", 0, err
	}
	if err := g.sessions.RetireQuota(ctx, tx, anonToken); err != nil {
		return nil, "", 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", 0, fmt.Errorf("committing promotion: %w", err)
	}

	g.logger.Info("anonymous token promoted", "user_id", user.ID, "sessions_moved", moved)
	return user, g.signer.Issue(user.ID), int(moved), nil
}
