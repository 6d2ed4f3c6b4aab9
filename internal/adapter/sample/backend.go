// Package sample is an in-process implementation of the backend API seeded
// with demo data. It is used when no API_BASE_URL is configured.
package sample

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/abrenfund/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

const (
	alreadyVerifiedMessage = "Your email address is already verified."
	resetLinkSentMessage   = "If that address is registered, we have emailed a password reset link."

	// Contributions paid with a card ending in this number are declined.
	DeclinedCardLast4 = "0002"
)

type account struct {
	user     domain.User
	hash     []byte
	verified bool
}

func (a *account) summary() domain.UserSummary {
	return domain.UserSummary{
		ID:            a.user.ID,
		Name:          a.user.Name,
		Email:         a.user.Email,
		Role:          a.user.Role,
		EmailVerified: a.verified,
	}
}

type Backend struct {
	clock   clockwork.Clock
	latency time.Duration
	cost    int

	mu            sync.Mutex
	accounts      map[string]*account // by user ID
	emails        map[string]string   // lower-case email -> user ID
	tokens        map[string]string   // token -> user ID
	projects      []domain.Project
	wallets       map[string]*domain.Wallet
	transactions  map[string][]domain.Transaction
	notifications map[string][]domain.Notification
	settings      map[string]domain.NotificationSettings
	support       []domain.SupportRequest
}

var _ domain.Backend = (*Backend)(nil)

type Option func(*Backend)

func WithClock(clock clockwork.Clock) Option {
	return func(b *Backend) { b.clock = clock }
}

// WithLatency delays every call to mimic a remote API.
func WithLatency(d time.Duration) Option {
	return func(b *Backend) { b.latency = d }
}

// WithHashCost sets the bcrypt cost; tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(b *Backend) { b.cost = cost }
}

func New(opts ...Option) *Backend {
	b := &Backend{
		clock:         clockwork.NewRealClock(),
		cost:          bcrypt.DefaultCost,
		accounts:      make(map[string]*account),
		emails:        make(map[string]string),
		tokens:        make(map[string]string),
		wallets:       make(map[string]*domain.Wallet),
		transactions:  make(map[string][]domain.Transaction),
		notifications: make(map[string][]domain.Notification),
		settings:      make(map[string]domain.NotificationSettings),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.seed()
	return b
}

// wait blocks for the configured latency or until ctx ends.
func (b *Backend) wait(ctx context.Context) error {
	if b.latency <= 0 {
		return ctx.Err()
	}
	t := b.clock.NewTimer(b.latency)
	defer t.Stop()
	select {
	case <-t.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Backend) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (b *Backend) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.emails[strings.ToLower(creds.Email)]
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	acc := b.accounts[id]
	if bcrypt.CompareHashAndPassword(acc.hash, []byte(creds.Password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if acc.user.Status == domain.UserSuspended {
		return nil, domain.ErrInvalidCredentials
	}

	return &domain.AuthResult{Token: b.issueToken(id), User: acc.summary()}, nil
}

func (b *Backend) Register(ctx context.Context, profile domain.Profile) (*domain.AuthResult, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	if profile.Password != profile.PasswordConfirmation {
		return nil, &domain.FieldErrors{
			Message: "The given data was invalid.",
			Fields:  map[string][]string{"password": {"The password confirmation does not match."}},
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(profile.Password), b.cost)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if _, taken := b.emails[email]; taken {
		return nil, &domain.FieldErrors{
			Message: "The given data was invalid.",
			Fields:  map[string][]string{"email": {"The email has already been taken."}},
		}
	}

	role := profile.Role
	if role != domain.RoleCreator {
		role = domain.RoleStudent
	}
	acc := b.addAccount(profile.Name, email, role, hash, false)
	acc.user.Status = domain.UserPending

	return &domain.AuthResult{Token: b.issueToken(acc.user.ID), User: acc.summary()}, nil
}

func (b *Backend) CurrentUser(ctx context.Context, token string) (*domain.UserSummary, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, err := b.authenticate(token)
	if err != nil {
		return nil, err
	}
	s := acc.summary()
	return &s, nil
}

func (b *Backend) ResendVerification(ctx context.Context, token string) (string, error) {
	if err := b.wait(ctx); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, err := b.authenticate(token)
	if err != nil {
		return "", err
	}
	if acc.verified {
		return alreadyVerifiedMessage, nil
	}
	return domain.VerificationSentMessage, nil
}

// VerifyEmail marks the account verified, as following the emailed link would.
func (b *Backend) VerifyEmail(email string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.emails[strings.ToLower(email)]
	if !ok {
		return false
	}
	acc := b.accounts[id]
	acc.verified = true
	if acc.user.Status == domain.UserPending {
		acc.user.Status = domain.UserActive
	}
	return true
}

func (b *Backend) RequestPasswordReset(ctx context.Context, _ string) (string, error) {
	if err := b.wait(ctx); err != nil {
		return "", err
	}
	return resetLinkSentMessage, nil
}

func (b *Backend) issueToken(userID string) string {
	token := uuid.NewString()
	b.tokens[token] = userID
	return token
}

func (b *Backend) authenticate(token string) (*account, error) {
	id, ok := b.tokens[token]
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	acc, ok := b.accounts[id]
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	return acc, nil
}

func (b *Backend) addAccount(name, email string, role domain.Role, hash []byte, verified bool) *account {
	acc := &account{
		user: domain.User{
			ID:       uuid.NewString(),
			Name:     name,
			Email:    email,
			Role:     role,
			Status:   domain.UserActive,
			JoinedAt: b.clock.Now(),
		},
		hash:     hash,
		verified: verified,
	}
	b.accounts[acc.user.ID] = acc
	b.emails[strings.ToLower(email)] = acc.user.ID
	b.wallets[acc.user.ID] = &domain.Wallet{Currency: "USD"}
	b.settings[acc.user.ID] = domain.NotificationSettings{Email: true, CampaignUpdates: true, PaymentReceipts: true}
	return acc
}
