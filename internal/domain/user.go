package domain

import (
	"context"
	"time"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
)

type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserSuspended UserStatus = "suspended"
	UserPending   UserStatus = "pending"
)

// UserSummary is the identity returned by the auth endpoints.
type UserSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Role          Role   `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

func (u UserSummary) IsAdmin() bool { return u.Role == RoleAdmin }

// User is a row in the admin users table.
type User struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Role     Role       `json:"role"`
	Status   UserStatus `json:"status"`
	JoinedAt time.Time  `json:"joined_at"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type Profile struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	Role                 Role   `json:"role,omitempty"`
}

// AuthResult is the {token, user} pair returned by login and register.
type AuthResult struct {
	Token string      `json:"token"`
	User  UserSummary `json:"user"`
}

// VerificationSentMessage is the exact message the API returns when a
// verification email was queued.
const VerificationSentMessage = "Verification link sent!"

type AuthAPI interface {
	Login(ctx context.Context, creds Credentials) (*AuthResult, error)
	Register(ctx context.Context, profile Profile) (*AuthResult, error)
	CurrentUser(ctx context.Context, token string) (*UserSummary, error)
	ResendVerification(ctx context.Context, token string) (string, error)
	RequestPasswordReset(ctx context.Context, email string) (string, error)
}
