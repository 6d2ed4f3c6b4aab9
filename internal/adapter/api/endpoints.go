package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/pscheid92/abrenfund/internal/domain"
)

type envelope[T any] struct {
	Data T `json:"data"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func get[T any](ctx context.Context, c *Client, op, path, token string) (T, error) {
	var out envelope[T]
	err := c.send(ctx, request{op: op, method: http.MethodGet, path: path, token: token, out: &out})
	return out.Data, err
}

func (c *Client) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
	var out domain.AuthResult
	err := c.send(ctx, request{op: "login", method: http.MethodPost, path: "/api/login", body: creds, out: &out})

	var (
		fe *domain.FieldErrors
		se *StatusError
	)
	if errors.Is(err, domain.ErrUnauthenticated) || errors.As(err, &fe) || (errors.As(err, &se) && se.Code == http.StatusUnprocessableEntity) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, profile domain.Profile) (*domain.AuthResult, error) {
	var out domain.AuthResult
	if err := c.send(ctx, request{op: "register", method: http.MethodPost, path: "/api/register", body: profile, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CurrentUser(ctx context.Context, token string) (*domain.UserSummary, error) {
	var out struct {
		User domain.UserSummary `json:"user"`
	}
	if err := c.send(ctx, request{op: "current_user", method: http.MethodGet, path: "/api/user", token: token, out: &out}); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) ResendVerification(ctx context.Context, token string) (string, error) {
	var out messageResponse
	err := c.send(ctx, request{op: "resend_verification", method: http.MethodPost, path: "/api/email/verification-notification", token: token, out: &out})
	return out.Message, err
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	var out messageResponse
	body := map[string]string{"email": email}
	err := c.send(ctx, request{op: "forgot_password", method: http.MethodPost, path: "/api/forgot-password", body: body, out: &out})
	return out.Message, err
}

func (c *Client) ListProjects(ctx context.Context, token string) ([]domain.Project, error) {
	return get[[]domain.Project](ctx, c, "list_projects", "/api/campaigns", token)
}

func (c *Client) GetProject(ctx context.Context, token, id string) (*domain.Project, error) {
	p, err := get[domain.Project](ctx, c, "get_project", "/api/campaigns/"+url.PathEscape(id), token)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) SetProjectStatus(ctx context.Context, token, id string, status domain.ProjectStatus) error {
	body := map[string]domain.ProjectStatus{"status": status}
	return c.send(ctx, request{op: "set_project_status", method: http.MethodPatch, path: "/api/campaigns/" + url.PathEscape(id), token: token, body: body})
}

func (c *Client) ListUsers(ctx context.Context, token string) ([]domain.User, error) {
	return get[[]domain.User](ctx, c, "list_users", "/api/admin/users", token)
}

func (c *Client) GetWallet(ctx context.Context, token string) (*domain.Wallet, error) {
	w, err := get[domain.Wallet](ctx, c, "get_wallet", "/api/wallet", token)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (c *Client) ListTransactions(ctx context.Context, token string) ([]domain.Transaction, error) {
	return get[[]domain.Transaction](ctx, c, "list_transactions", "/api/wallet/transactions", token)
}

func (c *Client) Deposit(ctx context.Context, token string, amount float64, method domain.PaymentMethod) (*domain.Transaction, error) {
	body := map[string]any{"amount": amount, "method": method}
	return c.transaction(ctx, "deposit", "/api/wallet/deposit", token, body)
}

func (c *Client) Withdraw(ctx context.Context, token string, amount float64) (*domain.Transaction, error) {
	body := map[string]any{"amount": amount}
	return c.transaction(ctx, "withdraw", "/api/wallet/withdraw", token, body)
}

func (c *Client) ProcessPayment(ctx context.Context, token string, payment domain.Payment) (*domain.Transaction, error) {
	return c.transaction(ctx, "process_payment", "/api/payments", token, payment)
}

func (c *Client) transaction(ctx context.Context, op, path, token string, body any) (*domain.Transaction, error) {
	var out envelope[domain.Transaction]
	if err := c.send(ctx, request{op: op, method: http.MethodPost, path: path, token: token, body: body, out: &out}); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) ListNotifications(ctx context.Context, token string) ([]domain.Notification, error) {
	return get[[]domain.Notification](ctx, c, "list_notifications", "/api/notifications", token)
}

func (c *Client) MarkNotificationsRead(ctx context.Context, token string, ids []string) error {
	body := map[string][]string{"ids": ids}
	return c.send(ctx, request{op: "mark_notifications_read", method: http.MethodPost, path: "/api/notifications/read", token: token, body: body})
}

func (c *Client) DeleteNotification(ctx context.Context, token, id string) error {
	return c.send(ctx, request{op: "delete_notification", method: http.MethodDelete, path: "/api/notifications/" + url.PathEscape(id), token: token})
}

func (c *Client) GetNotificationSettings(ctx context.Context, token string) (*domain.NotificationSettings, error) {
	s, err := get[domain.NotificationSettings](ctx, c, "get_notification_settings", "/api/notification-settings", token)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) SaveNotificationSettings(ctx context.Context, token string, settings domain.NotificationSettings) error {
	return c.send(ctx, request{op: "save_notification_settings", method: http.MethodPut, path: "/api/notification-settings", token: token, body: settings})
}

func (c *Client) SubmitSupport(ctx context.Context, req domain.SupportRequest) error {
	return c.send(ctx, request{op: "submit_support", method: http.MethodPost, path: "/api/support", body: req})
}

// Ping reports whether the backend answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.attempt(ctx, request{op: "ping", method: http.MethodGet, path: "/api/health"})
}
