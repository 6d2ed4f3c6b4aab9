package domain

import "context"

// DataProvider serves the non-auth resources. token may be empty for public reads.
type DataProvider interface {
	ListProjects(ctx context.Context, token string) ([]Project, error)
	GetProject(ctx context.Context, token, id string) (*Project, error)
	SetProjectStatus(ctx context.Context, token, id string, status ProjectStatus) error
	ListUsers(ctx context.Context, token string) ([]User, error)

	GetWallet(ctx context.Context, token string) (*Wallet, error)
	ListTransactions(ctx context.Context, token string) ([]Transaction, error)
	Deposit(ctx context.Context, token string, amount float64, method PaymentMethod) (*Transaction, error)
	Withdraw(ctx context.Context, token string, amount float64) (*Transaction, error)
	ProcessPayment(ctx context.Context, token string, payment Payment) (*Transaction, error)

	ListNotifications(ctx context.Context, token string) ([]Notification, error)
	MarkNotificationsRead(ctx context.Context, token string, ids []string) error
	DeleteNotification(ctx context.Context, token, id string) error
	GetNotificationSettings(ctx context.Context, token string) (*NotificationSettings, error)
	SaveNotificationSettings(ctx context.Context, token string, settings NotificationSettings) error

	SubmitSupport(ctx context.Context, req SupportRequest) error
}

// Backend is the full REST API contract. Implemented by the HTTP client and
// the in-process sample backend.
type Backend interface {
	AuthAPI
	DataProvider
	Ping(ctx context.Context) error
}
