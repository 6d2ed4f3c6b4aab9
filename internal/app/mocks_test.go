package app

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/abrenfund/internal/adapter/memory"
	"github.com/pscheid92/abrenfund/internal/domain"
	"github.com/pscheid92/abrenfund/internal/session"
)

type mockBackend struct {
	loginFn              func(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error)
	registerFn           func(ctx context.Context, profile domain.Profile) (*domain.AuthResult, error)
	currentUserFn        func(ctx context.Context, token string) (*domain.UserSummary, error)
	resendVerificationFn func(ctx context.Context, token string) (string, error)
	passwordResetFn      func(ctx context.Context, email string) (string, error)

	listProjectsFn       func(ctx context.Context, token string) ([]domain.Project, error)
	getProjectFn         func(ctx context.Context, token, id string) (*domain.Project, error)
	setProjectStatusFn   func(ctx context.Context, token, id string, status domain.ProjectStatus) error
	listUsersFn          func(ctx context.Context, token string) ([]domain.User, error)
	getWalletFn          func(ctx context.Context, token string) (*domain.Wallet, error)
	listTransactionsFn   func(ctx context.Context, token string) ([]domain.Transaction, error)
	depositFn            func(ctx context.Context, token string, amount float64, method domain.PaymentMethod) (*domain.Transaction, error)
	withdrawFn           func(ctx context.Context, token string, amount float64) (*domain.Transaction, error)
	processPaymentFn     func(ctx context.Context, token string, payment domain.Payment) (*domain.Transaction, error)
	listNotificationsFn  func(ctx context.Context, token string) ([]domain.Notification, error)
	markReadFn           func(ctx context.Context, token string, ids []string) error
	deleteNotificationFn func(ctx context.Context, token, id string) error
	getSettingsFn        func(ctx context.Context, token string) (*domain.NotificationSettings, error)
	saveSettingsFn       func(ctx context.Context, token string, settings domain.NotificationSettings) error
	submitSupportFn      func(ctx context.Context, req domain.SupportRequest) error
	pingFn               func(ctx context.Context) error

	mu    sync.Mutex
	calls []string
}

func (m *mockBackend) record(name string) {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.mu.Unlock()
}

func (m *mockBackend) called(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (m *mockBackend) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
	m.record("Login")
	if m.loginFn != nil {
		return m.loginFn(ctx, creds)
	}
	return nil, domain.ErrInvalidCredentials
}

func (m *mockBackend) Register(ctx context.Context, profile domain.Profile) (*domain.AuthResult, error) {
	m.record("Register")
	if m.registerFn != nil {
		return m.registerFn(ctx, profile)
	}
	return &domain.AuthResult{Token: "new-token", User: domain.UserSummary{ID: "u-new", Email: profile.Email, Name: profile.Name, Role: profile.Role}}, nil
}

func (m *mockBackend) CurrentUser(ctx context.Context, token string) (*domain.UserSummary, error) {
	m.record("CurrentUser")
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, token)
	}
	return nil, domain.ErrUnauthenticated
}

func (m *mockBackend) ResendVerification(ctx context.Context, token string) (string, error) {
	m.record("ResendVerification")
	if m.resendVerificationFn != nil {
		return m.resendVerificationFn(ctx, token)
	}
	return domain.VerificationSentMessage, nil
}

func (m *mockBackend) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	m.record("RequestPasswordReset")
	if m.passwordResetFn != nil {
		return m.passwordResetFn(ctx, email)
	}
	return "If that address exists, a reset link is on its way.", nil
}

func (m *mockBackend) ListProjects(ctx context.Context, token string) ([]domain.Project, error) {
	m.record("ListProjects")
	if m.listProjectsFn != nil {
		return m.listProjectsFn(ctx, token)
	}
	return nil, nil
}

func (m *mockBackend) GetProject(ctx context.Context, token, id string) (*domain.Project, error) {
	m.record("GetProject")
	if m.getProjectFn != nil {
		return m.getProjectFn(ctx, token, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockBackend) SetProjectStatus(ctx context.Context, token, id string, status domain.ProjectStatus) error {
	m.record("SetProjectStatus")
	if m.setProjectStatusFn != nil {
		return m.setProjectStatusFn(ctx, token, id, status)
	}
	return nil
}

func (m *mockBackend) ListUsers(ctx context.Context, token string) ([]domain.User, error) {
	m.record("ListUsers")
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx, token)
	}
	return nil, nil
}

func (m *mockBackend) GetWallet(ctx context.Context, token string) (*domain.Wallet, error) {
	m.record("GetWallet")
	if m.getWalletFn != nil {
		return m.getWalletFn(ctx, token)
	}
	return &domain.Wallet{Currency: "ETB"}, nil
}

func (m *mockBackend) ListTransactions(ctx context.Context, token string) ([]domain.Transaction, error) {
	m.record("ListTransactions")
	if m.listTransactionsFn != nil {
		return m.listTransactionsFn(ctx, token)
	}
	return nil, nil
}

func (m *mockBackend) Deposit(ctx context.Context, token string, amount float64, method domain.PaymentMethod) (*domain.Transaction, error) {
	m.record("Deposit")
	if m.depositFn != nil {
		return m.depositFn(ctx, token, amount, method)
	}
	return &domain.Transaction{ID: "tx-dep", Kind: domain.TxDeposit, Amount: amount, Method: string(method)}, nil
}

func (m *mockBackend) Withdraw(ctx context.Context, token string, amount float64) (*domain.Transaction, error) {
	m.record("Withdraw")
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, token, amount)
	}
	return &domain.Transaction{ID: "tx-wd", Kind: domain.TxWithdrawal, Amount: amount}, nil
}

func (m *mockBackend) ProcessPayment(ctx context.Context, token string, payment domain.Payment) (*domain.Transaction, error) {
	m.record("ProcessPayment")
	if m.processPaymentFn != nil {
		return m.processPaymentFn(ctx, token, payment)
	}
	return &domain.Transaction{ID: "tx-pay", Kind: domain.TxContribution, Amount: payment.Amount, ProjectID: payment.ProjectID}, nil
}

func (m *mockBackend) ListNotifications(ctx context.Context, token string) ([]domain.Notification, error) {
	m.record("ListNotifications")
	if m.listNotificationsFn != nil {
		return m.listNotificationsFn(ctx, token)
	}
	return nil, nil
}

func (m *mockBackend) MarkNotificationsRead(ctx context.Context, token string, ids []string) error {
	m.record("MarkNotificationsRead")
	if m.markReadFn != nil {
		return m.markReadFn(ctx, token, ids)
	}
	return nil
}

func (m *mockBackend) DeleteNotification(ctx context.Context, token, id string) error {
	m.record("DeleteNotification")
	if m.deleteNotificationFn != nil {
		return m.deleteNotificationFn(ctx, token, id)
	}
	return nil
}

func (m *mockBackend) GetNotificationSettings(ctx context.Context, token string) (*domain.NotificationSettings, error) {
	m.record("GetNotificationSettings")
	if m.getSettingsFn != nil {
		return m.getSettingsFn(ctx, token)
	}
	return &domain.NotificationSettings{}, nil
}

func (m *mockBackend) SaveNotificationSettings(ctx context.Context, token string, settings domain.NotificationSettings) error {
	m.record("SaveNotificationSettings")
	if m.saveSettingsFn != nil {
		return m.saveSettingsFn(ctx, token, settings)
	}
	return nil
}

func (m *mockBackend) SubmitSupport(ctx context.Context, req domain.SupportRequest) error {
	m.record("SubmitSupport")
	if m.submitSupportFn != nil {
		return m.submitSupportFn(ctx, req)
	}
	return nil
}

func (m *mockBackend) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

type mockMarker struct {
	mu       sync.Mutex
	token    string
	remember bool
	cleared  int
}

func (m *mockMarker) Save(token string, remember bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.remember = token, remember
	return nil
}

func (m *mockMarker) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.cleared++
	return nil
}

type recordingFlowObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingFlowObserver) Transition(flow, event, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, flow+"/"+event+"/"+result)
}

func (o *recordingFlowObserver) got() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

type testEnv struct {
	svc      *Service
	backend  *mockBackend
	registry *session.Registry
	store    *memory.FlowStore
	clock    *clockwork.FakeClock
}

func newTestEnv(backend *mockBackend, opts ...Option) *testEnv {
	clock := clockwork.NewFakeClock()
	registry := session.NewRegistry(backend, time.Hour, clock)
	store := memory.NewFlowStore(clock)
	cfg := Config{
		FlowTTL:              time.Hour,
		BusyTimeout:          30 * time.Second,
		PaymentRedirectDelay: 3 * time.Second,
	}
	return &testEnv{
		svc:      NewService(backend, registry, store, clock, cfg, opts...),
		backend:  backend,
		registry: registry,
		store:    store,
		clock:    clock,
	}
}
