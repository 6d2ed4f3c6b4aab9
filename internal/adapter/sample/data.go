package sample

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
	"github.com/pscheid92/abrenfund/internal/domain"
)

func (b *Backend) ListProjects(ctx context.Context, _ string) ([]domain.Project, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.projects), nil
}

func (b *Backend) GetProject(ctx context.Context, _ string, id string) (*domain.Project, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.projectIndex(id)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	p := b.projects[i]
	return &p, nil
}

func (b *Backend) SetProjectStatus(ctx context.Context, token, id string, status domain.ProjectStatus) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.requireAdmin(token); err != nil {
		return err
	}
	i := b.projectIndex(id)
	if i < 0 {
		return domain.ErrNotFound
	}
	b.projects[i].Status = status
	return nil
}

func (b *Backend) ListUsers(ctx context.Context, token string) ([]domain.User, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.requireAdmin(token); err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(b.accounts))
	for _, acc := range b.accounts {
		users = append(users, acc.user)
	}
	slices.SortFunc(users, func(a, c domain.User) int { return a.JoinedAt.Compare(c.JoinedAt) })
	return users, nil
}

func (b *Backend) GetWallet(ctx context.Context, token string) (*domain.Wallet, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, err := b.authenticate(token)
	if err != nil {
		return nil, err
	}
	w := *b.wallets[acc.user.ID]
	return &w, nil
}

func (b *Backend) ListTransactions(ctx context.Context, token string) ([]domain.Transaction, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, err := b.authenticate(token)
	if err != nil {
		return nil, err
	}
	return slices.Clone(b.transactions[acc.user.ID]), nil
}

func (b *Backend) Deposit(ctx context.Context, token string, amount float64, method domain.PaymentMethod) (*domain.Transaction, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, err := b.authenticate(token)
	if err != nil {
		return nil, err
	}
	b.wallets[acc.user.ID].Balance = round2(b.wallets[acc.user.ID].Balance + amount)
	return b.record(acc.user.ID, domain.TxDeposit, amount, "", "Wallet top-up", string(method)), nil
}

func (b *Backend) Withdraw(ctx context.Context, token string, amount float64) (*domain.Transaction, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, err := b.authenticate(token)
	if err != nil {
		return nil, err
	}
	w := b.wallets[acc.user.ID]
	if w.Balance < amount {
		return nil, domain.ErrInsufficientFunds
	}
	w.Balance = round2(w.Balance - amount)
	return b.record(acc.user.ID, domain.TxWithdrawal, amount, "", "Withdrawal to bank account", "bank"), nil
}

func (b *Backend) ProcessPayment(ctx context.Context, token string, payment domain.Payment) (*domain.Transaction, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, err := b.authenticate(token)
	if err != nil {
		return nil, err
	}
	i := b.projectIndex(payment.ProjectID)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	project := &b.projects[i]
	if project.Status != domain.ProjectActive {
		return nil, &domain.FieldErrors{
			Message: "This campaign is not accepting contributions.",
			Fields:  map[string][]string{"project": {"This campaign is not accepting contributions."}},
		}
	}

	switch payment.Method {
	case domain.MethodWallet:
		w := b.wallets[acc.user.ID]
		if w.Balance < payment.Amount {
			return nil, domain.ErrInsufficientFunds
		}
		w.Balance = round2(w.Balance - payment.Amount)
	case domain.MethodCard:
		if payment.CardLast4 == DeclinedCardLast4 {
			return nil, &domain.FieldErrors{
				Message: "Your card was declined.",
				Fields:  map[string][]string{"cardNumber": {"Your card was declined."}},
			}
		}
	case domain.MethodMobile:
	default:
		return nil, fmt.Errorf("unsupported payment method %q", payment.Method)
	}

	project.Raised = round2(project.Raised + payment.Amount)
	project.Backers++

	tx := b.record(acc.user.ID, domain.TxContribution, payment.Amount, project.ID, "Contribution to "+project.Title, string(payment.Method))
	b.notifications[acc.user.ID] = append([]domain.Notification{{
		ID:        uuid.NewString(),
		Title:     "Payment received",
		Message:   fmt.Sprintf("Your contribution of $%.2f to %s was processed.", payment.Amount, project.Title),
		Kind:      domain.NotifyPayment,
		CreatedAt: tx.CreatedAt,
	}}, b.notifications[acc.user.ID]...)
	return tx, nil
}

func (b *Backend) ListNotifications(ctx context.Context, token string) ([]domain.Notification, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, err := b.authenticate(token)
	if err != nil {
		return nil, err
	}
	return slices.Clone(b.notifications[acc.user.ID]), nil
}

func (b *Backend) MarkNotificationsRead(ctx context.Context, token string, ids []string) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, err := b.authenticate(token)
	if err != nil {
		return err
	}
	list := b.notifications[acc.user.ID]
	for i := range list {
		if slices.Contains(ids, list[i].ID) {
			list[i].Read = true
		}
	}
	return nil
}

func (b *Backend) DeleteNotification(ctx context.Context, token, id string) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, err := b.authenticate(token)
	if err != nil {
		return err
	}
	list := b.notifications[acc.user.ID]
	i := slices.IndexFunc(list, func(n domain.Notification) bool { return n.ID == id })
	if i < 0 {
		return domain.ErrNotFound
	}
	b.notifications[acc.user.ID] = slices.Delete(list, i, i+1)
	return nil
}

func (b *Backend) GetNotificationSettings(ctx context.Context, token string) (*domain.NotificationSettings, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, err := b.authenticate(token)
	if err != nil {
		return nil, err
	}
	s := b.settings[acc.user.ID]
	return &s, nil
}

func (b *Backend) SaveNotificationSettings(ctx context.Context, token string, settings domain.NotificationSettings) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, err := b.authenticate(token)
	if err != nil {
		return err
	}
	b.settings[acc.user.ID] = settings
	return nil
}

func (b *Backend) SubmitSupport(ctx context.Context, req domain.SupportRequest) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.support = append(b.support, req)
	return nil
}

// SupportRequests returns the submitted support requests.
func (b *Backend) SupportRequests() []domain.SupportRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.support)
}

func (b *Backend) requireAdmin(token string) (*account, error) {
	acc, err := b.authenticate(token)
	if err != nil {
		return nil, err
	}
	if acc.user.Role != domain.RoleAdmin {
		return nil, domain.ErrForbidden
	}
	return acc, nil
}

func (b *Backend) projectIndex(id string) int {
	return slices.IndexFunc(b.projects, func(p domain.Project) bool { return p.ID == id })
}

// record prepends a completed transaction to the user's history.
func (b *Backend) record(userID string, kind domain.TransactionKind, amount float64, projectID, description, method string) *domain.Transaction {
	tx := domain.Transaction{
		ID:          uuid.NewString(),
		Kind:        kind,
		Amount:      amount,
		Status:      domain.TxCompleted,
		ProjectID:   projectID,
		Description: description,
		Method:      method,
		CreatedAt:   b.clock.Now(),
	}
	b.transactions[userID] = append([]domain.Transaction{tx}, b.transactions[userID]...)
	return &tx
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
