package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pscheid92/abrenfund/internal/domain"
	"github.com/pscheid92/abrenfund/internal/listing"
	apperrors "github.com/pscheid92/abrenfund/internal/platform/errors"
	"github.com/pscheid92/abrenfund/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin   = domain.UserSummary{ID: "admin", Role: domain.RoleAdmin}
	creator = domain.UserSummary{ID: "c1", Role: domain.RoleCreator}
)

func testProjects() []domain.Project {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []domain.Project{
		{ID: "p1", Title: "Sustainable Agriculture Initiative", Category: "Environment", CreatorID: "c1", Raised: 9750, Backers: 124, Status: domain.ProjectActive, CreatedAt: base},
		{ID: "p2", Title: "Clean Water Well Project", Category: "Community", CreatorID: "c2", Raised: 25000, Backers: 310, Status: domain.ProjectCompleted, CreatedAt: base.Add(time.Hour)},
		{ID: "p3", Title: "Robotics Club", Category: "Technology", CreatorID: "c1", Raised: 3120, Backers: 47, Status: domain.ProjectActive, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "p4", Title: "Mental Health Week", Category: "Health", CreatorID: "c1", Status: domain.ProjectPending, CreatedAt: base.Add(3 * time.Hour)},
	}
}

func projectBackend() *mockBackend {
	return &mockBackend{
		listProjectsFn: func(context.Context, string) ([]domain.Project, error) { return testProjects(), nil },
	}
}

func ids[T any](rows []T, id func(T) string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = id(r)
	}
	return out
}

func projectIDs(rows []domain.Project) []string {
	return ids(rows, func(p domain.Project) string { return p.ID })
}

func TestBrowseProjects(t *testing.T) {
	env := newTestEnv(projectBackend())
	ctx := context.Background()

	v, err := env.svc.BrowseProjects(ctx, "", "", "", listing.Query{}, 1)
	require.NoError(t, err)
	assert.Equal(t, TabActive, v.Tab)
	assert.Equal(t, []string{"p1", "p3"}, projectIDs(v.Rows))
	assert.Equal(t, []string{"Environment", "Technology"}, v.Categories)

	v, err = env.svc.BrowseProjects(ctx, "", TabActive, "", listing.Query{SearchTerm: "agri"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, projectIDs(v.Rows))

	v, err = env.svc.BrowseProjects(ctx, "", TabActive, "technology", listing.Query{}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3"}, projectIDs(v.Rows))

	v, err = env.svc.BrowseProjects(ctx, "", TabCompleted, "", listing.Query{}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, projectIDs(v.Rows))
}

func TestBrowseProjects_BackendDown(t *testing.T) {
	env := newTestEnv(&mockBackend{
		listProjectsFn: func(context.Context, string) ([]domain.Project, error) {
			return nil, domain.ErrBackendUnavailable
		},
	})

	_, err := env.svc.BrowseProjects(context.Background(), "", "", "", listing.Query{}, 1)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeExternal))
}

func TestCreatorProjects(t *testing.T) {
	env := newTestEnv(projectBackend())

	v, err := env.svc.CreatorProjects(context.Background(), "tok", creator, listing.Query{SortKey: listing.SortAmountDesc}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p3", "p4"}, projectIDs(v.Rows))
	assert.InDelta(t, 12870, v.Raised, 0.001)
	assert.Equal(t, 171, v.Backers)
	assert.Equal(t, 2, v.Active)
}

func TestAdminDashboard_RequiresAdmin(t *testing.T) {
	env := newTestEnv(projectBackend())

	_, err := env.svc.AdminDashboard(context.Background(), "tok", creator, listing.Query{}, listing.Query{}, 1)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))
	assert.Zero(t, env.backend.called("ListProjects"))

	v, err := env.svc.AdminDashboard(context.Background(), "tok", admin, listing.Query{StatusFilter: "pending"}, listing.Query{}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"p4"}, projectIDs(v.Projects.Rows))
	assert.Equal(t, 1, v.Pending)
}

func TestModerateProject_CommitsStatus(t *testing.T) {
	backend := projectBackend()
	var got map[string]domain.ProjectStatus
	backend.setProjectStatusFn = func(_ context.Context, _ string, id string, status domain.ProjectStatus) error {
		if got == nil {
			got = make(map[string]domain.ProjectStatus)
		}
		got[id] = status
		return nil
	}
	env := newTestEnv(backend)
	ctx := context.Background()

	require.NoError(t, env.svc.ModerateProject(ctx, "tok", admin, listing.ActionApprove, "p4"))
	assert.Equal(t, map[string]domain.ProjectStatus{"p4": domain.ProjectActive}, got)

	require.NoError(t, env.svc.ModerateProject(ctx, "tok", admin, listing.ActionReject, "p3"))
	assert.Equal(t, domain.ProjectRejected, got["p3"])

	err := env.svc.ModerateProject(ctx, "tok", admin, listing.ActionApprove, "missing")
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))

	err = env.svc.ModerateProject(ctx, "tok", admin, "delete-everything", "p1")
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
}

func testNotifications() []domain.Notification {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []domain.Notification{
		{ID: "n1", Title: "Goal reached", Read: false, CreatedAt: base},
		{ID: "n2", Title: "Payment received", Read: true, CreatedAt: base.Add(time.Hour)},
		{ID: "n3", Title: "New campaign", Read: false, CreatedAt: base.Add(2 * time.Hour)},
	}
}

func TestMarkAllNotificationsRead_SendsEveryIDInOrder(t *testing.T) {
	var sent []string
	backend := &mockBackend{
		listNotificationsFn: func(context.Context, string) ([]domain.Notification, error) { return testNotifications(), nil },
		markReadFn: func(_ context.Context, _ string, ids []string) error {
			sent = ids
			return nil
		},
	}
	env := newTestEnv(backend)

	require.NoError(t, env.svc.MarkAllNotificationsRead(context.Background(), "tok"))
	assert.Equal(t, []string{"n1", "n2", "n3"}, sent)
	assert.Equal(t, 1, backend.called("MarkNotificationsRead"))
}

func TestNotifications(t *testing.T) {
	backend := &mockBackend{
		listNotificationsFn: func(context.Context, string) ([]domain.Notification, error) { return testNotifications(), nil },
	}
	env := newTestEnv(backend)
	ctx := context.Background()

	v, err := env.svc.Notifications(ctx, "tok", listing.Query{SortKey: listing.SortDateDesc}, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Unread)
	assert.Equal(t, []string{"n3", "n2", "n1"}, ids(v.Rows, func(n domain.Notification) string { return n.ID }))

	var deleted string
	backend.deleteNotificationFn = func(_ context.Context, _ string, id string) error {
		deleted = id
		return nil
	}
	require.NoError(t, env.svc.DeleteNotification(ctx, "tok", "n2"))
	assert.Equal(t, "n2", deleted)

	var marked []string
	backend.markReadFn = func(_ context.Context, _ string, ids []string) error {
		marked = ids
		return nil
	}
	require.NoError(t, env.svc.MarkNotificationRead(ctx, "tok", "n3"))
	assert.Equal(t, []string{"n3"}, marked)

	err = env.svc.DeleteNotification(ctx, "tok", "nope")
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))
}

func TestNotifications_CommitFailure(t *testing.T) {
	backend := &mockBackend{
		listNotificationsFn: func(context.Context, string) ([]domain.Notification, error) { return testNotifications(), nil },
		markReadFn: func(context.Context, string, []string) error {
			return errors.Join(domain.ErrBackendUnavailable, errors.New("connection refused"))
		},
	}
	env := newTestEnv(backend)

	err := env.svc.MarkAllNotificationsRead(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeExternal))
}

func TestWallet(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	backend := &mockBackend{
		getWalletFn: func(context.Context, string) (*domain.Wallet, error) {
			return &domain.Wallet{Balance: 1200, Currency: "ETB"}, nil
		},
		listTransactionsFn: func(context.Context, string) ([]domain.Transaction, error) {
			return []domain.Transaction{
				{ID: "t1", Kind: domain.TxDeposit, Amount: 1000, Status: domain.TxCompleted, CreatedAt: base},
				{ID: "t2", Kind: domain.TxContribution, Amount: 250, Status: domain.TxPending, CreatedAt: base.Add(time.Hour)},
			}, nil
		},
	}
	env := newTestEnv(backend)

	v, err := env.svc.Wallet(context.Background(), "tok", listing.Query{StatusFilter: "pending"}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1200, v.Wallet.Balance, 0.001)
	require.Len(t, v.Transactions.Rows, 1)
	assert.Equal(t, "t2", v.Transactions.Rows[0].ID)
	assert.Equal(t, 2, v.Transactions.Total)
}

func TestWithdraw(t *testing.T) {
	backend := &mockBackend{
		withdrawFn: func(_ context.Context, _ string, amount float64) (*domain.Transaction, error) {
			if amount > 100 {
				return nil, domain.ErrInsufficientFunds
			}
			return &domain.Transaction{ID: "tx", Amount: amount}, nil
		},
	}
	env := newTestEnv(backend)
	ctx := context.Background()

	errs, tx, err := env.svc.Withdraw(ctx, "tok", validation.Values{"amount": "abc"})
	require.NoError(t, err)
	assert.Nil(t, tx)
	assert.NotEmpty(t, errs.First("amount"))
	assert.Zero(t, backend.called("Withdraw"))

	errs, tx, err = env.svc.Withdraw(ctx, "tok", validation.Values{"amount": "500"})
	require.NoError(t, err)
	assert.Nil(t, tx)
	assert.Equal(t, msgInsufficient, errs.First("amount"))

	errs, tx, err = env.svc.Withdraw(ctx, "tok", validation.Values{"amount": "50"})
	require.NoError(t, err)
	assert.True(t, errs.Valid())
	assert.InDelta(t, 50, tx.Amount, 0.001)
}

func TestDeposit_DefaultsToCard(t *testing.T) {
	var method domain.PaymentMethod
	backend := &mockBackend{
		depositFn: func(_ context.Context, _ string, amount float64, m domain.PaymentMethod) (*domain.Transaction, error) {
			method = m
			return &domain.Transaction{ID: "tx", Amount: amount}, nil
		},
	}
	env := newTestEnv(backend)

	_, tx, err := env.svc.Deposit(context.Background(), "tok", validation.Values{"amount": "75.50", "method": "wallet"})
	require.NoError(t, err)
	assert.Equal(t, domain.MethodCard, method)
	assert.InDelta(t, 75.5, tx.Amount, 0.001)
}

func TestSaveNotificationSettings(t *testing.T) {
	var saved domain.NotificationSettings
	backend := &mockBackend{
		saveSettingsFn: func(_ context.Context, _ string, s domain.NotificationSettings) error {
			saved = s
			return nil
		},
	}
	env := newTestEnv(backend)

	_, err := env.svc.SaveNotificationSettings(context.Background(), "tok", validation.Values{"email": "on", "paymentReceipts": "true"})
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationSettings{Email: true, PaymentReceipts: true}, saved)
}

func TestSubmitSupport(t *testing.T) {
	var got domain.SupportRequest
	backend := &mockBackend{
		submitSupportFn: func(_ context.Context, req domain.SupportRequest) error {
			got = req
			return nil
		},
	}
	env := newTestEnv(backend)
	ctx := context.Background()

	errs, err := env.svc.SubmitSupport(ctx, validation.Values{"name": "A", "email": "a@b.co", "topic": "weather", "message": "short"})
	require.NoError(t, err)
	assert.Equal(t, "Please choose a valid topic", errs.First("topic"))
	assert.Equal(t, "Message must be at least 10 characters", errs.First("message"))
	assert.Zero(t, backend.called("SubmitSupport"))

	errs, err = env.svc.SubmitSupport(ctx, validation.Values{"name": "A", "email": "a@b.co", "topic": "payments", "message": "  My payment is stuck.  "})
	require.NoError(t, err)
	assert.True(t, errs.Valid())
	assert.Equal(t, "My payment is stuck.", got.Message)
}
