package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/pscheid92/abrenfund/internal/domain"
	"github.com/pscheid92/abrenfund/internal/listing"
	apperrors "github.com/pscheid92/abrenfund/internal/platform/errors"
	"github.com/pscheid92/abrenfund/internal/validation"
)

// DefaultPageSize is the number of rows per dashboard table page.
const DefaultPageSize = 10

// Browse tabs.
const (
	TabActive    = "active"
	TabCompleted = "completed"
)

// View is one derived, paginated table.
type View[T any] struct {
	Rows  []T
	Page  listing.Page
	Query listing.Query
	Total int
}

func newView[T any](c *listing.Controller[T], page int) View[T] {
	rows, p := listing.Paginate(c.Visible(), page, DefaultPageSize)
	return View[T]{Rows: rows, Page: p, Query: c.Query(), Total: c.Len()}
}

type BrowseView struct {
	View[domain.Project]
	Tab        string
	Category   string
	Categories []string
}

// BrowseProjects lists public campaigns for a tab and optional category.
func (s *Service) BrowseProjects(ctx context.Context, token, tab, category string, q listing.Query, page int) (BrowseView, error) {
	all, err := s.backend.ListProjects(ctx, token)
	if err != nil {
		return BrowseView{}, toAppError(err)
	}

	want := domain.ProjectActive
	if tab == TabCompleted {
		want = domain.ProjectCompleted
	} else {
		tab = TabActive
	}

	var categories []string
	items := make([]domain.Project, 0, len(all))
	for _, p := range all {
		if p.Status != want {
			continue
		}
		if !slices.Contains(categories, p.Category) {
			categories = append(categories, p.Category)
		}
		if category == "" || strings.EqualFold(p.Category, category) {
			items = append(items, p)
		}
	}
	slices.Sort(categories)

	// Status is fixed by the tab.
	q.StatusFilter = listing.StatusAll
	c := listing.New(items, listing.ProjectSchema, listing.WithClock[domain.Project](s.clock)).WithQuery(q)
	return BrowseView{View: newView(c, page), Tab: tab, Category: category, Categories: categories}, nil
}

// Project returns a single campaign.
func (s *Service) Project(ctx context.Context, token, id string) (*domain.Project, error) {
	p, err := s.backend.GetProject(ctx, token, id)
	if err != nil {
		return nil, toAppError(err)
	}
	return p, nil
}

type CreatorView struct {
	View[domain.Project]
	Raised  float64
	Backers int
	Active  int
}

// CreatorProjects is the creator dashboard: the user's own campaigns and totals.
func (s *Service) CreatorProjects(ctx context.Context, token string, user domain.UserSummary, q listing.Query, page int) (CreatorView, error) {
	all, err := s.backend.ListProjects(ctx, token)
	if err != nil {
		return CreatorView{}, toAppError(err)
	}

	var v CreatorView
	own := make([]domain.Project, 0, len(all))
	for _, p := range all {
		if p.CreatorID != user.ID {
			continue
		}
		own = append(own, p)
		v.Raised += p.Raised
		v.Backers += p.Backers
		if p.Status == domain.ProjectActive {
			v.Active++
		}
	}

	c := listing.New(own, listing.ProjectSchema, listing.WithClock[domain.Project](s.clock)).WithQuery(q)
	v.View = newView(c, page)
	return v, nil
}

type AdminView struct {
	Projects View[domain.Project]
	Users    View[domain.User]
	Pending  int
}

// AdminDashboard returns both admin tabs. Non-admins get a not-found error.
func (s *Service) AdminDashboard(ctx context.Context, token string, user domain.UserSummary, projects, users listing.Query, page int) (AdminView, error) {
	if !user.IsAdmin() {
		return AdminView{}, apperrors.NotFoundError(msgNotFound)
	}

	c, err := s.adminProjects(ctx, token)
	if err != nil {
		return AdminView{}, err
	}
	list, err := s.backend.ListUsers(ctx, token)
	if err != nil {
		return AdminView{}, toAppError(err)
	}
	u := listing.NewUsers(list, listing.WithClock[domain.User](s.clock))

	return AdminView{
		Projects: newView(c.WithQuery(projects), page),
		Users:    newView(u.WithQuery(users), page),
		Pending:  c.Count(func(p domain.Project) bool { return p.Status == domain.ProjectPending }),
	}, nil
}

// ModerateProject approves or rejects a campaign and commits the change.
func (s *Service) ModerateProject(ctx context.Context, token string, user domain.UserSummary, action, id string) error {
	if !user.IsAdmin() {
		return apperrors.NotFoundError(msgNotFound)
	}

	c, err := s.adminProjects(ctx, token)
	if err != nil {
		return err
	}
	next, err := c.Apply(action, id)
	if err != nil {
		return listError(err)
	}

	return commit(next.Changes(), func(ch listing.Change) error {
		for _, pid := range ch.IDs {
			p, _ := next.Find(pid)
			if err := s.backend.SetProjectStatus(ctx, token, pid, p.Status); err != nil {
				return fmt.Errorf("failed to %s project %s: %w", ch.Action, pid, err)
			}
		}
		return nil
	})
}

func (s *Service) adminProjects(ctx context.Context, token string) (*listing.Controller[domain.Project], error) {
	list, err := s.backend.ListProjects(ctx, token)
	if err != nil {
		return nil, toAppError(err)
	}
	return listing.NewProjects(list, listing.WithClock[domain.Project](s.clock)), nil
}

type WalletView struct {
	Wallet       domain.Wallet
	Transactions View[domain.Transaction]
}

func (s *Service) Wallet(ctx context.Context, token string, q listing.Query, page int) (WalletView, error) {
	w, err := s.backend.GetWallet(ctx, token)
	if err != nil {
		return WalletView{}, toAppError(err)
	}
	txs, err := s.backend.ListTransactions(ctx, token)
	if err != nil {
		return WalletView{}, toAppError(err)
	}

	c := listing.NewTransactions(txs, listing.WithClock[domain.Transaction](s.clock)).WithQuery(q)
	return WalletView{Wallet: *w, Transactions: newView(c, page)}, nil
}

// Deposit validates the amount form and tops up the wallet.
func (s *Service) Deposit(ctx context.Context, token string, values validation.Values) (validation.Errors, *domain.Transaction, error) {
	method := domain.PaymentMethod(values["method"])
	if method != domain.MethodMobile {
		method = domain.MethodCard
	}
	return s.walletOp(values, func(amount float64) (*domain.Transaction, error) {
		return s.backend.Deposit(ctx, token, amount, method)
	})
}

// Withdraw validates the amount form and pays out from the wallet.
func (s *Service) Withdraw(ctx context.Context, token string, values validation.Values) (validation.Errors, *domain.Transaction, error) {
	return s.walletOp(values, func(amount float64) (*domain.Transaction, error) {
		return s.backend.Withdraw(ctx, token, amount)
	})
}

func (s *Service) walletOp(values validation.Values, op func(amount float64) (*domain.Transaction, error)) (validation.Errors, *domain.Transaction, error) {
	if errs := validation.Validate(values, validation.WalletAmountSet()); !errs.Valid() {
		return errs, nil, nil
	}
	amount, _ := validation.ParseAmount(values["amount"])

	tx, err := op(amount)
	if errors.Is(err, domain.ErrInsufficientFunds) {
		return validation.Errors{"amount": {msgInsufficient}}, nil, nil
	}
	if err != nil {
		return nil, nil, toAppError(err)
	}
	return nil, tx, nil
}

type NotificationsView struct {
	View[domain.Notification]
	Unread int
}

func (s *Service) Notifications(ctx context.Context, token string, q listing.Query, page int) (NotificationsView, error) {
	c, err := s.notifications(ctx, token)
	if err != nil {
		return NotificationsView{}, err
	}
	return NotificationsView{View: newView(c.WithQuery(q), page), Unread: listing.Unread(c)}, nil
}

// MarkNotificationRead marks one notification read.
func (s *Service) MarkNotificationRead(ctx context.Context, token, id string) error {
	return s.changeNotifications(ctx, token, func(c *listing.Controller[domain.Notification]) (*listing.Controller[domain.Notification], error) {
		return c.Apply(listing.ActionMarkRead, id)
	})
}

// MarkAllNotificationsRead marks every notification read in one call.
func (s *Service) MarkAllNotificationsRead(ctx context.Context, token string) error {
	return s.changeNotifications(ctx, token, func(c *listing.Controller[domain.Notification]) (*listing.Controller[domain.Notification], error) {
		return c.ApplyAll(listing.ActionMarkRead)
	})
}

func (s *Service) DeleteNotification(ctx context.Context, token, id string) error {
	return s.changeNotifications(ctx, token, func(c *listing.Controller[domain.Notification]) (*listing.Controller[domain.Notification], error) {
		return c.Delete(id)
	})
}

func (s *Service) changeNotifications(ctx context.Context, token string, mutate func(*listing.Controller[domain.Notification]) (*listing.Controller[domain.Notification], error)) error {
	c, err := s.notifications(ctx, token)
	if err != nil {
		return err
	}
	next, err := mutate(c)
	if err != nil {
		return listError(err)
	}

	return commit(next.Changes(), func(ch listing.Change) error {
		if ch.Action == listing.ActionDelete {
			for _, id := range ch.IDs {
				if err := s.backend.DeleteNotification(ctx, token, id); err != nil {
					return fmt.Errorf("failed to delete notification %s: %w", id, err)
				}
			}
			return nil
		}
		if len(ch.IDs) == 0 {
			return nil
		}
		if err := s.backend.MarkNotificationsRead(ctx, token, ch.IDs); err != nil {
			return fmt.Errorf("failed to mark notifications read: %w", err)
		}
		return nil
	})
}

func (s *Service) notifications(ctx context.Context, token string) (*listing.Controller[domain.Notification], error) {
	list, err := s.backend.ListNotifications(ctx, token)
	if err != nil {
		return nil, toAppError(err)
	}
	return listing.NewNotifications(list, listing.WithClock[domain.Notification](s.clock)), nil
}

func (s *Service) NotificationSettings(ctx context.Context, token string) (*domain.NotificationSettings, error) {
	settings, err := s.backend.GetNotificationSettings(ctx, token)
	if err != nil {
		return nil, toAppError(err)
	}
	return settings, nil
}

// SaveNotificationSettings stores the settings form. Unchecked boxes are
// absent from the form and read as false.
func (s *Service) SaveNotificationSettings(ctx context.Context, token string, values validation.Values) (domain.NotificationSettings, error) {
	settings := domain.NotificationSettings{
		Email:           checkbox(values["email"]),
		Push:            checkbox(values["push"]),
		CampaignUpdates: checkbox(values["campaignUpdates"]),
		PaymentReceipts: checkbox(values["paymentReceipts"]),
		Newsletter:      checkbox(values["newsletter"]),
	}
	if err := s.backend.SaveNotificationSettings(ctx, token, settings); err != nil {
		return settings, toAppError(err)
	}
	return settings, nil
}

// SubmitSupport validates and sends the support form.
func (s *Service) SubmitSupport(ctx context.Context, values validation.Values) (validation.Errors, error) {
	if errs := validation.Validate(values, validation.SupportSet()); !errs.Valid() {
		return errs, nil
	}
	req := domain.SupportRequest{
		Name:    strings.TrimSpace(values["name"]),
		Email:   strings.TrimSpace(values["email"]),
		Topic:   values["topic"],
		Message: strings.TrimSpace(values["message"]),
	}
	if err := s.backend.SubmitSupport(ctx, req); err != nil {
		return nil, toAppError(err)
	}
	return nil, nil
}

// commit sends a controller's change log to the backend in order and stops
// at the first failure.
func commit(changes []listing.Change, send func(listing.Change) error) error {
	for _, ch := range changes {
		if err := send(ch); err != nil {
			return toAppError(err)
		}
	}
	return nil
}

func listError(err error) error {
	switch {
	case errors.Is(err, listing.ErrItemNotFound):
		return apperrors.NotFoundError(msgNotFound)
	case errors.Is(err, listing.ErrUnknownAction):
		return apperrors.ValidationError("Unknown action")
	default:
		return toAppError(err)
	}
}
