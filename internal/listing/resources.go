package listing

import (
	"time"

	"github.com/pscheid92/abrenfund/internal/domain"
)

// Named actions exposed by the dashboard controllers.
const (
	ActionMarkRead = "markRead"
	ActionDelete   = "delete"
	ActionApprove  = "approve"
	ActionReject   = "reject"
)

var ProjectSchema = Schema[domain.Project]{
	ID:      func(p domain.Project) string { return p.ID },
	Display: func(p domain.Project) string { return p.Title },
	Status:  func(p domain.Project) string { return string(p.Status) },
	Date:    func(p domain.Project) time.Time { return p.CreatedAt },
	Amount:  func(p domain.Project) float64 { return p.Raised },
}

var UserSchema = Schema[domain.User]{
	ID:      func(u domain.User) string { return u.ID },
	Display: func(u domain.User) string { return u.Name },
	Search:  func(u domain.User) []string { return []string{u.Name, u.Email} },
	Status:  func(u domain.User) string { return string(u.Status) },
	Date:    func(u domain.User) time.Time { return u.JoinedAt },
}

var TransactionSchema = Schema[domain.Transaction]{
	ID:      func(t domain.Transaction) string { return t.ID },
	Display: func(t domain.Transaction) string { return t.Description },
	Status:  func(t domain.Transaction) string { return string(t.Status) },
	Date:    func(t domain.Transaction) time.Time { return t.CreatedAt },
	Amount:  func(t domain.Transaction) float64 { return t.Amount },
}

// NotificationSchema filters on "read"/"unread" rather than a status column.
var NotificationSchema = Schema[domain.Notification]{
	ID:      func(n domain.Notification) string { return n.ID },
	Display: func(n domain.Notification) string { return n.Title },
	Search:  func(n domain.Notification) []string { return []string{n.Title, n.Message} },
	Status: func(n domain.Notification) string {
		if n.Read {
			return "read"
		}
		return "unread"
	},
	Date: func(n domain.Notification) time.Time { return n.CreatedAt },
}

// NewProjects builds the admin project moderation list.
func NewProjects(items []domain.Project, opts ...Option[domain.Project]) *Controller[domain.Project] {
	opts = append([]Option[domain.Project]{
		WithAction[domain.Project](ActionApprove, func(p domain.Project) domain.Project {
			p.Status = domain.ProjectActive
			return p
		}),
		WithAction[domain.Project](ActionReject, func(p domain.Project) domain.Project {
			p.Status = domain.ProjectRejected
			return p
		}),
	}, opts...)
	return New(items, ProjectSchema, opts...)
}

func NewUsers(items []domain.User, opts ...Option[domain.User]) *Controller[domain.User] {
	return New(items, UserSchema, opts...)
}

func NewTransactions(items []domain.Transaction, opts ...Option[domain.Transaction]) *Controller[domain.Transaction] {
	return New(items, TransactionSchema, opts...)
}

func NewNotifications(items []domain.Notification, opts ...Option[domain.Notification]) *Controller[domain.Notification] {
	opts = append([]Option[domain.Notification]{
		WithAction[domain.Notification](ActionMarkRead, func(n domain.Notification) domain.Notification {
			n.Read = true
			return n
		}),
	}, opts...)
	return New(items, NotificationSchema, opts...)
}

// Unread counts unread notifications.
func Unread(c *Controller[domain.Notification]) int {
	return c.Count(func(n domain.Notification) bool { return !n.Read })
}
