package httpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/abrenfund/internal/domain"
	apperrors "github.com/pscheid92/abrenfund/internal/platform/errors"
	"github.com/pscheid92/abrenfund/internal/validation"
)

const (
	msgSettingsSaved = "Notification settings saved."
	msgAllRead       = "All notifications marked as read."
)

func (s *Server) registerDashboardRoutes(g *echo.Group, csrfMiddleware echo.MiddlewareFunc) {
	auth := []echo.MiddlewareFunc{s.requireAuth, csrfMiddleware}

	g.GET("/dashboard", s.handleDashboard, auth...)
	g.GET("/creator", s.handleCreator, auth...)
	g.GET("/admin", s.handleAdmin, auth...)
	g.POST("/admin/projects/:id/:action", s.handleModerate, auth...)

	g.GET("/wallet", s.handleWallet, auth...)
	g.POST("/wallet/deposit", s.handleDeposit, auth...)
	g.POST("/wallet/withdraw", s.handleWithdraw, auth...)

	g.GET("/notifications", s.handleNotifications, auth...)
	g.POST("/notifications/read-all", s.handleMarkAllRead, auth...)
	g.POST("/notifications/:id/read", s.handleMarkRead, auth...)
	g.POST("/notifications/:id/delete", s.handleDeleteNotification, auth...)
	g.GET("/settings/notifications", s.handleNotificationSettings, auth...)
	g.POST("/settings/notifications", s.handleSaveNotificationSettings, auth...)
}

// handleDashboard sends each role to its home page.
func (s *Server) handleDashboard(c echo.Context) error {
	switch userFrom(c).Role {
	case domain.RoleAdmin:
		return s.redirect(c, "/admin")
	case domain.RoleCreator:
		return s.redirect(c, "/creator")
	default:
		return s.redirect(c, "/wallet")
	}
}

func (s *Server) handleCreator(c echo.Context) error {
	q, page := listQuery(c, "")
	view, err := s.app.CreatorProjects(c.Request().Context(), tokenFrom(c), userFrom(c), q, page)
	if err != nil {
		return err
	}
	return s.page(c, http.StatusOK, "creator.html", "My campaigns", map[string]any{
		"View": view,
	})
}

func (s *Server) handleAdmin(c echo.Context) error {
	projects, page := listQuery(c, "")
	users, _ := listQuery(c, "u_")
	view, err := s.app.AdminDashboard(c.Request().Context(), tokenFrom(c), userFrom(c), projects, users, page)
	if err != nil {
		return err
	}
	tab := c.QueryParam("tab")
	if tab != "users" {
		tab = "projects"
	}
	return s.page(c, http.StatusOK, "admin.html", "Admin", map[string]any{
		"View": view,
		"Tab":  tab,
	})
}

func (s *Server) handleModerate(c echo.Context) error {
	err := s.app.ModerateProject(c.Request().Context(), tokenFrom(c), userFrom(c), c.Param("action"), c.Param("id"))
	if err != nil {
		return err
	}
	visitorFrom(c).Flash(fmt.Sprintf("Campaign %s.", moderatedLabel(c.Param("action"))))
	return s.redirect(c, backTarget(c))
}

func moderatedLabel(action string) string {
	switch action {
	case "approve":
		return "approved"
	case "reject":
		return "rejected"
	default:
		return "updated"
	}
}

func (s *Server) handleWallet(c echo.Context) error {
	q, page := listQuery(c, "")
	view, err := s.app.Wallet(c.Request().Context(), tokenFrom(c), q, page)
	if err != nil {
		return err
	}
	return s.page(c, http.StatusOK, "wallet.html", "Wallet", map[string]any{
		"View":       view,
		"Form":       map[string]string{},
		"FailedForm": "",
	})
}

func (s *Server) handleDeposit(c echo.Context) error {
	return s.walletOp(c, "deposit", s.app.Deposit)
}

func (s *Server) handleWithdraw(c echo.Context) error {
	return s.walletOp(c, "withdraw", s.app.Withdraw)
}

type walletFunc func(ctx context.Context, token string, values validation.Values) (validation.Errors, *domain.Transaction, error)

// walletOp runs a deposit or withdrawal. Field errors re-render the wallet
// with the form that failed; success redirects back with a flash.
func (s *Server) walletOp(c echo.Context, form string, op walletFunc) error {
	values, err := formValues(c)
	if err != nil {
		return apperrors.ValidationError("Invalid form submission")
	}

	ctx := c.Request().Context()
	errs, tx, err := op(ctx, tokenFrom(c), values)
	if err != nil {
		return err
	}
	if !errs.Valid() {
		q, page := listQuery(c, "")
		view, err := s.app.Wallet(ctx, tokenFrom(c), q, page)
		if err != nil {
			return err
		}
		return s.page(c, http.StatusBadRequest, "wallet.html", "Wallet", map[string]any{
			"View":       view,
			"Form":       map[string]string{"amount": values["amount"]},
			"FailedForm": form,
			"Errors":     errs,
		})
	}

	visitorFrom(c).Flash(fmt.Sprintf("%s of %s completed.", txLabel(tx.Kind), formatMoney(tx.Amount)))
	return s.redirect(c, "/wallet")
}

func txLabel(kind domain.TransactionKind) string {
	switch kind {
	case domain.TxDeposit:
		return "Deposit"
	case domain.TxWithdrawal:
		return "Withdrawal"
	default:
		return "Transaction"
	}
}

func (s *Server) handleNotifications(c echo.Context) error {
	q, page := listQuery(c, "")
	view, err := s.app.Notifications(c.Request().Context(), tokenFrom(c), q, page)
	if err != nil {
		return err
	}
	return s.page(c, http.StatusOK, "notifications.html", "Notifications", map[string]any{
		"View": view,
	})
}

func (s *Server) handleMarkRead(c echo.Context) error {
	if err := s.app.MarkNotificationRead(c.Request().Context(), tokenFrom(c), c.Param("id")); err != nil {
		return err
	}
	return s.redirect(c, backTarget(c))
}

func (s *Server) handleMarkAllRead(c echo.Context) error {
	if err := s.app.MarkAllNotificationsRead(c.Request().Context(), tokenFrom(c)); err != nil {
		return err
	}
	visitorFrom(c).Flash(msgAllRead)
	return s.redirect(c, "/notifications")
}

func (s *Server) handleDeleteNotification(c echo.Context) error {
	if err := s.app.DeleteNotification(c.Request().Context(), tokenFrom(c), c.Param("id")); err != nil {
		return err
	}
	return s.redirect(c, backTarget(c))
}

func (s *Server) handleNotificationSettings(c echo.Context) error {
	settings, err := s.app.NotificationSettings(c.Request().Context(), tokenFrom(c))
	if err != nil {
		return err
	}
	return s.page(c, http.StatusOK, "notification_settings.html", "Notification settings", map[string]any{
		"Settings": settings,
	})
}

func (s *Server) handleSaveNotificationSettings(c echo.Context) error {
	values, err := formValues(c)
	if err != nil {
		return apperrors.ValidationError("Invalid form submission")
	}
	if _, err := s.app.SaveNotificationSettings(c.Request().Context(), tokenFrom(c), values); err != nil {
		return err
	}
	visitorFrom(c).Flash(msgSettingsSaved)
	return s.redirect(c, "/settings/notifications")
}
