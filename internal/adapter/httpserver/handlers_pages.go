package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/abrenfund/internal/platform/errors"
	"github.com/pscheid92/abrenfund/internal/validation"
)

const msgSupportSent = "Thanks! Our support team will get back to you shortly."

func (s *Server) registerPageRoutes(g *echo.Group, csrfMiddleware, rateLimiter echo.MiddlewareFunc) {
	g.GET("/projects", s.handleBrowse)
	g.GET("/projects/:id", s.handleProject)
	g.GET("/support", s.handleSupportPage, csrfMiddleware)
	g.POST("/support", s.handleSupport, rateLimiter, csrfMiddleware)
}

func (s *Server) handleBrowse(c echo.Context) error {
	q, page := listQuery(c, "")
	view, err := s.app.BrowseProjects(c.Request().Context(), tokenFrom(c), c.QueryParam("tab"), c.QueryParam("category"), q, page)
	if err != nil {
		return err
	}
	return s.page(c, http.StatusOK, "projects.html", "Browse campaigns", map[string]any{
		"View": view,
	})
}

func (s *Server) handleProject(c echo.Context) error {
	p, err := s.app.Project(c.Request().Context(), tokenFrom(c), c.Param("id"))
	if err != nil {
		return err
	}
	return s.page(c, http.StatusOK, "project.html", p.Title, map[string]any{
		"Project":  p,
		"Progress": p.Progress(),
		"DaysLeft": p.DaysLeft(time.Now()),
	})
}

func (s *Server) handleSupportPage(c echo.Context) error {
	form := map[string]string{}
	if user := userFrom(c); user.ID != "" {
		form["name"] = user.Name
		form["email"] = user.Email
	}
	return s.page(c, http.StatusOK, "support.html", "Support", map[string]any{
		"Topics": validation.SupportTopics,
		"Form":   form,
	})
}

func (s *Server) handleSupport(c echo.Context) error {
	values, err := formValues(c)
	if err != nil {
		return apperrors.ValidationError("Invalid form submission")
	}

	errs, err := s.app.SubmitSupport(c.Request().Context(), values)
	if err != nil {
		return err
	}
	if !errs.Valid() {
		return s.page(c, http.StatusBadRequest, "support.html", "Support", map[string]any{
			"Topics": validation.SupportTopics,
			"Form":   map[string]string(values),
			"Errors": errs,
		})
	}

	visitorFrom(c).Flash(msgSupportSent)
	return s.redirect(c, "/support")
}
