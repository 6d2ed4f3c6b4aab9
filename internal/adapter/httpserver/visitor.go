package httpserver

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/abrenfund/internal/platform/errors"
)

// Cookie keys. Everything in the visitor cookie is a hint; the backend is
// asked before any of it is trusted.
const (
	visitorCookieName = "abrenfund-visitor"
	keyVisitorID      = "visitor_id"
	keyToken          = "token"
	keyLoggedIn       = "logged_in"
	keyRemember       = "remember"
	keyPendingEmail   = "pending_email"
	keyPendingToken   = "pending_token"

	ctxVisitor = "visitor"
	ctxUser    = "user"
	ctxToken   = "token"
)

// visitor wraps the signed visitor cookie. It implements session.Marker.
type visitor struct {
	id     string
	sess   *sessions.Session
	c      echo.Context
	maxAge int
}

func (v *visitor) ID() string { return v.id }

func (v *visitor) Token() string {
	token, _ := v.sess.Values[keyToken].(string)
	return token
}

// Save records a successful login. Without remember the cookie lasts for
// the browser session only.
func (v *visitor) Save(token string, remember bool) error {
	v.sess.Values[keyToken] = token
	v.sess.Values[keyLoggedIn] = true
	v.sess.Values[keyRemember] = remember
	delete(v.sess.Values, keyPendingEmail)
	delete(v.sess.Values, keyPendingToken)
	v.applyMaxAge()
	return v.save()
}

func (v *visitor) Clear() error {
	delete(v.sess.Values, keyToken)
	delete(v.sess.Values, keyLoggedIn)
	delete(v.sess.Values, keyRemember)
	v.applyMaxAge()
	return v.save()
}

func (v *visitor) applyMaxAge() {
	loggedIn, _ := v.sess.Values[keyLoggedIn].(bool)
	remember, _ := v.sess.Values[keyRemember].(bool)
	if loggedIn && !remember {
		v.sess.Options.MaxAge = 0
		return
	}
	v.sess.Options.MaxAge = v.maxAge
}

// SetPending remembers the address awaiting verification and the token
// registration returned for it.
func (v *visitor) SetPending(email, token string) error {
	v.sess.Values[keyPendingEmail] = email
	v.sess.Values[keyPendingToken] = token
	return v.save()
}

func (v *visitor) Pending() (email, token string) {
	email, _ = v.sess.Values[keyPendingEmail].(string)
	token, _ = v.sess.Values[keyPendingToken].(string)
	return email, token
}

func (v *visitor) ClearPending() error {
	delete(v.sess.Values, keyPendingEmail)
	delete(v.sess.Values, keyPendingToken)
	return v.save()
}

// Flash queues a message for the next rendered page.
func (v *visitor) Flash(msg string) {
	v.sess.AddFlash(msg)
	if err := v.save(); err != nil {
		slog.WarnContext(v.c.Request().Context(), "Failed to store flash message", "error", err)
	}
}

// Flashes pops the queued messages.
func (v *visitor) Flashes() []string {
	raw := v.sess.Flashes()
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, f := range raw {
		if msg, ok := f.(string); ok {
			out = append(out, msg)
		}
	}
	if err := v.save(); err != nil {
		slog.WarnContext(v.c.Request().Context(), "Failed to clear flash messages", "error", err)
	}
	return out
}

func (v *visitor) save() error {
	if err := v.sess.Save(v.c.Request(), v.c.Response()); err != nil {
		return fmt.Errorf("failed to save visitor cookie: %w", err)
	}
	return nil
}

// visitorMiddleware loads the visitor cookie, issuing a new visitor ID when
// the cookie is missing or unreadable.
func (s *Server) visitorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := s.cookies.Get(c.Request(), visitorCookieName)
		if err != nil {
			slog.DebugContext(c.Request().Context(), "Discarding unreadable visitor cookie", "error", err)
		}

		v := &visitor{sess: sess, c: c, maxAge: int(s.config.SessionMaxAge.Seconds())}
		v.applyMaxAge()
		id, _ := sess.Values[keyVisitorID].(string)
		if _, perr := uuid.Parse(id); perr != nil {
			id = uuid.NewString()
			sess.Values[keyVisitorID] = id
			if err := v.save(); err != nil {
				return apperrors.InternalError("failed to issue visitor cookie", err)
			}
		}
		v.id = id

		c.Set(ctxVisitor, v)
		return next(c)
	}
}

func visitorFrom(c echo.Context) *visitor {
	v, _ := c.Get(ctxVisitor).(*visitor)
	return v
}
