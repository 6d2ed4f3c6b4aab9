package session

import (
	"net/url"
	"strings"
)

// Decision is what a protected page should do for the current snapshot.
type Decision int

const (
	ShowLoading Decision = iota
	RenderPage
	RedirectToLogin
)

func (d Decision) String() string {
	switch d {
	case ShowLoading:
		return "loading"
	case RenderPage:
		return "render"
	case RedirectToLogin:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decide never redirects while the auth state is still loading.
func Decide(s Snapshot) Decision {
	switch {
	case s.Loading:
		return ShowLoading
	case s.Authenticated:
		return RenderPage
	default:
		return RedirectToLogin
	}
}

// LoginRedirect builds the login URL carrying the originally requested page.
func LoginRedirect(loginPath, requested string) string {
	target := SafeRedirect(requested, "")
	if target == "" {
		return loginPath
	}
	return loginPath + "?" + url.Values{"redirect": {target}}.Encode()
}

// SafeRedirect returns target if it is a local absolute path, else fallback.
func SafeRedirect(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return target
}
