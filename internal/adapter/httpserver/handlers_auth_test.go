package httpserver

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/pscheid92/abrenfund/internal/adapter/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// visitorCookie returns the last visitor cookie the response set.
func visitorCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == visitorCookieName {
			found = c
		}
	}
	return found
}

func TestLogin_InvalidFormMakesNoBackendCall(t *testing.T) {
	srv := newTestServer(t, newSampleBackend())
	b := newBrowser(t, srv)

	rec := b.post("/login", url.Values{"email": {"not-an-email"}, "password": {"x"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please enter a valid email address")
}

func TestLogin_WrongPassword(t *testing.T) {
	srv := newTestServer(t, newSampleBackend())
	b := newBrowser(t, srv)

	rec := b.post("/login", url.Values{"email": {sample.StudentEmail}, "password": {"wrong-password"}})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid email or password")
	assert.NotContains(t, b.visitorValues(), keyToken)
}

func TestLogin_RedirectsToRequestedPage(t *testing.T) {
	tests := []struct {
		name     string
		redirect string
		want     string
	}{
		{"local page", "/notifications?page=2", "/notifications?page=2"},
		{"no redirect", "", "/dashboard"},
		{"protocol relative", "//evil.example/steal", "/dashboard"},
		{"absolute url", "https://evil.example/", "/dashboard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, newSampleBackend())
			b := newBrowser(t, srv)

			rec := b.post("/login", url.Values{
				"email":    {sample.StudentEmail},
				"password": {sample.DemoPassword},
				"redirect": {tt.redirect},
			})

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Location"))
		})
	}
}

func TestLogin_RememberMeControlsCookieLifetime(t *testing.T) {
	t.Run("remembered", func(t *testing.T) {
		srv := newTestServer(t, newSampleBackend())
		b := newBrowser(t, srv)

		rec := b.post("/login", url.Values{"email": {sample.StudentEmail}, "password": {sample.DemoPassword}, "remember": {"on"}})

		require.Equal(t, http.StatusSeeOther, rec.Code)
		cookie := visitorCookie(rec)
		require.NotNil(t, cookie)
		assert.Equal(t, 3600, cookie.MaxAge)
	})

	t.Run("browser session only", func(t *testing.T) {
		srv := newTestServer(t, newSampleBackend())
		b := newBrowser(t, srv)

		rec := b.post("/login", url.Values{"email": {sample.StudentEmail}, "password": {sample.DemoPassword}})

		require.Equal(t, http.StatusSeeOther, rec.Code)
		cookie := visitorCookie(rec)
		require.NotNil(t, cookie)
		assert.Zero(t, cookie.MaxAge)
		assert.True(t, cookie.Expires.IsZero())
	})
}

func TestLoginPage_RedirectsWhenSignedIn(t *testing.T) {
	srv := newTestServer(t, newSampleBackend())
	b := newBrowser(t, srv)
	b.login(sample.StudentEmail)

	rec := b.get("/login?redirect=/wallet")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/wallet", rec.Header().Get("Location"))
}

func TestLogout(t *testing.T) {
	srv := newTestServer(t, newSampleBackend())
	b := newBrowser(t, srv)
	b.login(sample.StudentEmail)

	rec := b.post("/logout", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = b.get("/login")
	assert.Contains(t, rec.Body.String(), "[You have been logged out.]")

	rec = b.get("/wallet")
	assert.Equal(t, http.StatusFound, rec.Code)
}

func signupForm(email string) url.Values {
	return url.Values{
		"name":            {"Ada Lovelace"},
		"email":           {email},
		"password":        {"engines-123"},
		"confirmPassword": {"engines-123"},
		"terms":           {"on"},
	}
}

func TestSignup_SuccessLeadsToVerification(t *testing.T) {
	srv := newTestServer(t, newSampleBackend())
	b := newBrowser(t, srv)

	rec := b.post("/signup", signupForm("ada@uni.test"))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/verify-email", rec.Header().Get("Location"))

	rec = b.get("/verify-email")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Verify ada@uni.test pending")

	// Registration never signs the visitor in.
	rec = b.get("/wallet")
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestSignup_InvalidFormRendersFieldErrors(t *testing.T) {
	srv := newTestServer(t, newSampleBackend())
	b := newBrowser(t, srv)

	form := signupForm("ada@uni.test")
	form.Set("confirmPassword", "something-else")
	form.Del("terms")
	rec := b.post("/signup", form)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Signup entry")
	assert.Contains(t, body, "confirmPassword:Passwords do not match")
	assert.Contains(t, body, "terms:You must accept the terms and conditions")
}

func TestSignup_DuplicateEmailShowsBackendFieldError(t *testing.T) {
	srv := newTestServer(t, newSampleBackend())
	b := newBrowser(t, srv)

	rec := b.post("/signup", signupForm(sample.StudentEmail))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email:The email has already been taken.")
}

func TestVerifyEmail_WithoutPendingSignupRedirects(t *testing.T) {
	srv := newTestServer(t, newSampleBackend())
	b := newBrowser(t, srv)

	rec := b.get("/verify-email")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/signup", rec.Header().Get("Location"))
}

func TestVerifyEmail_ResendDuringCooldown(t *testing.T) {
	srv := newTestServer(t, newSampleBackend())
	b := newBrowser(t, srv)
	require.Equal(t, http.StatusSeeOther, b.post("/signup", signupForm("ada@uni.test")).Code)

	rec := b.post("/verify-email/resend", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = b.get("/verify-email")
	assert.Contains(t, rec.Body.String(), "[Please wait before requesting another link.]")
}

func TestVerificationCallback(t *testing.T) {
	tests := []struct {
		status   string
		wantCode int
		want     string
	}{
		{"verified", http.StatusOK, "Verified success"},
		{"already_verified", http.StatusOK, "Verified already"},
		{"expired", http.StatusBadRequest, "Verified error"},
		{"", http.StatusBadRequest, "Verified error"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			srv := newTestServer(t, newSampleBackend())
			b := newBrowser(t, srv)

			rec := b.get("/email/verify?status=" + tt.status)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

func TestForgotPassword(t *testing.T) {
	srv := newTestServer(t, newSampleBackend())
	b := newBrowser(t, srv)

	rec := b.post("/forgot-password", url.Values{"email": {"nope"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email:Please enter a valid email address")

	rec = b.post("/forgot-password", url.Values{"email": {sample.StudentEmail}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Forgot sent If that address is registered")

	rec = b.post("/forgot-password/retry", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = b.get("/forgot-password")
	assert.Contains(t, rec.Body.String(), "Forgot entry")
}
