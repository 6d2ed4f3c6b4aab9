package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pscheid92/abrenfund/internal/adapter/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAuth_NoTokenRedirectsToLogin(t *testing.T) {
	srv := newTestServer(t, newSampleBackend())
	b := newBrowser(t, srv)

	rec := b.get("/wallet?page=2")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redirect=%2Fwallet%3Fpage%3D2", rec.Header().Get("Location"))
}

func TestRequireAuth_AuthenticatedRendersPage(t *testing.T) {
	srv := newTestServer(t, newSampleBackend())
	b := newBrowser(t, srv)
	b.login(sample.StudentEmail)

	rec := b.get("/wallet")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Wallet 250.00")
}

func TestRequireAuth_ShowsLoadingUntilCheckResolves(t *testing.T) {
	backend := newSampleBackend()
	first := newBrowser(t, newTestServer(t, backend))
	first.login(sample.StudentEmail)

	// A second instance only has the cookie hint and must ask the backend.
	gated := newGatedBackend(t, backend)
	srv := newTestServer(t, gated, withGuardWait(20*time.Millisecond))
	b := &browser{t: t, srv: srv, cookies: first.cookies}

	rec := b.get("/wallet")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Loading", rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("Refresh"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	gated.release()

	require.Eventually(t, func() bool {
		rec := b.get("/wallet")
		return rec.Code == http.StatusOK && rec.Body.String() != "Loading"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRequireAuth_RejectedTokenIsCleared(t *testing.T) {
	srv := newTestServer(t, newSampleBackend())
	b := newBrowser(t, srv)
	setVisitorToken(t, b, "revoked-token")

	rec := b.get("/notifications")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redirect=%2Fnotifications", rec.Header().Get("Location"))
	values := b.visitorValues()
	assert.NotContains(t, values, keyToken)
	assert.NotContains(t, values, keyLoggedIn)
}

func TestRequireAuth_APIRespondsWithJSON(t *testing.T) {
	srv := newTestServer(t, newSampleBackend())
	b := newBrowser(t, srv)

	rec := b.get("/api/flows/payment/p1")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "authentication", body["type"])
}

func TestRequireAuth_PostRedirectsBackToReferringPage(t *testing.T) {
	srv := newTestServer(t, newSampleBackend())
	b := newBrowser(t, srv)
	b.get("/login")

	req := httptest.NewRequest(http.MethodPost, "/wallet/deposit", nil)
	req.Header.Set("Referer", "http://example.com/wallet?page=3")
	req.Header.Set("X-CSRF-Token", b.cookies[csrfCookieName].Value)
	rec := b.do(req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redirect=%2Fwallet%3Fpage%3D3", rec.Header().Get("Location"))
}

func TestSessionStatus(t *testing.T) {
	srv := newTestServer(t, newSampleBackend())
	b := newBrowser(t, srv)

	rec := b.get("/api/session")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":false,"loading":false}`, rec.Body.String())

	b.login(sample.AdminEmail)

	rec = b.get("/api/session")
	require.Equal(t, http.StatusOK, rec.Code)
	var body sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Authenticated)
	require.NotNil(t, body.User)
	assert.Equal(t, sample.AdminEmail, body.User.Email)
	assert.NotContains(t, rec.Body.String(), "token")
}
