package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SP23-BSE-106/grain/internal/api/http/handlers"
	"github.com/SP23-BSE-106/grain/internal/auth"
	"github.com/SP23-BSE-106/grain/internal/config"
	"github.com/SP23-BSE-106/grain/internal/domain"
	"github.com/SP23-BSE-106/grain/internal/events"
	"github.com/SP23-BSE-106/grain/internal/observability"
	"github.com/SP23-BSE-106/grain/internal/repository"
	"github.com/SP23-BSE-106/grain/internal/service"
	apperrors "github.com/SP23-BSE-106/grain/pkg/util"
)

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	app   *fiber.App
	users *repository.MemoryUserRepository
}

func newTestServer(t *testing.T, probes map[string]handlers.Pinger) *testServer {
	t.Helper()
	keys, err := auth.NewKeyring(
		[]byte("access-secret-0123456789abcdefghijklmnop"),
		[]byte("refresh-secret-0123456789abcdefghijklmno"),
		15*time.Minute, 7*24*time.Hour,
	)
	require.NoError(t, err)

	users := repository.NewMemoryUserRepository()
	metrics := observability.NewMetrics()
	svc := service.NewAuthService(service.AuthDependencies{
		UserRepo:    users,
		SessionRepo: repository.NewMemorySessionRepository(nil),
		Keyring:     keys,
		Hasher:      auth.NewHasher(4),
		Dispatcher:  events.NewInMemoryDispatcher(nil),
	})
	guard, err := auth.NewGuard(auth.GuardConfig{Verifier: keys.Access, Metrics: metrics})
	require.NoError(t, err)

	cookies := auth.CookieEnv{
		Environment: config.EnvProduction,
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  7 * 24 * time.Hour,
	}

	app := NewApp(AppConfig{
		Name:    "test",
		Metrics: metrics,
		Routes: RouteConfig{
			Health: handlers.NewHealthHandler("test", "v0", probes),
			Auth:   handlers.NewAuthHandler(svc, cookies),
			Users:  handlers.NewUsersHandler(svc),
			Pages:  handlers.NewPagesHandler(),
			Guard:  guard,
		},
	})
	return &testServer{app: app, users: users}
}

type response struct {
	status  int
	header  nethttp.Header
	cookies map[string]*nethttp.Cookie
	body    map[string]any
	raw     string
}

type requestOpt func(*nethttp.Request)

func cookie(name, value string) requestOpt {
	return func(r *nethttp.Request) { r.AddCookie(&nethttp.Cookie{Name: name, Value: value}) }
}

func header(key, value string) requestOpt {
	return func(r *nethttp.Request) { r.Header.Set(key, value) }
}

func (s *testServer) call(t *testing.T, method, path string, body any, opts ...requestOpt) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := response{status: resp.StatusCode, header: resp.Header, cookies: map[string]*nethttp.Cookie{}, raw: string(raw)}
	for _, c := range resp.Cookies() {
		out.cookies[c.Name] = c
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.body))
	}
	return out
}

func form(values url.Values) requestOpt {
	return func(r *nethttp.Request) {
		r.Body = io.NopCloser(strings.NewReader(values.Encode()))
		r.ContentLength = int64(len(values.Encode()))
		r.Header.Set("Content-Type", fiber.MIMEApplicationForm)
	}
}

func (r response) errorCode() string {
	errObj, _ := r.body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func (s *testServer) signupAndLogin(t *testing.T, email string) response {
	t.Helper()
	signup := s.call(t, fiber.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Test", "email": email, "password": "password123",
	})
	require.Equal(t, fiber.StatusCreated, signup.status, signup.raw)

	login := s.call(t, fiber.MethodPost, "/api/auth/login", map[string]string{
		"email": email, "password": "password123",
	})
	require.Equal(t, fiber.StatusOK, login.status, login.raw)
	return login
}

func (s *testServer) promote(t *testing.T, email string) {
	t.Helper()
	u, err := s.users.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	_, err = s.users.UpdateRole(context.Background(), u.ID, domain.RoleAdmin)
	require.NoError(t, err)
}

func TestSignup(t *testing.T) {
	s := newTestServer(t, nil)

	resp := s.call(t, fiber.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "password123",
	})
	require.Equal(t, fiber.StatusCreated, resp.status)
	assert.Empty(t, resp.cookies, "signup does not log in")
	user := resp.body["user"].(map[string]any)
	assert.Equal(t, "user", user["role"])
	assert.NotContains(t, resp.raw, "password")

	resp = s.call(t, fiber.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "password123",
	})
	assert.Equal(t, fiber.StatusConflict, resp.status)

	resp = s.call(t, fiber.MethodPost, "/api/auth/signup", map[string]string{"email": "x@example.com"})
	assert.Equal(t, fiber.StatusBadRequest, resp.status)
	assert.Equal(t, apperrors.CodeValidationFailed, resp.errorCode())
}

func TestLogin_SetsCookiesAndOmitsRefreshFromBody(t *testing.T) {
	s := newTestServer(t, nil)
	login := s.signupAndLogin(t, "u1@example.com")

	access := login.cookies[auth.AccessCookieName]
	refresh := login.cookies[auth.RefreshCookieName]
	require.NotNil(t, access)
	require.NotNil(t, refresh)

	assert.Equal(t, "/", access.Path)
	assert.Equal(t, "/api/auth", refresh.Path)
	assert.True(t, access.HttpOnly)
	assert.True(t, refresh.HttpOnly)
	assert.True(t, access.Secure)
	assert.Equal(t, nethttp.SameSiteLaxMode, access.SameSite)
	assert.Equal(t, nethttp.SameSiteStrictMode, refresh.SameSite)

	assert.Equal(t, access.Value, login.body["accessToken"])
	assert.NotContains(t, login.raw, refresh.Value)
	assert.NotContains(t, login.body, "refreshToken")
}

func TestLogin_Failures(t *testing.T) {
	s := newTestServer(t, nil)
	s.signupAndLogin(t, "u1@example.com")

	unknown := s.call(t, fiber.MethodPost, "/api/auth/login", map[string]string{"email": "nobody@example.com", "password": "password123"})
	wrong := s.call(t, fiber.MethodPost, "/api/auth/login", map[string]string{"email": "u1@example.com", "password": "nope-nope"})
	assert.Equal(t, fiber.StatusUnauthorized, unknown.status)
	assert.Equal(t, unknown.raw, wrong.raw)

	mismatch := s.call(t, fiber.MethodPost, "/api/auth/login", map[string]string{"email": "u1@example.com", "password": "password123", "role": "admin"})
	assert.Equal(t, fiber.StatusForbidden, mismatch.status)
	assert.Equal(t, apperrors.CodeInsufficientRole, mismatch.errorCode())
}

func TestMe(t *testing.T) {
	s := newTestServer(t, nil)
	login := s.signupAndLogin(t, "u1@example.com")
	token := login.cookies[auth.AccessCookieName].Value

	resp := s.call(t, fiber.MethodGet, "/api/auth/me", nil, cookie(auth.AccessCookieName, token))
	require.Equal(t, fiber.StatusOK, resp.status)
	assert.Equal(t, "u1@example.com", resp.body["user"].(map[string]any)["email"])

	resp = s.call(t, fiber.MethodGet, "/api/auth/me", nil, header("Authorization", "Bearer "+token))
	assert.Equal(t, fiber.StatusOK, resp.status)

	resp = s.call(t, fiber.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.status)
	assert.Equal(t, apperrors.CodeInvalidCredential, resp.errorCode())
}

func TestRefreshAndLogout(t *testing.T) {
	s := newTestServer(t, nil)
	login := s.signupAndLogin(t, "u1@example.com")
	firstRefresh := login.cookies[auth.RefreshCookieName].Value

	rotated := s.call(t, fiber.MethodPost, "/api/auth/refresh", nil, cookie(auth.RefreshCookieName, firstRefresh))
	require.Equal(t, fiber.StatusOK, rotated.status, rotated.raw)
	secondRefresh := rotated.cookies[auth.RefreshCookieName].Value
	assert.NotEqual(t, firstRefresh, secondRefresh)
	assert.NotEmpty(t, rotated.body["accessToken"])

	reused := s.call(t, fiber.MethodPost, "/api/auth/refresh", nil, cookie(auth.RefreshCookieName, firstRefresh))
	assert.Equal(t, fiber.StatusUnauthorized, reused.status)
	require.Contains(t, reused.cookies, auth.AccessCookieName)
	assert.Empty(t, reused.cookies[auth.AccessCookieName].Value)

	missing := s.call(t, fiber.MethodPost, "/api/auth/refresh", nil)
	assert.Equal(t, fiber.StatusUnauthorized, missing.status)

	for i := 0; i < 2; i++ {
		out := s.call(t, fiber.MethodPost, "/api/auth/logout", nil, cookie(auth.RefreshCookieName, secondRefresh))
		require.Equal(t, fiber.StatusOK, out.status)
		for _, name := range []string{auth.AccessCookieName, auth.RefreshCookieName} {
			c := out.cookies[name]
			require.NotNil(t, c, name)
			assert.Empty(t, c.Value)
			assert.True(t, c.Expires.Before(time.Now()))
		}
		assert.Equal(t, "/api/auth", out.cookies[auth.RefreshCookieName].Path)

		page := s.call(t, fiber.MethodGet, "/profile", nil, header("Accept", "text/html"))
		assert.Equal(t, fiber.StatusFound, page.status)
		assert.Equal(t, "/login?next=%2Fprofile", page.header.Get("Location"))
	}

	anonymous := s.call(t, fiber.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, fiber.StatusOK, anonymous.status)
}

func TestVerify(t *testing.T) {
	s := newTestServer(t, nil)
	login := s.signupAndLogin(t, "u1@example.com")
	token := login.cookies[auth.AccessCookieName].Value

	ok := s.call(t, fiber.MethodPost, "/api/auth/verify", map[string]string{"token": token})
	require.Equal(t, fiber.StatusOK, ok.status)
	assert.Equal(t, true, ok.body["valid"])
	assert.Equal(t, "u1@example.com", ok.body["user"].(map[string]any)["email"])

	bad := s.call(t, fiber.MethodPost, "/api/auth/verify", map[string]string{"token": token + "x"})
	assert.Equal(t, fiber.StatusUnauthorized, bad.status)
	assert.Equal(t, false, bad.body["valid"])

	empty := s.call(t, fiber.MethodPost, "/api/auth/verify", map[string]string{})
	assert.Equal(t, fiber.StatusBadRequest, empty.status)
	assert.Equal(t, false, empty.body["valid"])
}

func TestProfileAndAdminPages(t *testing.T) {
	s := newTestServer(t, nil)
	login := s.signupAndLogin(t, "u1@example.com")
	token := login.cookies[auth.AccessCookieName].Value

	profile := s.call(t, fiber.MethodGet, "/profile", nil, cookie(auth.AccessCookieName, token))
	assert.Equal(t, fiber.StatusOK, profile.status)

	admin := s.call(t, fiber.MethodGet, "/admin", nil, cookie(auth.AccessCookieName, token))
	assert.Equal(t, fiber.StatusForbidden, admin.status)
	assert.Equal(t, apperrors.CodeInsufficientRole, admin.errorCode())

	browser := s.call(t, fiber.MethodGet, "/admin", nil, header("Accept", "text/html"))
	assert.Equal(t, fiber.StatusFound, browser.status)
	assert.Equal(t, "/login?next=%2Fadmin", browser.header.Get("Location"))
}

func TestAdminUserManagement(t *testing.T) {
	s := newTestServer(t, nil)
	userLogin := s.signupAndLogin(t, "u1@example.com")
	s.signupAndLogin(t, "boss@example.com")
	s.promote(t, "boss@example.com")

	// The earlier credential still carries the user role; log in again.
	adminLogin := s.call(t, fiber.MethodPost, "/api/auth/login", map[string]string{"email": "boss@example.com", "password": "password123"})
	require.Equal(t, fiber.StatusOK, adminLogin.status)
	adminToken := adminLogin.cookies[auth.AccessCookieName].Value
	userToken := userLogin.cookies[auth.AccessCookieName].Value

	forbidden := s.call(t, fiber.MethodGet, "/api/users", nil, cookie(auth.AccessCookieName, userToken))
	assert.Equal(t, fiber.StatusForbidden, forbidden.status)

	list := s.call(t, fiber.MethodGet, "/api/users", nil, cookie(auth.AccessCookieName, adminToken))
	require.Equal(t, fiber.StatusOK, list.status, list.raw)
	assert.Len(t, list.body["users"], 2)
	assert.NotContains(t, list.raw, "password")

	target, err := s.users.GetByEmail(context.Background(), "u1@example.com")
	require.NoError(t, err)
	changed := s.call(t, fiber.MethodPatch, "/api/users/"+target.ID+"/role", map[string]string{"role": "admin"},
		cookie(auth.AccessCookieName, adminToken))
	require.Equal(t, fiber.StatusOK, changed.status, changed.raw)
	assert.Equal(t, "admin", changed.body["user"].(map[string]any)["role"])

	invalid := s.call(t, fiber.MethodPatch, "/api/users/"+target.ID+"/role", map[string]string{"role": "root"},
		cookie(auth.AccessCookieName, adminToken))
	assert.Equal(t, fiber.StatusBadRequest, invalid.status)
}

func TestUnknownRouteAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	missing := s.call(t, fiber.MethodGet, "/does-not-exist", nil)
	assert.Equal(t, fiber.StatusNotFound, missing.status)
	assert.Equal(t, apperrors.CodeNotFound, missing.errorCode())

	s.call(t, fiber.MethodGet, "/profile", nil)
	metrics := s.call(t, fiber.MethodGet, "/metrics", nil)
	require.Equal(t, fiber.StatusOK, metrics.status)
	assert.Contains(t, metrics.raw, `auth_guard_decisions_total{outcome="invalid_credential",sensitivity="authenticated"} 1`)
}

func TestHealth(t *testing.T) {
	healthy := newTestServer(t, map[string]handlers.Pinger{
		"postgres": pingerFunc(func(context.Context) error { return nil }),
	})
	resp := healthy.call(t, fiber.MethodGet, "/health/ready", nil)
	assert.Equal(t, fiber.StatusOK, resp.status)

	live := healthy.call(t, fiber.MethodGet, "/health/live", nil)
	assert.Equal(t, "alive", live.body["status"])

	unhealthy := newTestServer(t, map[string]handlers.Pinger{
		"postgres": pingerFunc(func(context.Context) error { return nil }),
		"redis":    pingerFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
	})
	resp = unhealthy.call(t, fiber.MethodGet, "/health/ready", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.status)
	assert.Equal(t, apperrors.CodeDependencyUnhealthy, resp.errorCode())
	assert.NotContains(t, resp.raw, "refused")
}

func TestSignup_FormEncodedAccountsStayReachable(t *testing.T) {
	s := newTestServer(t, nil)

	for _, email := range []string{"alice@example.com", "bob@example.com", "carol@example.com", "dave@example.com"} {
		resp := s.call(t, fiber.MethodPost, "/api/auth/signup", nil, form(url.Values{
			"name":     {"Alice"},
			"email":    {email},
			"password": {"password123"},
		}))
		require.Equal(t, fiber.StatusCreated, resp.status, resp.raw)
	}

	stored, err := s.users.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored.Name)

	login := s.call(t, fiber.MethodPost, "/api/auth/login", nil, form(url.Values{
		"email":    {"alice@example.com"},
		"password": {"password123"},
	}))
	assert.Equal(t, fiber.StatusOK, login.status, login.raw)
}

func TestMetrics_LabelsSurviveManyErrorPaths(t *testing.T) {
	s := newTestServer(t, nil)
	s.signupAndLogin(t, "u1@example.com")
	s.signupAndLogin(t, "boss@example.com")
	s.promote(t, "boss@example.com")
	adminLogin := s.call(t, fiber.MethodPost, "/api/auth/login", map[string]string{"email": "boss@example.com", "password": "password123"})
	require.Equal(t, fiber.StatusOK, adminLogin.status)
	adminToken := adminLogin.cookies[auth.AccessCookieName].Value

	for i := 0; i < 50; i++ {
		s.call(t, fiber.MethodGet, fmt.Sprintf("/api/orders/%d", i), nil)
		s.call(t, fiber.MethodGet, "/profile", nil)
		s.call(t, fiber.MethodGet, fmt.Sprintf("/catalog/item-%d", i), nil)
	}
	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		id := uuid.NewString()
		ids = append(ids, id)
		resp := s.call(t, fiber.MethodPatch, "/api/users/"+id+"/role", map[string]string{"role": "admin"},
			cookie(auth.AccessCookieName, adminToken))
		require.Equal(t, fiber.StatusNotFound, resp.status)
	}

	metrics := s.call(t, fiber.MethodGet, "/metrics", nil)
	require.Equal(t, fiber.StatusOK, metrics.status, metrics.raw)
	assert.Contains(t, metrics.raw, `route="/api/users/:id/role"`)
	for _, id := range ids {
		assert.NotContains(t, metrics.raw, id)
	}
	assert.NotContains(t, metrics.raw, "/api/orders/4")
	assert.NotContains(t, metrics.raw, "/catalog/item-")
}
