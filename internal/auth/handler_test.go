package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/opsboard/opsboard/internal/areas"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/platform/clock"
	"github.com/opsboard/opsboard/internal/roles"
	"github.com/opsboard/opsboard/internal/session"
	"github.com/opsboard/opsboard/internal/shared"
	_ "github.com/opsboard/opsboard/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions map[string]int64
	hashes   map[int64]string
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) FindByID(_ context.Context, id int64) (*auth.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) UpdatePasswordHash(_ context.Context, userID int64, hash string) error {
	if s.hashes == nil {
		s.hashes = map[int64]string{}
	}
	s.hashes[userID] = hash
	return nil
}

func (s *stubRepo) CreateSession(_ context.Context, id string, userID int64, _ time.Time, _, _ string) error {
	if s.sessions == nil {
		s.sessions = map[string]int64{}
	}
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(_ context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type stubProfiles struct {
	profile areas.Profile
	err     error
}

func (s stubProfiles) Profile(context.Context, int64) (areas.Profile, error) {
	return s.profile, s.err
}

type fixture struct {
	handler  *auth.Handler
	repo     *stubRepo
	provider *session.Provider
	csrf     *shared.CSRFManager
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &stubRepo{user: &auth.User{
		ID: 7, Email: "rosa@aeropuerto.test", PasswordHash: hashed(t, "correctpass"), IsActive: true, Role: "CAPTURISTA",
	}}
	profiles := stubProfiles{profile: areas.Profile{
		UserID: 7, Name: "Rosa Pérez", Email: "rosa@aeropuerto.test", Role: roles.Capturista, Active: true,
		Assignments: []areas.Assignment{{
			UserID: 7, AreaID: 4, Active: true,
			Area: areas.Area{ID: 4, Name: "Seguridad", Path: "DG.OPS.SEG", Level: 3, Active: true},
		}},
	}}
	csrf := shared.NewCSRFManager("csrfsecret")
	handler := auth.NewHandler(nil, auth.NewService(repo, profiles, nil), nil, csrf)
	provider := session.NewProvider(session.NewRedisStore(client, session.RedisStoreOptions{}), "", time.Hour,
		clock.Fake(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)), nil)
	return &fixture{handler: handler, repo: repo, provider: provider, csrf: csrf}
}

func (f *fixture) serve(t *testing.T, req *http.Request, sessionID string) *httptest.ResponseRecorder {
	t.Helper()
	m := f.provider.Open(sessionID)
	defer m.Close()
	ctx := session.ContextWithManager(req.Context(), m)
	ctx = shared.ContextWithSessionID(ctx, sessionID)
	res := httptest.NewRecorder()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/session", f.handler.ShowSessionForTest)
	mux.HandleFunc("/auth/login", f.handler.HandleLoginForTest)
	mux.HandleFunc("/auth/logout", f.handler.HandleLogoutForTest)
	mux.HandleFunc("/auth/password", f.handler.HandlePasswordForTest)
	mux.ServeHTTP(res, req.WithContext(ctx))
	return res
}

func TestSessionEndpointIssuesCSRFToken(t *testing.T) {
	f := newFixture(t)
	res := f.serve(t, httptest.NewRequest(http.MethodGet, "/auth/session", nil), "sid-1")
	require.Equal(t, http.StatusOK, res.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, false, body["authenticated"])
	assert.Equal(t, f.csrf.Token("sid-1"), body["csrfToken"])
}

func TestLoginSetsSession(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"ROSA@aeropuerto.test","password":"correctpass"}`))
	req.Header.Set("Content-Type", "application/json")

	res := f.serve(t, req, "sid-2")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var body struct {
		Authenticated bool   `json:"authenticated"`
		Redirect      string `json:"redirect"`
		Principal     struct {
			ID          int64  `json:"id"`
			Role        string `json:"role"`
			Permissions struct {
				CanCapture bool `json:"canCapture"`
				CanEdit    bool `json:"canEdit"`
			} `json:"permissions"`
		} `json:"principal"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.True(t, body.Authenticated)
	assert.Equal(t, roles.RouteCapture, body.Redirect)
	assert.Equal(t, int64(7), body.Principal.ID)
	assert.Equal(t, "CAPTURISTA", body.Principal.Role)
	assert.True(t, body.Principal.Permissions.CanCapture)
	assert.False(t, body.Principal.Permissions.CanEdit)
	assert.Equal(t, int64(7), f.repo.sessions["sid-2"])

	m := f.provider.Open("sid-2")
	defer m.Close()
	restored := m.GetSession(context.Background())
	require.NotNil(t, restored)
	assert.Equal(t, "DG.OPS.SEG", restored.Areas[0].AreaPath)
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	for _, password := range []string{"wrongpass", ""} {
		form := url.Values{}
		form.Set("email", "rosa@aeropuerto.test")
		form.Set("password", password)
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		res := f.serve(t, req, "sid-3")
		if password == "" {
			assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
			continue
		}
		assert.Equal(t, http.StatusUnauthorized, res.Code)
		assert.Contains(t, res.Body.String(), shared.InvalidCredentialsMessage)
	}

	m := f.provider.Open("sid-3")
	defer m.Close()
	assert.Nil(t, m.GetSession(context.Background()))
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	f := newFixture(t)
	f.repo.user.IsActive = false
	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"rosa@aeropuerto.test","password":"correctpass"}`))
	req.Header.Set("Content-Type", "application/json")

	res := f.serve(t, req, "sid-4")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLogoutClearsSession(t *testing.T) {
	f := newFixture(t)
	login := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"rosa@aeropuerto.test","password":"correctpass"}`))
	login.Header.Set("Content-Type", "application/json")
	require.Equal(t, http.StatusOK, f.serve(t, login, "sid-5").Code)

	res := f.serve(t, httptest.NewRequest(http.MethodPost, "/auth/logout", nil), "sid-5")
	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.NotContains(t, f.repo.sessions, "sid-5")

	m := f.provider.Open("sid-5")
	defer m.Close()
	assert.Nil(t, m.GetSession(context.Background()))
}

func TestPasswordChange(t *testing.T) {
	f := newFixture(t)
	login := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"rosa@aeropuerto.test","password":"correctpass"}`))
	login.Header.Set("Content-Type", "application/json")
	require.Equal(t, http.StatusOK, f.serve(t, login, "sid-6").Code)

	short := httptest.NewRequest(http.MethodPost, "/auth/password", strings.NewReader(`{"current":"correctpass","next":"short"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, f.serve(t, short, "sid-6").Code)

	wrong := httptest.NewRequest(http.MethodPost, "/auth/password", strings.NewReader(`{"current":"nope","next":"longenough"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, f.serve(t, wrong, "sid-6").Code)

	ok := httptest.NewRequest(http.MethodPost, "/auth/password", strings.NewReader(`{"current":"correctpass","next":"longenough"}`))
	require.Equal(t, http.StatusNoContent, f.serve(t, ok, "sid-6").Code)
	require.Contains(t, f.repo.hashes, int64(7))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(f.repo.hashes[7]), []byte("longenough")))

	anon := httptest.NewRequest(http.MethodPost, "/auth/password", strings.NewReader(`{"current":"a","next":"b"}`))
	assert.Equal(t, http.StatusUnauthorized, f.serve(t, anon, "other").Code)
}
