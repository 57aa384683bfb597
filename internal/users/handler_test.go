package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsboard/opsboard/internal/principal"
	"github.com/opsboard/opsboard/internal/roles"
	"github.com/opsboard/opsboard/internal/session"
)

func serveUsers(t *testing.T, h *Handler, p *principal.Principal, target string) *httptest.ResponseRecorder {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	m := session.NewManager(session.NewRedisStore(client, session.RedisStoreOptions{}), session.Options{})
	defer m.Close()
	require.NoError(t, m.SetSession(context.Background(), p))

	router := chi.NewRouter()
	h.MountRoutes(router)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(session.ContextWithManager(req.Context(), m))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func TestHandlerListUsers(t *testing.T) {
	repo := &stubRepo{users: []User{{ID: 20, Name: "Rosa", Role: roles.Capturista, AreaPaths: []string{"DG.OPS.SEG"}}}}
	h := NewHandler(nil, NewService(repo, &stubChecker{editable: map[int64]bool{20: true}}), nil)

	res := serveUsers(t, h, &principal.Principal{ID: 11, Role: roles.Subdirector}, "/users?role=capturista&active=true&q=ro")
	require.Equal(t, http.StatusOK, res.Code)

	var list []struct {
		ID       int64    `json:"id"`
		Role     string   `json:"role"`
		Areas    []string `json:"areas"`
		Editable bool     `json:"editable"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "CAPTURISTA", list[0].Role)
	assert.True(t, list[0].Editable)
	assert.Equal(t, Filter{Role: roles.Capturista, ActiveOnly: true, Search: "ro"}, repo.seen)
}

func TestHandlerListUsersForbiddenAndUnauthorized(t *testing.T) {
	h := NewHandler(nil, NewService(&stubRepo{}, &stubChecker{}), nil)

	res := serveUsers(t, h, &principal.Principal{ID: 20, Role: roles.Capturista}, "/users")
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = serveUsers(t, h, nil, "/users")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestHandlerListUsersFailsClosed(t *testing.T) {
	repo := &stubRepo{users: []User{{ID: 20}}}
	h := NewHandler(nil, NewService(repo, &stubChecker{err: errors.New("down")}), nil)

	res := serveUsers(t, h, &principal.Principal{ID: 1, Role: roles.Admin}, "/users")
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	assert.NotContains(t, res.Body.String(), `"id"`)
}
