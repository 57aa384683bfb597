package auth

import "net/http"

func (h *Handler) ShowSessionForTest(w http.ResponseWriter, r *http.Request) {
	h.showSession(w, r)
}

func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogout(w, r)
}

func (h *Handler) HandlePasswordForTest(w http.ResponseWriter, r *http.Request) {
	h.handlePassword(w, r)
}
