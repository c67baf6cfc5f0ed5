package httpapi

import (
	"errors"
	"net/http"

	"vitrina.org/internal/audit"
	"vitrina.org/internal/auth"
	"vitrina.org/internal/obs"
)

type credentialsRequest struct {
	FullName string `json:"fullName,omitempty"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// principalField — ключ в ответе: "user" или "admin".
func principalField(kind auth.Kind) string {
	if kind == auth.KindAdmin {
		return "admin"
	}
	return "user"
}

func (a *API) handleSignUp(kind auth.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		var req credentialsRequest
		if err := decodeJSON(r, &req); err != nil {
			obs.ObserveAuth("signup", string(kind), "invalid")
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		p, pair, err := a.sessions.SignUp(r.Context(), kind, req.Username, req.Password, req.FullName)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidInput):
				obs.ObserveAuth("signup", string(kind), "invalid")
				writeError(w, http.StatusForbidden, err.Error())
			case errors.Is(err, auth.ErrAlreadyExists):
				obs.ObserveAuth("signup", string(kind), "conflict")
				writeError(w, http.StatusConflict, "username already taken")
			default:
				obs.ObserveAuth("signup", string(kind), "error")
				writeError(w, http.StatusInternalServerError, "internal error")
			}
			return
		}
		obs.ObserveAuth("signup", string(kind), "ok")
		_ = audit.LogEvent(auth.ContextWithPrincipal(r.Context(), p.ID, p.Kind), "auth.signup", map[string]any{
			"username": p.Username,
		})
		writeJSON(w, http.StatusCreated, map[string]any{
			"message":            "signed up",
			principalField(kind): p,
			"accessToken":        pair.AccessToken,
			"refreshToken":       pair.RefreshToken,
		})
	}
}

func (a *API) handleSignIn(kind auth.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		var req credentialsRequest
		if err := decodeJSON(r, &req); err != nil {
			obs.ObserveAuth("signin", string(kind), "invalid")
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		p, pair, err := a.sessions.SignIn(r.Context(), kind, req.Username, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidInput):
				obs.ObserveAuth("signin", string(kind), "invalid")
				writeError(w, http.StatusForbidden, err.Error())
			case errors.Is(err, auth.ErrNotFound):
				obs.ObserveAuth("signin", string(kind), "not_found")
				writeError(w, http.StatusNotFound, "unknown username")
			case errors.Is(err, auth.ErrUnauthorized):
				obs.ObserveAuth("signin", string(kind), "denied")
				writeError(w, http.StatusUnauthorized, "wrong password")
			default:
				obs.ObserveAuth("signin", string(kind), "error")
				writeError(w, http.StatusInternalServerError, "internal error")
			}
			return
		}
		obs.ObserveAuth("signin", string(kind), "ok")
		_ = audit.LogEvent(auth.ContextWithPrincipal(r.Context(), p.ID, p.Kind), "auth.signin", map[string]any{
			"username": p.Username,
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"message":            "signed in",
			principalField(kind): p,
			"accessToken":        pair.AccessToken,
			"refreshToken":       pair.RefreshToken,
		})
	}
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		obs.ObserveAuth("refresh", "", "missing")
		writeError(w, http.StatusUnauthorized, "refresh token required")
		return
	}
	pair, err := a.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		// Просроченный, подделанный или уже ротированный токен
		// неотличимы для клиента: во всех случаях 403.
		if errors.Is(err, auth.ErrUnauthorized) {
			obs.ObserveRotationConflict()
		}
		obs.ObserveAuth("refresh", "", "denied")
		writeError(w, http.StatusForbidden, "invalid refresh token")
		return
	}
	obs.ObserveAuth("refresh", "", "ok")
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	id, kind, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.sessions.Logout(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			obs.ObserveAuth("logout", string(kind), "not_found")
			writeError(w, http.StatusNotFound, "unknown principal")
			return
		}
		obs.ObserveAuth("logout", string(kind), "error")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	obs.ObserveAuth("logout", string(kind), "ok")
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	id, _, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	p, err := a.sessions.Profile(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown principal")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		principalField(p.Kind): p,
	})
}
