package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/go-chi/chi/v5"
)

// api exposes the engine's collaborator surface as JSON endpoints.
type api struct {
	engine *authcore.Engine
	users  *directory
	log    *slog.Logger
	opts   routerOptions
}

type routerOptions struct {
	secureCookies bool

	// loginPerMinute throttles unauthenticated credential endpoints per
	// client IP. Zero disables the throttle.
	loginPerMinute int
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type otpRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword,omitempty"`
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	SessionID   string `json:"sessionId"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type pendingResponse struct {
	Status string `json:"status"`
}

type identityResponse struct {
	UserID    int64     `json:"userId"`
	Subject   string    `json:"subject"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
	ExpiresIn int64  `json:"expiresIn"`
}

func (a *api) Router() chi.Router {
	r := chi.NewRouter()

	r.Post("/auth/refresh", a.refresh)

	r.Group(func(r chi.Router) {
		if a.opts.loginPerMinute > 0 {
			r.Use(middleware.Throttle(a.opts.loginPerMinute, a.opts.loginPerMinute))
		}
		r.Post("/auth/login", a.login)
		r.Post("/auth/admin/verify", a.adminVerify)
		r.Post("/auth/password/reset", a.requestReset)
		r.Post("/auth/password/reset/confirm", a.confirmReset)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(a.engine))

		r.Get("/me", a.me)
		r.Post("/auth/logout", a.logout)
		r.Post("/auth/logout-all", a.logoutAll)
		r.Get("/auth/sessions", a.listSessions)
		r.Delete("/auth/sessions/{sessionID}", a.revokeSession)
		r.Post("/auth/password/change", a.requestChange)
		r.Post("/auth/password/change/confirm", a.confirmChange)
		r.With(middleware.RequireRole("admin")).Get("/auth/admin/health", a.health)
	})

	return r
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		mapError(w, a.log, err)
		return
	}
	p, ok := a.users.verify(req.Email, req.Password)
	if !ok {
		mapError(w, a.log, authcore.ErrInvalidCredentials)
		return
	}

	if p.Role == "admin" {
		if err := a.engine.BeginAdminLogin(r.Context(), p); err != nil {
			mapError(w, a.log, err)
			return
		}
		writeJSON(w, http.StatusAccepted, pendingResponse{Status: "otp_required"})
		return
	}

	res, err := a.engine.IssueSession(r.Context(), p)
	if err != nil {
		mapError(w, a.log, err)
		return
	}
	a.writeSession(w, res.AccessToken, res.SessionID, res.AccessExpiresIn)
}

func (a *api) adminVerify(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		mapError(w, a.log, err)
		return
	}
	p, ok := a.users.byEmailAddr(req.Email)
	if !ok || p.Role != "admin" {
		mapError(w, a.log, authcore.ErrOTPExpired)
		return
	}
	res, err := a.engine.CompleteAdminLogin(r.Context(), p, req.Code)
	if err != nil {
		mapError(w, a.log, err)
		return
	}
	a.writeSession(w, res.AccessToken, res.SessionID, res.AccessExpiresIn)
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		mapError(w, a.log, err)
		return
	}
	res, err := a.engine.Refresh(r.Context(), req.SessionID)
	if err != nil {
		mapError(w, a.log, err)
		return
	}
	a.writeSession(w, res.AccessToken, res.SessionID, res.AccessExpiresIn)
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		mapError(w, a.log, err)
		return
	}
	// The session is removed through RevokeSession so a caller can only end
	// its own; an unknown or foreign id is skipped like an absent one.
	id, _ := middleware.IdentityFromContext(r.Context())
	if req.SessionID != "" {
		err := a.engine.RevokeSession(r.Context(), id.UserID, req.SessionID)
		if err != nil && !errors.Is(err, authcore.ErrSessionExpired) {
			mapError(w, a.log, err)
			return
		}
	}
	if err := a.engine.Logout(r.Context(), a.accessToken(r), ""); err != nil {
		mapError(w, a.log, err)
		return
	}
	a.clearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) logoutAll(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	if err := a.engine.LogoutAll(r.Context(), id.UserID, a.accessToken(r)); err != nil {
		mapError(w, a.log, err)
		return
	}
	a.clearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) listSessions(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	sessions, err := a.engine.ListSessions(r.Context(), id.UserID)
	if err != nil {
		mapError(w, a.log, err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{SessionID: s.SessionID, ExpiresIn: int64(s.ExpiresIn / time.Second)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) revokeSession(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	if err := a.engine.RevokeSession(r.Context(), id.UserID, chi.URLParam(r, "sessionID")); err != nil {
		mapError(w, a.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, identityResponse{
		UserID:    id.UserID,
		Subject:   id.Subject,
		Name:      id.Name,
		Role:      id.Role,
		ExpiresAt: id.ExpiresAt,
	})
}

func (a *api) requestChange(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	p, err := a.users.GetUserByID(r.Context(), id.UserID)
	if err != nil {
		mapError(w, a.log, err)
		return
	}
	if err := a.engine.RequestPasswordChange(r.Context(), p); err != nil {
		mapError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, pendingResponse{Status: "otp_sent"})
}

func (a *api) confirmChange(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		mapError(w, a.log, err)
		return
	}
	if strings.TrimSpace(req.NewPassword) == "" {
		mapError(w, a.log, authcore.ErrInvalidRequest)
		return
	}
	id, _ := middleware.IdentityFromContext(r.Context())
	p, err := a.users.GetUserByID(r.Context(), id.UserID)
	if err != nil {
		mapError(w, a.log, err)
		return
	}
	err = a.engine.ConfirmPasswordChange(r.Context(), p, req.Code, a.passwordUpdate(p.UserID, req.NewPassword))
	if err != nil {
		mapError(w, a.log, err)
		return
	}
	a.clearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// requestReset answers 202 for unknown and external accounts alike so the
// endpoint cannot be used to enumerate users.
func (a *api) requestReset(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		mapError(w, a.log, err)
		return
	}
	if p, ok := a.users.byEmailAddr(req.Email); ok {
		err := a.engine.RequestPasswordReset(r.Context(), p)
		if err != nil && !errors.Is(err, authcore.ErrPasswordChangeNotAllowed) {
			mapError(w, a.log, err)
			return
		}
	}
	writeJSON(w, http.StatusAccepted, pendingResponse{Status: "otp_sent"})
}

func (a *api) confirmReset(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		mapError(w, a.log, err)
		return
	}
	if strings.TrimSpace(req.NewPassword) == "" {
		mapError(w, a.log, authcore.ErrInvalidRequest)
		return
	}
	p, ok := a.users.byEmailAddr(req.Email)
	if !ok {
		mapError(w, a.log, authcore.ErrOTPExpired)
		return
	}
	if err := a.engine.ConfirmPasswordReset(r.Context(), p, req.Code, a.passwordUpdate(p.UserID, req.NewPassword)); err != nil {
		mapError(w, a.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	report, err := a.engine.Health(r.Context())
	if err != nil {
		mapError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"redisLatencyUs": report.RedisLatency.Microseconds(),
		"auditDropped":   report.AuditDropped,
	})
}

func (a *api) passwordUpdate(userID int64, password string) authcore.CredentialUpdate {
	return func(_ context.Context) error {
		return a.users.setPassword(userID, password)
	}
}

func (a *api) writeSession(w http.ResponseWriter, token, sessionID string, expiresIn time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.engine.AccessCookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(expiresIn / time.Second),
		HttpOnly: true,
		Secure:   a.opts.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		SessionID:   sessionID,
		ExpiresIn:   int64(expiresIn / time.Second),
	})
}

func (a *api) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.engine.AccessCookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.opts.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// accessToken returns the raw token the guard accepted.
func (a *api) accessToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		return h
	}
	if c, err := r.Cookie(a.engine.AccessCookieName()); err == nil {
		return c.Value
	}
	return ""
}
