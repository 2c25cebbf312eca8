package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"admin-auth-service/internal/autherr"
	"admin-auth-service/internal/config"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/service"
	"admin-auth-service/internal/util"
)

// AuthHandler serves the admin authentication endpoints.
type AuthHandler struct {
	auth      *service.AuthService
	sessions  *service.SessionService
	resets    *service.ResetService
	accounts  *service.AccountService
	telemetry *service.TelemetryService
	cookie    sessionCookie
	session   config.SessionConfig
	logger    *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(factory *service.ServiceFactory, cfg *config.Config, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:      factory.AuthService(),
		sessions:  factory.SessionService(),
		resets:    factory.ResetService(),
		accounts:  factory.AccountService(),
		telemetry: factory.TelemetryService(),
		cookie:    newSessionCookie(cfg.Session),
		session:   cfg.Session,
		logger:    logger,
	}
}

// RegisterRoutes registers all auth routes
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		// Public routes
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password", h.ResetPassword)
		r.Get("/lock-status", h.LockStatus)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(RequireSession(h.auth, h.session, h.logger))

			r.Get("/verify-session", h.VerifySession)
			r.Post("/refresh-token", h.RefreshToken)
			r.Post("/logout-all", h.LogoutAll)
			r.Post("/change-password", h.ChangePassword)

			r.Get("/sessions", h.ListSessions)
			r.Delete("/sessions/{sessionID}", h.TerminateSession)

			r.Get("/security-stats", h.SecurityStats)
			r.Get("/login-history", h.LoginHistory)

			r.Get("/admins", h.ListAdmins)
			r.Post("/admins", h.CreateAdmin)
			r.Delete("/admins/{accountID}", h.DeleteAdmin)
		})
	})
}

type loginResponse struct {
	User      models.Profile `json:"user"`
	SessionID string         `json:"session_id"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Login verifies credentials and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req service.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	req.IPAddress = util.NormalizeIP(r.RemoteAddr, req.IPAddress)
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}

	result, err := h.auth.Login(r.Context(), req)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	h.cookie.set(w, result.Token, result.Session.ExpiresAt)
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(loginResponse{
		User:      result.Account.Profile(),
		SessionID: result.Session.ID,
		ExpiresAt: result.Session.ExpiresAt,
	}, "Login successful"))
	h.logger.Info("Admin logged in via HTTP",
		util.String("account_id", result.Account.ID),
		util.String("session_id", result.Session.ID),
		util.Duration("duration", time.Since(startTime)),
	)
}

// Logout ends the current session if the cookie still names one, and always
// clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := h.cookie.token(r); token != "" {
		auth, err := h.auth.Authenticate(r.Context(), token)
		switch {
		case err == nil:
			if err := h.auth.Logout(r.Context(), auth); err != nil {
				respondWithError(w, h.logger, err)
				return
			}
		case !autherr.IsSessionFailure(err):
			respondWithError(w, h.logger, err)
			return
		}
	}
	h.cookie.clear(w)
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(nil, "Logged out"))
}

type logoutAllRequest struct {
	UserID string `json:"user_id"`
}

// LogoutAll ends every session of the target account (the caller by default).
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	auth, _ := AuthFromContext(r.Context())

	var req logoutAllRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithError(w, h.logger, err)
			return
		}
	}

	n, err := h.auth.LogoutAll(r.Context(), auth, req.UserID)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	if req.UserID == "" || req.UserID == auth.Account.ID {
		h.cookie.clear(w)
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(map[string]int{"terminated": n}, "All sessions terminated"))
}

type forgotPasswordRequest struct {
	Email     string `json:"email"`
	IPAddress string `json:"ip_address"`
}

// ForgotPassword answers identically whether or not the account exists.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	ip := util.NormalizeIP(r.RemoteAddr, req.IPAddress)
	if err := h.resets.RequestReset(r.Context(), req.Email, ip); err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK,
		successResponse(nil, "If an account exists for this email, a reset link has been sent"))
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	if err := h.resets.RedeemReset(r.Context(), req.Token, req.NewPassword); err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(nil, "Password has been reset"))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	auth, _ := AuthFromContext(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	if err := h.auth.ChangePassword(r.Context(), auth, req.CurrentPassword, req.NewPassword); err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(nil, "Password changed"))
}

type sessionResponse struct {
	User      models.Profile `json:"user"`
	SessionID string         `json:"session_id"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// VerifySession is called on every protected page load.
func (h *AuthHandler) VerifySession(w http.ResponseWriter, r *http.Request) {
	auth, _ := AuthFromContext(r.Context())
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(sessionResponse{
		User:      h.auth.Profile(auth),
		SessionID: auth.Session.ID,
		ExpiresAt: auth.Session.ExpiresAt,
	}, ""))
}

// RefreshToken slides the session expiry and reissues the cookie with it.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	auth, _ := AuthFromContext(r.Context())
	token := h.cookie.token(r)

	session, err := h.sessions.Refresh(r.Context(), token)
	if err != nil {
		if autherr.IsSessionFailure(err) {
			h.cookie.clear(w)
		}
		respondWithError(w, h.logger, err)
		return
	}
	h.cookie.set(w, token, session.ExpiresAt)
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(sessionResponse{
		User:      h.auth.Profile(auth),
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	}, "Session refreshed"))
}

// LockStatus reports whether an email is locked out and until when, for the
// login page's countdown. It is public and omits the failure count.
func (h *AuthHandler) LockStatus(w http.ResponseWriter, r *http.Request) {
	email := util.NormalizeEmail(r.URL.Query().Get("email"))
	if email == "" {
		respondWithError(w, h.logger, autherr.Newf(autherr.InvalidInput, "email is required"))
		return
	}
	status, err := h.auth.LockStatus(r.Context(), email)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(status, ""))
}
