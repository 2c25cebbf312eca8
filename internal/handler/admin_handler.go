package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"admin-auth-service/internal/autherr"
	"admin-auth-service/internal/service"
	"admin-auth-service/internal/telemetry"
	"admin-auth-service/internal/util"
)

// ListSessions returns the caller's active sessions with the current one
// flagged.
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	auth, _ := AuthFromContext(r.Context())

	sessions, err := h.sessions.ListActive(r.Context(), auth.Account.ID, auth.Session.ID)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	resp := successResponse(map[string]interface{}{"sessions": sessions}, "")
	resp.Meta = &Meta{Total: len(sessions)}
	respondWithJSON(w, h.logger, http.StatusOK, resp)
}

// TerminateSession ends one of the caller's other sessions.
func (h *AuthHandler) TerminateSession(w http.ResponseWriter, r *http.Request) {
	auth, _ := AuthFromContext(r.Context())

	sessionID := chi.URLParam(r, "sessionID")
	if err := h.sessions.Terminate(r.Context(), sessionID, auth); err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	h.logger.Info("Session terminated via HTTP",
		util.String("account_id", auth.Account.ID),
		util.String("session_id", sessionID))
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(nil, "Session terminated"))
}

func (h *AuthHandler) SecurityStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.telemetry.GetStats(r.Context(), r.URL.Query().Get("window"))
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(map[string]interface{}{"stats": stats}, ""))
}

func (h *AuthHandler) LoginHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	window := query.Get("window")
	if window == "" {
		window = telemetry.DefaultWindow
	}
	failuresOnly := false
	if v := query.Get("failures_only"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			respondWithError(w, h.logger, autherr.Newf(autherr.InvalidInput, "failures_only must be a boolean"))
			return
		}
		failuresOnly = parsed
	}
	limit := 0
	if v := query.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			respondWithError(w, h.logger, autherr.Newf(autherr.InvalidInput, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	history, err := h.telemetry.GetLoginHistory(r.Context(), window, failuresOnly, limit)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	resp := successResponse(map[string]interface{}{"history": history}, "")
	resp.Meta = &Meta{Total: len(history), Limit: limit, Window: window}
	respondWithJSON(w, h.logger, http.StatusOK, resp)
}

func (h *AuthHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	resp := successResponse(map[string]interface{}{"admins": accounts}, "")
	resp.Meta = &Meta{Total: len(accounts)}
	respondWithJSON(w, h.logger, http.StatusOK, resp)
}

// CreateAdmin adds an account. Only admins may call it.
func (h *AuthHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	auth, _ := AuthFromContext(r.Context())

	var req service.CreateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	account, err := h.accounts.Create(r.Context(), auth, req)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusCreated,
		successResponse(map[string]interface{}{"admin": account}, "Admin created"))
}

func (h *AuthHandler) DeleteAdmin(w http.ResponseWriter, r *http.Request) {
	auth, _ := AuthFromContext(r.Context())

	if err := h.accounts.Delete(r.Context(), auth, chi.URLParam(r, "accountID")); err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(nil, "Admin deleted"))
}
