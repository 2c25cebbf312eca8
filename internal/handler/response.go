package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"admin-auth-service/internal/autherr"
	"admin-auth-service/internal/util"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta carries list metadata
type Meta struct {
	Total  int    `json:"total"`
	Limit  int    `json:"limit,omitempty"`
	Window string `json:"window,omitempty"`
}

// successResponse creates a successful response
func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

// errorResponse creates an error response. The message follows the wire
// kind, so kinds folded together by getStatusCode read the same; detail is
// only attached when the kind is reported as is. Internal failures never
// leak their cause.
func errorResponse(kind autherr.Kind, err error) Response {
	message := autherr.New(kind).Message()
	var ae *autherr.Error
	if errors.As(err, &ae) && ae.Kind == kind && kind != autherr.Internal &&
		kind != autherr.NotFound && ae.Detail != "" {
		message += ": " + ae.Detail
	}
	return Response{
		Success: false,
		Error:   string(kind),
		Message: message,
	}
}

func respondWithJSON(w http.ResponseWriter, logger *zap.Logger, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError maps err onto a status and wire code and writes it.
func respondWithError(w http.ResponseWriter, logger *zap.Logger, err error) {
	statusCode, kind := getStatusCode(err)
	if statusCode >= http.StatusInternalServerError {
		logger.Error("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", statusCode))
	} else {
		logger.Debug("HTTP error response",
			util.String("error_kind", string(kind)),
			util.ErrorField(err),
			util.Int("status_code", statusCode))
	}
	if retryAfter := autherr.RetryAfter(err); retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	respondWithJSON(w, logger, statusCode, errorResponse(kind, err))
}

// getStatusCode determines the HTTP status and the wire error code for an
// error. Expired and invalid sessions share one code so clients handle them
// the same way.
func getStatusCode(err error) (int, autherr.Kind) {
	kind := autherr.KindOf(err)
	switch kind {
	case autherr.InvalidCredentials:
		return http.StatusUnauthorized, kind
	case autherr.AccountLocked:
		return http.StatusTooManyRequests, kind
	case autherr.InvalidSession, autherr.ExpiredSession:
		return http.StatusUnauthorized, autherr.InvalidSession
	case autherr.NotAuthenticated:
		return http.StatusUnauthorized, kind
	case autherr.DuplicateEmail:
		return http.StatusConflict, kind
	case autherr.WeakPassword, autherr.InvalidInput,
		autherr.InvalidResetToken, autherr.ExpiredResetToken,
		autherr.CannotTerminateCurrentSession:
		return http.StatusBadRequest, kind
	case autherr.SelfDeletionForbidden, autherr.PermissionDenied:
		return http.StatusForbidden, kind
	case autherr.NotFound:
		return http.StatusNotFound, kind
	default:
		return http.StatusInternalServerError, autherr.Internal
	}
}

// decodeJSON reads a request body into dst, reporting malformed JSON as
// invalid input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		e := autherr.Wrap(autherr.InvalidInput, err)
		e.Detail = "invalid request body"
		return e
	}
	return nil
}
