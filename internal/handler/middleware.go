package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"admin-auth-service/internal/autherr"
	"admin-auth-service/internal/config"
	"admin-auth-service/internal/service"
	"admin-auth-service/internal/util"
)

const defaultCookieName = "admin_session"

// Authenticator resolves a session token to the calling account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*service.AuthContext, error)
}

type authContextKey struct{}

// WithAuth returns a copy of ctx carrying the authenticated caller.
func WithAuth(ctx context.Context, auth *service.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// AuthFromContext returns the caller placed on the context by RequireSession.
func AuthFromContext(ctx context.Context) (*service.AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(*service.AuthContext)
	return auth, ok && auth != nil
}

// sessionCookie reads and writes the http-only session credential. The token
// never appears in a response body.
type sessionCookie struct {
	name   string
	secure bool
}

func newSessionCookie(cfg config.SessionConfig) sessionCookie {
	name := cfg.CookieName
	if name == "" {
		name = defaultCookieName
	}
	return sessionCookie{name: name, secure: cfg.CookieSecure}
}

func (c sessionCookie) token(r *http.Request) string {
	cookie, err := r.Cookie(c.name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (c sessionCookie) set(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c sessionCookie) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// RequireSession verifies the session cookie and puts the caller's
// AuthContext on the request context. A rejected credential is cleared.
func RequireSession(authenticator Authenticator, cfg config.SessionConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	cookie := newSessionCookie(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := cookie.token(r)
			if token == "" {
				respondWithError(w, logger, autherr.ErrNotAuthenticated)
				return
			}
			auth, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				if autherr.IsSessionFailure(err) {
					cookie.clear(w)
				}
				respondWithError(w, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), auth)))
		})
	}
}

// requireHTTPS rejects any request that wasn't made over TLS
func requireHTTPS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUpgradeRequired)
			w.Write([]byte(`{"success":false,"error":"https_required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
					util.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
