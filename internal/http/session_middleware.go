package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/splax/healthmatters/internal/apperr"
	"github.com/splax/healthmatters/internal/domain"
	jwtpkg "github.com/splax/healthmatters/pkg/jwt"
)

type sessionContextKey string

type sessionInfo struct {
	SessionID string
	User      domain.User
}

const contextKeySession sessionContextKey = "hm-session-info"

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secret string
	TTL    time.Duration
	Secure bool
}

type contextSetter interface {
	SetContext(context.Context)
}

// requireSession resolves the session cookie to a user before invoking the handler.
func (r *Router) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		sid, ok := r.sessionID(req)
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "Not logged in")
			return
		}
		user, err := r.auth.CurrentUser(req.Context(), sid)
		if err != nil {
			if !apperr.Is(err, apperr.KindNotAuthenticated) {
				r.writeAppError(w, req, err)
				return
			}
			r.logger.Debug("session rejected", "path", req.URL.Path)
			writeMessage(w, http.StatusUnauthorized, "Not logged in")
			return
		}
		ctx := context.WithValue(req.Context(), contextKeySession, sessionInfo{SessionID: sid, User: *user})
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// sessionID extracts the session id from the signed cookie.
func (r *Router) sessionID(req *http.Request) (string, bool) {
	cookie, err := req.Cookie(r.cookie.Name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	claims, err := jwtpkg.Parse(cookie.Value, r.cookie.Secret)
	if err != nil {
		r.logger.Warn("session cookie invalid", "error", err, "path", req.URL.Path)
		return "", false
	}
	return claims.SessionID, true
}

func (r *Router) setSessionCookie(w http.ResponseWriter, session domain.Session) error {
	token, err := jwtpkg.GenerateToken(session.ID, r.cookie.Secret, r.cookie.TTL)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     r.cookie.Name,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   int(time.Until(session.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   r.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (r *Router) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     r.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionInfoFromContext extracts session metadata from context.
func sessionInfoFromContext(ctx context.Context) (sessionInfo, bool) {
	value := ctx.Value(contextKeySession)
	if value == nil {
		return sessionInfo{}, false
	}
	info, ok := value.(sessionInfo)
	return info, ok
}
