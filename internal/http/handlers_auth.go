package httpx

import (
	"net/http"
	"time"

	"github.com/splax/healthmatters/internal/domain"
	"github.com/splax/healthmatters/internal/service/auth"
)

const msgResetRequested = "If an account exists with that email, you will receive password reset instructions."

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload auth.Credentials
	if err := decodeJSON(w, req, &payload, false); err != nil {
		r.writeAppError(w, req, err)
		return
	}
	user, session, err := r.auth.Register(req.Context(), payload)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	if err := r.setSessionCookie(w, session); err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Registration successful",
		"user":    user.Public(),
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload auth.LoginInput
	if err := decodeJSON(w, req, &payload, false); err != nil {
		r.writeAppError(w, req, err)
		return
	}
	user, session, err := r.auth.Login(req.Context(), payload)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	if err := r.setSessionCookie(w, session); err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user":    user.Public(),
	})
}

func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if sid, ok := r.sessionID(req); ok {
		if err := r.auth.Logout(req.Context(), sid); err != nil {
			r.writeAppError(w, req, err)
			return
		}
	}
	r.clearSessionCookie(w)
	writeMessage(w, http.StatusOK, "Logout successful")
}

func (r *Router) handleCurrentUser(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := sessionInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("session context missing", "path", req.URL.Path)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, currentUserPayload(info.User))
}

func currentUserPayload(user domain.User) map[string]any {
	return map[string]any{
		"id":        user.ID,
		"email":     user.Email,
		"createdAt": user.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (r *Router) handleResetRequest(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload auth.ResetRequest
	if err := decodeJSON(w, req, &payload, false); err != nil {
		r.writeAppError(w, req, err)
		return
	}
	if err := r.auth.RequestPasswordReset(req.Context(), payload); err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeMessage(w, http.StatusOK, msgResetRequested)
}

func (r *Router) handleResetVerify(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload auth.ResetVerify
	if err := decodeJSON(w, req, &payload, false); err != nil {
		r.writeAppError(w, req, err)
		return
	}
	if err := r.auth.VerifyPasswordReset(req.Context(), payload); err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password has been reset successfully")
}
