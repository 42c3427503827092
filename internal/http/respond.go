package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/splax/healthmatters/internal/apperr"
	"github.com/splax/healthmatters/internal/service/labs"
	"github.com/splax/healthmatters/internal/uploads"
)

const maxJSONBody = 1 << 20

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeMessage sends a {"message": ...} body.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeAppError translates a service error into its HTTP status and public message.
func (r *Router) writeAppError(w http.ResponseWriter, req *http.Request, err error) {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, labs.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Lab result not found")
		return
	case errors.As(err, &tooBig):
		err = uploads.TooLarge(r.maxUploadBytes)
	}
	status := apperr.StatusCode(err)
	if status >= http.StatusInternalServerError {
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
	}
	writeMessage(w, status, apperr.PublicMessage(err))
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst untouched when
// allowEmpty is set.
func decodeJSON(w http.ResponseWriter, req *http.Request, dst any, allowEmpty bool) error {
	body := http.MaxBytesReader(w, req.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperr.TooLarge("Request body too large")
		}
		return apperr.Validation("Invalid JSON body")
	}
	return nil
}
