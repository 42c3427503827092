package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/splax/healthmatters/internal/apperr"
	"github.com/splax/healthmatters/internal/service/labs"
	"github.com/splax/healthmatters/internal/service/profile"
)

const uploadField = "pdf"

func (r *Router) handleHealthProfile(w http.ResponseWriter, req *http.Request) {
	info, ok := sessionInfoFromContext(req.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Not logged in")
		return
	}
	switch req.Method {
	case http.MethodGet:
		p, err := r.profiles.Get(req.Context(), info.User.ID)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodPost:
		var payload profile.Input
		if err := decodeJSON(w, req, &payload, false); err != nil {
			r.writeAppError(w, req, err)
			return
		}
		saved, err := r.profiles.Save(req.Context(), info.User.ID, payload)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleBMI(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := sessionInfoFromContext(req.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Not logged in")
		return
	}
	bmi, err := r.profiles.BMI(req.Context(), info.User.ID)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, bmi)
}

func (r *Router) handleLabResults(w http.ResponseWriter, req *http.Request) {
	info, ok := sessionInfoFromContext(req.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Not logged in")
		return
	}
	switch req.Method {
	case http.MethodGet:
		results, err := r.labs.List(req.Context(), info.User.ID)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	case http.MethodPost:
		r.handleLabUpload(w, req, info.User.ID)
	default:
		r.methodNotAllowed(w)
	}
}

// handleLabUpload streams the multipart "pdf" part into the lab service without buffering the
// whole form.
func (r *Router) handleLabUpload(w http.ResponseWriter, req *http.Request, userID string) {
	req.Body = http.MaxBytesReader(w, req.Body, r.maxUploadBytes+multipartOverhead)
	part, err := findFilePart(req, uploadField)
	if err != nil {
		r.recordLabUpload("rejected")
		r.writeAppError(w, req, err)
		return
	}
	defer part.Close()

	result, err := r.labs.Upload(req.Context(), userID, labs.Upload{
		FileName:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Body:        part,
	})
	if err != nil {
		r.recordLabUpload(uploadOutcome(err))
		r.writeAppError(w, req, err)
		return
	}
	r.recordLabUpload("analysed")
	writeJSON(w, http.StatusOK, result)
}

func findFilePart(req *http.Request, field string) (*multipart.Part, error) {
	reader, err := req.MultipartReader()
	if err != nil {
		return nil, apperr.Validation("No PDF file uploaded")
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, apperr.Validation("No PDF file uploaded")
		}
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return nil, err
			}
			return nil, apperr.Validation("Malformed multipart body")
		}
		if part.FormName() == field && part.FileName() != "" {
			return part, nil
		}
		_ = part.Close()
	}
}

func uploadOutcome(err error) string {
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig), apperr.Is(err, apperr.KindTooLarge):
		return "too_large"
	case apperr.Is(err, apperr.KindValidation), apperr.Is(err, apperr.KindNotFound):
		return "rejected"
	case apperr.Is(err, apperr.KindUpstream):
		return "upstream_error"
	default:
		return "error"
	}
}

func (r *Router) handleLabResultSubroutes(w http.ResponseWriter, req *http.Request) {
	info, ok := sessionInfoFromContext(req.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Not logged in")
		return
	}
	rest := strings.Trim(strings.TrimPrefix(req.URL.Path, "/api/lab-results/"), "/")
	parts := strings.Split(rest, "/")
	if rest == "" || len(parts) > 2 {
		r.notFound(w)
		return
	}
	id := parts[0]
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if len(parts) == 1 {
		result, err := r.labs.Get(req.Context(), info.User.ID, id)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}
	if parts[1] != "report" {
		r.notFound(w)
		return
	}
	var buf bytes.Buffer
	if err := r.labs.Report(req.Context(), info.User.ID, id, &buf); err != nil {
		r.writeAppError(w, req, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "lab-report-"+id+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (r *Router) handleHealthTips(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := sessionInfoFromContext(req.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Not logged in")
		return
	}
	var payload labs.TipsInput
	if err := decodeJSON(w, req, &payload, true); err != nil {
		r.writeAppError(w, req, err)
		return
	}
	tips, err := r.labs.Tips(req.Context(), info.User.ID, payload)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tips": tips})
}
