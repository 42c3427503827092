package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/phpdave11/gofpdf"

	"github.com/splax/healthmatters/internal/service/auth"
	"github.com/splax/healthmatters/internal/service/labs"
	"github.com/splax/healthmatters/internal/service/profile"
	"github.com/splax/healthmatters/internal/session"
	"github.com/splax/healthmatters/internal/uploads"
	"github.com/splax/healthmatters/pkg/config"
)

const testSecret = "router-test-secret"

type testEnv struct {
	router   *Router
	auth     auth.Service
	store    *memoryStore
	mail     *mailStub
	analyzer *analyzerStub
	uploads  *uploads.Manager
}

type envOption func(*Options)

func setupRouter(t *testing.T, opts ...envOption) testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newMemoryStore()
	mail := &mailStub{}
	an := &analyzerStub{}
	sessions := session.NewMemoryStore(time.Hour)
	t.Cleanup(sessions.Close)

	files, err := uploads.New(t.TempDir())
	if err != nil {
		t.Fatalf("uploads: %v", err)
	}
	cfg := config.APIConfig{AppBaseURL: "http://app.test", ResetTokenTTL: time.Hour}
	options := Options{
		Logger:         logger,
		Limiter:        &rateLimiterStub{},
		Cookie:         CookieConfig{Name: "hm.sid", Secret: testSecret, TTL: time.Hour},
		MaxUploadBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(&options)
	}
	profiles := profile.New(store, logger)
	authSvc := auth.New(store, store, sessions, mail, logger, cfg)
	t.Cleanup(authSvc.WaitPending)
	options.Auth = authSvc
	options.Profiles = profiles
	options.Labs = labs.New(store, profiles, files, an, options.MaxUploadBytes, logger)

	router := NewRouter(options)
	t.Cleanup(router.Close)
	return testEnv{router: router, auth: authSvc, store: store, mail: mail, analyzer: an, uploads: files}
}

func (e testEnv) do(t *testing.T, method, target string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e testEnv) register(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/register", map[string]string{"email": email, "password": password}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	return sessionCookie(t, rr)
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == "hm.sid" {
			return c
		}
	}
	t.Fatalf("session cookie not set")
	return nil
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}

func expectMessage(t *testing.T, rr *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	var body map[string]any
	decodeBody(t, rr, &body)
	if body["message"] != message {
		t.Fatalf("expected message %q, got %v", message, body["message"])
	}
}

func TestRegisterSetsSessionCookie(t *testing.T) {
	env := setupRouter(t)
	rr := env.do(t, http.MethodPost, "/api/register", map[string]string{"email": "Ada@Example.com", "password": "correct horse"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Message string `json:"message"`
		User    struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	decodeBody(t, rr, &body)
	if body.Message != "Registration successful" || body.User.ID == "" || body.User.Email != "ada@example.com" {
		t.Fatalf("unexpected body %+v", body)
	}
	if strings.Contains(rr.Body.String(), "password") {
		t.Fatalf("response leaks credential fields: %s", rr.Body.String())
	}
	cookie := sessionCookie(t, rr)
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode || cookie.Path != "/" {
		t.Fatalf("unexpected cookie attributes %+v", cookie)
	}

	me := env.do(t, http.MethodGet, "/api/user", nil, cookie)
	if me.Code != http.StatusOK {
		t.Fatalf("expected 200 from /api/user, got %d", me.Code)
	}
	var user map[string]any
	decodeBody(t, me, &user)
	if user["email"] != "ada@example.com" || user["id"] != body.User.ID || user["createdAt"] == "" {
		t.Fatalf("unexpected current user %v", user)
	}
}

func TestRegisterErrors(t *testing.T) {
	env := setupRouter(t)
	env.register(t, "ada@example.com", "correct horse")

	rr := env.do(t, http.MethodPost, "/api/register", map[string]string{"email": "ADA@example.com", "password": "another pass"}, nil)
	expectMessage(t, rr, http.StatusBadRequest, "Email already registered")

	rr = env.do(t, http.MethodPost, "/api/register", map[string]string{"email": "not-an-email", "password": "short"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid input, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader("{"))
	raw := httptest.NewRecorder()
	env.router.ServeHTTP(raw, req)
	expectMessage(t, raw, http.StatusBadRequest, "Invalid JSON body")

	rr = env.do(t, http.MethodGet, "/api/register", nil, nil)
	expectMessage(t, rr, http.StatusMethodNotAllowed, "method not allowed")
}

func TestLoginUsesOneMessageForEveryFailure(t *testing.T) {
	env := setupRouter(t)
	env.register(t, "ada@example.com", "correct horse")

	wrong := env.do(t, http.MethodPost, "/api/login", map[string]string{"email": "ada@example.com", "password": "wrong horse"}, nil)
	expectMessage(t, wrong, http.StatusBadRequest, "Incorrect email or password")
	unknown := env.do(t, http.MethodPost, "/api/login", map[string]string{"email": "bob@example.com", "password": "wrong horse"}, nil)
	expectMessage(t, unknown, http.StatusBadRequest, "Incorrect email or password")

	ok := env.do(t, http.MethodPost, "/api/login", map[string]string{"email": "ada@example.com", "password": "correct horse"}, nil)
	expectMessage(t, ok, http.StatusOK, "Login successful")
	sessionCookie(t, ok)
}

func TestCurrentUserRequiresValidCookie(t *testing.T) {
	env := setupRouter(t)
	expectMessage(t, env.do(t, http.MethodGet, "/api/user", nil, nil), http.StatusUnauthorized, "Not logged in")

	cookie := env.register(t, "ada@example.com", "correct horse")
	tampered := &http.Cookie{Name: cookie.Name, Value: cookie.Value + "x"}
	expectMessage(t, env.do(t, http.MethodGet, "/api/user", nil, tampered), http.StatusUnauthorized, "Not logged in")

	garbage := &http.Cookie{Name: cookie.Name, Value: "not-a-token"}
	expectMessage(t, env.do(t, http.MethodGet, "/api/user", nil, garbage), http.StatusUnauthorized, "Not logged in")
}

func TestLogoutClearsSession(t *testing.T) {
	env := setupRouter(t)
	cookie := env.register(t, "ada@example.com", "correct horse")

	rr := env.do(t, http.MethodPost, "/api/logout", nil, cookie)
	expectMessage(t, rr, http.StatusOK, "Logout successful")
	cleared := sessionCookie(t, rr)
	if cleared.MaxAge >= 0 || cleared.Value != "" {
		t.Fatalf("expected cookie to be cleared, got %+v", cleared)
	}
	expectMessage(t, env.do(t, http.MethodGet, "/api/user", nil, cookie), http.StatusUnauthorized, "Not logged in")

	again := env.do(t, http.MethodPost, "/api/logout", nil, nil)
	expectMessage(t, again, http.StatusOK, "Logout successful")
}

func TestPasswordResetFlow(t *testing.T) {
	env := setupRouter(t)
	oldSession := env.register(t, "ada@example.com", "correct horse")

	const accepted = "If an account exists with that email, you will receive password reset instructions."
	expectMessage(t, env.do(t, http.MethodPost, "/api/reset-password", map[string]string{"email": "nobody@example.com"}, nil), http.StatusOK, accepted)
	expectMessage(t, env.do(t, http.MethodPost, "/api/reset-password", map[string]string{"email": "ada@example.com"}, nil), http.StatusOK, accepted)
	if rr := env.do(t, http.MethodPost, "/api/reset-password", map[string]string{"email": ""}, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing email, got %d", rr.Code)
	}

	env.auth.WaitPending()
	link := env.mail.linkFor("ada@example.com")
	if !strings.HasPrefix(link, "http://app.test/reset-password?token=") {
		t.Fatalf("unexpected reset link %q", link)
	}
	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	token := parsed.Query().Get("token")

	verify := map[string]string{"token": token, "newPassword": "battery staple"}
	expectMessage(t, env.do(t, http.MethodPost, "/api/reset-password/verify", verify, nil), http.StatusOK, "Password has been reset successfully")
	expectMessage(t, env.do(t, http.MethodPost, "/api/reset-password/verify", verify, nil), http.StatusBadRequest, "Invalid or expired reset token")

	expectMessage(t, env.do(t, http.MethodGet, "/api/user", nil, oldSession), http.StatusUnauthorized, "Not logged in")
	expectMessage(t, env.do(t, http.MethodPost, "/api/login", map[string]string{"email": "ada@example.com", "password": "correct horse"}, nil), http.StatusBadRequest, "Incorrect email or password")
	expectMessage(t, env.do(t, http.MethodPost, "/api/login", map[string]string{"email": "ada@example.com", "password": "battery staple"}, nil), http.StatusOK, "Login successful")
}

func validProfile() map[string]any {
	return map[string]any{
		"birthdate":         "1990-06-15",
		"sex":               "female",
		"heightFeet":        5,
		"heightInches":      8,
		"weightPounds":      150,
		"medicalConditions": []string{"asthma"},
		"medications":       []string{},
	}
}

func TestHealthProfileRoutes(t *testing.T) {
	env := setupRouter(t)
	cookie := env.register(t, "ada@example.com", "correct horse")

	empty := env.do(t, http.MethodGet, "/api/health-profile", nil, cookie)
	if empty.Code != http.StatusOK || strings.TrimSpace(empty.Body.String()) != "null" {
		t.Fatalf("expected null profile, got %d %q", empty.Code, empty.Body.String())
	}
	expectMessage(t, env.do(t, http.MethodGet, "/api/health-profile/bmi", nil, cookie), http.StatusBadRequest, "Please complete your health profile first")

	invalid := validProfile()
	invalid["sex"] = "unknown"
	if rr := env.do(t, http.MethodPost, "/api/health-profile", invalid, cookie); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid profile, got %d", rr.Code)
	}

	saved := env.do(t, http.MethodPost, "/api/health-profile", validProfile(), cookie)
	if saved.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", saved.Code, saved.Body.String())
	}
	var p map[string]any
	decodeBody(t, saved, &p)
	if p["sex"] != "female" || p["heightFeet"] != float64(5) || p["birthdate"] != "1990-06-15" {
		t.Fatalf("unexpected saved profile %v", p)
	}

	bmi := env.do(t, http.MethodGet, "/api/health-profile/bmi", nil, cookie)
	var result map[string]any
	decodeBody(t, bmi, &result)
	if result["bmi"] != 22.8 || result["category"] != "normal" {
		t.Fatalf("unexpected bmi %v", result)
	}

	if rr := env.do(t, http.MethodGet, "/api/health-profile", nil, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", rr.Code)
	}
}

func samplePDF(t *testing.T, line string) []byte {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	doc.AddPage()
	doc.SetFont("Helvetica", "", 12)
	doc.Cell(40, 10, line)
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("render pdf: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, field, fileName, contentType string, content []byte, cookie *http.Cookie) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+fileName+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/lab-results", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func (e testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func assertUploadsEmpty(t *testing.T, files *uploads.Manager) {
	t.Helper()
	entries, err := os.ReadDir(files.Root())
	if err != nil {
		t.Fatalf("read uploads: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected staged uploads to be removed, found %d", len(entries))
	}
}

func TestLabResultUploadFlow(t *testing.T) {
	env := setupRouter(t)
	cookie := env.register(t, "ada@example.com", "correct horse")
	pdf := samplePDF(t, "Glucose 90 mg/dL")

	rr := env.serve(uploadRequest(t, "pdf", "labs.pdf", "application/pdf", pdf, cookie))
	expectMessage(t, rr, http.StatusBadRequest, "Please complete your health profile first")

	if rr := env.do(t, http.MethodPost, "/api/health-profile", validProfile(), cookie); rr.Code != http.StatusOK {
		t.Fatalf("save profile: %d", rr.Code)
	}

	rr = env.serve(uploadRequest(t, "pdf", "notes.txt", "text/plain", []byte("hello"), cookie))
	expectMessage(t, rr, http.StatusBadRequest, "Only PDF files are allowed")
	rr = env.serve(uploadRequest(t, "file", "labs.pdf", "application/pdf", pdf, cookie))
	expectMessage(t, rr, http.StatusBadRequest, "No PDF file uploaded")

	rr = env.serve(uploadRequest(t, "pdf", "labs.pdf", "application/pdf", pdf, cookie))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		ID       string `json:"id"`
		FileName string `json:"fileName"`
		Analysis struct {
			BMI struct {
				Score    float64 `json:"score"`
				Category string  `json:"category"`
			} `json:"bmi"`
			Analysis []map[string]any `json:"analysis"`
		} `json:"analysis"`
	}
	decodeBody(t, rr, &created)
	if created.ID == "" || created.FileName != "labs.pdf" || created.Analysis.BMI.Score != 22.8 || len(created.Analysis.Analysis) != 1 {
		t.Fatalf("unexpected upload response %s", rr.Body.String())
	}
	if !strings.Contains(env.analyzer.text, "Glucose") {
		t.Fatalf("extracted text not passed to analyzer: %q", env.analyzer.text)
	}
	assertUploadsEmpty(t, env.uploads)

	list := env.do(t, http.MethodGet, "/api/lab-results", nil, cookie)
	var results []map[string]any
	decodeBody(t, list, &results)
	if len(results) != 1 || results[0]["id"] != created.ID {
		t.Fatalf("unexpected list %v", results)
	}

	report := env.do(t, http.MethodGet, "/api/lab-results/"+created.ID+"/report", nil, cookie)
	if report.Code != http.StatusOK || report.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected report response %d %q", report.Code, report.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(report.Body.Bytes(), []byte("%PDF-")) {
		t.Fatalf("report is not a PDF")
	}

	other := env.register(t, "bob@example.com", "correct horse")
	expectMessage(t, env.do(t, http.MethodGet, "/api/lab-results/"+created.ID+"/report", nil, other), http.StatusNotFound, "Lab result not found")
	expectMessage(t, env.do(t, http.MethodGet, "/api/lab-results/not-an-id", nil, cookie), http.StatusNotFound, "Lab result not found")
}

func TestLabResultUploadTooLarge(t *testing.T) {
	env := setupRouter(t, func(o *Options) { o.MaxUploadBytes = 2048 })
	cookie := env.register(t, "ada@example.com", "correct horse")
	if rr := env.do(t, http.MethodPost, "/api/health-profile", validProfile(), cookie); rr.Code != http.StatusOK {
		t.Fatalf("save profile: %d", rr.Code)
	}
	content := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("0"), 8192)...)
	rr := env.serve(uploadRequest(t, "pdf", "big.pdf", "application/pdf", content, cookie))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rr.Code, rr.Body.String())
	}
	assertUploadsEmpty(t, env.uploads)
}

func TestHealthTips(t *testing.T) {
	env := setupRouter(t)
	cookie := env.register(t, "ada@example.com", "correct horse")

	req := httptest.NewRequest(http.MethodPost, "/api/health-tips", nil)
	req.AddCookie(cookie)
	expectMessage(t, env.serve(req), http.StatusBadRequest, "Please complete your health profile first")

	rr := env.do(t, http.MethodPost, "/api/health-tips", map[string]any{"age": 40, "sex": "male", "bmi": 24.1}, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Tips []string `json:"tips"`
	}
	decodeBody(t, rr, &body)
	if len(body.Tips) != 2 {
		t.Fatalf("unexpected tips %v", body.Tips)
	}
}

func TestRateLimitedLogin(t *testing.T) {
	limiter := newMemoryRateLimiter(time.Now)
	env := setupRouter(t, func(o *Options) { o.Limiter = limiter })
	payload := map[string]string{"email": "ada@example.com", "password": "whatever1"}
	for i := 0; i < rateLimitLogin; i++ {
		if rr := env.do(t, http.MethodPost, "/api/login", payload, nil); rr.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d limited too early", i+1)
		}
	}
	rr := env.do(t, http.MethodPost, "/api/login", payload, nil)
	expectMessage(t, rr, http.StatusTooManyRequests, "Too many requests, please try again later")
	if got := rr.Header().Get("X-RateLimit-Limit"); got != "12" {
		t.Fatalf("unexpected limit header %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("unexpected remaining header %q", got)
	}

	if rr := env.do(t, http.MethodPost, "/api/reset-password", map[string]string{"email": "ada@example.com"}, nil); rr.Code != http.StatusOK {
		t.Fatalf("other routes must keep their own budget, got %d", rr.Code)
	}
}

func TestAuditLogRecordsPeerAddress(t *testing.T) {
	var buf bytes.Buffer
	env := setupRouter(t, func(o *Options) { o.Logger = slog.New(slog.NewJSONHandler(&buf, nil)) })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "198.51.100.7:40000"
	req.Header.Set("X-Forwarded-For", "10.9.8.7, 203.0.113.1")
	env.router.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["ip"] != "198.51.100.7" {
		t.Fatalf("expected peer address in ip, got %v", entry["ip"])
	}
	if entry["forwarded_for"] != "10.9.8.7, 203.0.113.1" {
		t.Fatalf("expected forwarded header under its own key, got %v", entry["forwarded_for"])
	}
}

func TestSessionRoutesAreLimitedPerUser(t *testing.T) {
	limiter := &rateLimiterStub{}
	env := setupRouter(t, func(o *Options) { o.Limiter = limiter })
	cookie := env.register(t, "ada@example.com", "correct horse")

	env.do(t, http.MethodGet, "/api/health-profile", nil, cookie)
	env.do(t, http.MethodPost, "/api/health-profile", validProfile(), cookie)

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if len(limiter.calls) != 3 {
		t.Fatalf("expected 3 limiter calls, got %d", len(limiter.calls))
	}
	read, write := limiter.calls[1], limiter.calls[2]
	if !strings.HasPrefix(read.key, "user:") || !strings.HasSuffix(read.key, "|health_profile.read") || read.limit != rateLimitUserRead {
		t.Fatalf("unexpected read call %+v", read)
	}
	if !strings.HasSuffix(write.key, "|health_profile.write") || write.limit != rateLimitUserWrite {
		t.Fatalf("unexpected write call %+v", write)
	}
}

func TestHealthz(t *testing.T) {
	env := setupRouter(t, func(o *Options) {
		o.DBHealth = func(context.Context) error { return errors.New("connection refused") }
	})
	rr := env.do(t, http.MethodGet, "/healthz", nil, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var body map[string]any
	decodeBody(t, rr, &body)
	if body["status"] != "degraded" {
		t.Fatalf("unexpected health payload %v", body)
	}

	healthy := setupRouter(t, func(o *Options) { o.DBHealth = func(context.Context) error { return nil } })
	if rr := healthy.do(t, http.MethodGet, "/healthz", nil, nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestStaticFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o600); err != nil {
		t.Fatalf("write index: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log('hm')"), 0o600); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	env := setupRouter(t, func(o *Options) { o.StaticDir = dir })

	asset := env.do(t, http.MethodGet, "/app.js", nil, nil)
	if asset.Code != http.StatusOK || !strings.Contains(asset.Body.String(), "console.log") {
		t.Fatalf("unexpected asset response %d %q", asset.Code, asset.Body.String())
	}
	page := env.do(t, http.MethodGet, "/dashboard/labs", nil, nil)
	if page.Code != http.StatusOK || !strings.Contains(page.Body.String(), "<html>app</html>") {
		t.Fatalf("expected index fallback, got %d %q", page.Code, page.Body.String())
	}
	expectMessage(t, env.do(t, http.MethodGet, "/api/unknown", nil, nil), http.StatusNotFound, "not found")
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupRouter(t)
	env.do(t, http.MethodGet, "/healthz", nil, nil)
	rr := env.do(t, http.MethodGet, "/metrics", nil, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "healthmatters_api_http_requests_total") {
		t.Fatalf("metrics not exposed: %d", rr.Code)
	}
}
