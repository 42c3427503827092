package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// DefaultBaseURL is used when no API address is configured.
const DefaultBaseURL = "http://localhost:5000"

// Client provides typed access to the Health Matters API for interactive tools. Authenticated
// calls take the session cookie value returned by Register or Login.
type Client struct {
	baseURL    string
	cookieName string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithCookieName overrides the session cookie name (default hm.sid).
func WithCookieName(name string) Option {
	return func(c *Client) {
		if strings.TrimSpace(name) != "" {
			c.cookieName = strings.TrimSpace(name)
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		cookieName: "hm.sid",
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	session     string
}

func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if session := strings.TrimSpace(r.session); session != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: session})
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		return nil, APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, session string, v any) (*http.Response, error) {
	r := request{method: method, path: path, session: session}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		r.body = bytes.NewReader(payload)
		r.contentType = "application/json"
	}
	resp, err := c.send(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if v == nil {
		return resp, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Message)
}

// User reflects API user payloads.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// AuthResponse is returned by Register and Login. Session holds the cookie value to pass to
// authenticated calls.
type AuthResponse struct {
	Message string `json:"message"`
	User    User   `json:"user"`
	Session string `json:"-"`
}

// HealthProfile mirrors the profile payload.
type HealthProfile struct {
	ID                string    `json:"id,omitempty"`
	Birthdate         string    `json:"birthdate"`
	Sex               string    `json:"sex"`
	HeightFeet        int       `json:"heightFeet"`
	HeightInches      int       `json:"heightInches"`
	WeightPounds      int       `json:"weightPounds"`
	MedicalConditions []string  `json:"medicalConditions"`
	Medications       []string  `json:"medications"`
	UpdatedAt         time.Time `json:"updatedAt,omitempty"`
}

// BMI is the computed body mass index.
type BMI struct {
	BMI      float64 `json:"bmi"`
	Category string  `json:"category"`
}

// LabTest is one interpreted measurement.
type LabTest struct {
	TestName       string `json:"testName"`
	Result         string `json:"result"`
	NormalRange    string `json:"normalRange"`
	Unit           string `json:"unit"`
	Severity       string `json:"severity"`
	Interpretation string `json:"interpretation"`
}

// LabResult is a stored lab analysis. Analysis fields the CLI does not render are kept raw.
type LabResult struct {
	ID         string    `json:"id"`
	FileName   string    `json:"fileName"`
	UploadedAt time.Time `json:"uploadedAt"`
	Analysis   struct {
		Date string `json:"date"`
		BMI  *struct {
			Score    float64 `json:"score"`
			Category string  `json:"category"`
		} `json:"bmi"`
		Analysis        []LabTest `json:"analysis"`
		Questions       []string  `json:"questions"`
		Recommendations []string  `json:"recommendations"`
	} `json:"analysis"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Register creates an account and returns its session.
func (c *Client) Register(ctx context.Context, email, password string) (AuthResponse, error) {
	return c.authenticate(ctx, "/api/register", email, password)
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	return c.authenticate(ctx, "/api/login", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (AuthResponse, error) {
	var out AuthResponse
	resp, err := c.do(ctx, http.MethodPost, path, map[string]string{"email": email, "password": password}, "", &out)
	if err != nil {
		return AuthResponse{}, err
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == c.cookieName {
			out.Session = cookie.Value
		}
	}
	if out.Session == "" {
		return AuthResponse{}, fmt.Errorf("server did not return a session cookie")
	}
	return out, nil
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context, session string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/logout", nil, session, nil)
	return err
}

// CurrentUser returns the account behind the session.
func (c *Client) CurrentUser(ctx context.Context, session string) (User, error) {
	var out User
	_, err := c.do(ctx, http.MethodGet, "/api/user", nil, session, &out)
	return out, err
}

// RequestPasswordReset asks the server to email a reset link. The reply is the same whether or
// not the account exists.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	var out messageResponse
	_, err := c.do(ctx, http.MethodPost, "/api/reset-password", map[string]string{"email": email}, "", &out)
	return out.Message, err
}

// VerifyPasswordReset redeems a reset token.
func (c *Client) VerifyPasswordReset(ctx context.Context, token, newPassword string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/reset-password/verify", map[string]string{"token": token, "newPassword": newPassword}, "", nil)
	return err
}

// GetHealthProfile returns the profile, or nil when none is saved.
func (c *Client) GetHealthProfile(ctx context.Context, session string) (*HealthProfile, error) {
	var out *HealthProfile
	_, err := c.do(ctx, http.MethodGet, "/api/health-profile", nil, session, &out)
	return out, err
}

// SaveHealthProfile creates or replaces the profile.
func (c *Client) SaveHealthProfile(ctx context.Context, session string, p HealthProfile) (HealthProfile, error) {
	var out HealthProfile
	_, err := c.do(ctx, http.MethodPost, "/api/health-profile", p, session, &out)
	return out, err
}

// GetBMI returns the BMI computed from the profile.
func (c *Client) GetBMI(ctx context.Context, session string) (BMI, error) {
	var out BMI
	_, err := c.do(ctx, http.MethodGet, "/api/health-profile/bmi", nil, session, &out)
	return out, err
}

// ListLabResults returns stored lab analyses oldest first.
func (c *Client) ListLabResults(ctx context.Context, session string) ([]LabResult, error) {
	var out []LabResult
	_, err := c.do(ctx, http.MethodGet, "/api/lab-results", nil, session, &out)
	return out, err
}

// UploadLabResult uploads a PDF report and returns its analysis.
func (c *Client) UploadLabResult(ctx context.Context, session, fileName string, content io.Reader) (LabResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="pdf"; filename=%q`, filepath.Base(fileName)))
	header.Set("Content-Type", "application/pdf")
	part, err := writer.CreatePart(header)
	if err != nil {
		return LabResult{}, fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return LabResult{}, fmt.Errorf("read report: %w", err)
	}
	if err := writer.Close(); err != nil {
		return LabResult{}, fmt.Errorf("finish multipart body: %w", err)
	}
	resp, err := c.send(ctx, request{
		method:      http.MethodPost,
		path:        "/api/lab-results",
		body:        &body,
		contentType: writer.FormDataContentType(),
		session:     session,
	})
	if err != nil {
		return LabResult{}, err
	}
	defer resp.Body.Close()
	var out LabResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return LabResult{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// DownloadLabReport writes the PDF rendering of a lab result to w.
func (c *Client) DownloadLabReport(ctx context.Context, session, id string, w io.Writer) error {
	resp, err := c.send(ctx, request{
		method:  http.MethodGet,
		path:    "/api/lab-results/" + url.PathEscape(id) + "/report",
		session: session,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download report: %w", err)
	}
	return nil
}

// HealthTips requests wellness tips. Nil fields are filled from the saved profile.
func (c *Client) HealthTips(ctx context.Context, session string, age *int, sex *string, bmi *float64) ([]string, error) {
	payload := map[string]any{}
	if age != nil {
		payload["age"] = *age
	}
	if sex != nil {
		payload["sex"] = *sex
	}
	if bmi != nil {
		payload["bmi"] = *bmi
	}
	var out struct {
		Tips []string `json:"tips"`
	}
	_, err := c.do(ctx, http.MethodPost, "/api/health-tips", payload, session, &out)
	return out.Tips, err
}
