package httpx

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/splax/healthmatters/internal/analysis"
	"github.com/splax/healthmatters/internal/domain"
	"github.com/splax/healthmatters/internal/repository"
)

// memoryStore implements every repository interface the services need.
type memoryStore struct {
	mu       sync.Mutex
	users    map[string]domain.User
	tokens   map[string]domain.PasswordResetToken
	profiles map[string]domain.HealthProfile
	results  []domain.LabResult
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:    make(map[string]domain.User),
		tokens:   make(map[string]domain.PasswordResetToken),
		profiles: make(map[string]domain.HealthProfile),
	}
}

func (m *memoryStore) CreateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrConflict
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	m.users[user.ID] = *user
	return nil
}

func (m *memoryStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryStore) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (m *memoryStore) CreateResetToken(_ context.Context, token *domain.PasswordResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, existing := range m.tokens {
		if existing.UserID == token.UserID && !existing.Used {
			existing.Used = true
			m.tokens[hash] = existing
		}
	}
	m.tokens[token.TokenHash] = *token
	return nil
}

func (m *memoryStore) ConsumeResetToken(_ context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[tokenHash]
	if !ok || !token.Valid(now) {
		return "", repository.ErrNotFound
	}
	token.Used = true
	m.tokens[tokenHash] = token
	user := m.users[token.UserID]
	user.PasswordHash = passwordHash
	m.users[token.UserID] = user
	return token.UserID, nil
}

func (m *memoryStore) DeleteExpiredResetTokens(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for hash, token := range m.tokens {
		if token.ExpiresAt.Before(before) {
			delete(m.tokens, hash)
			removed++
		}
	}
	return removed, nil
}

func (m *memoryStore) GetHealthProfile(_ context.Context, userID string) (*domain.HealthProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (m *memoryStore) UpsertHealthProfile(_ context.Context, profile *domain.HealthProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := m.profiles[profile.UserID]; ok {
		profile.ID = existing.ID
		profile.CreatedAt = existing.CreatedAt
	} else if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	m.profiles[profile.UserID] = *profile
	return nil
}

func (m *memoryStore) CreateLabResult(_ context.Context, result *domain.LabResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, *result)
	return nil
}

func (m *memoryStore) ListLabResults(_ context.Context, userID string) ([]domain.LabResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.LabResult, 0)
	for _, r := range m.results {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

func (m *memoryStore) GetLabResult(_ context.Context, userID, id string) (*domain.LabResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.results {
		if r.UserID == userID && r.ID == id {
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

type mailStub struct {
	mu    sync.Mutex
	links map[string]string
}

func (m *mailStub) SendPasswordReset(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links == nil {
		m.links = make(map[string]string)
	}
	m.links[to] = link
	return nil
}

func (m *mailStub) linkFor(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[to]
}

type analyzerStub struct {
	mu   sync.Mutex
	text string
}

func (a *analyzerStub) AnalyzeLabs(_ context.Context, req analysis.LabRequest) (domain.LabAnalysis, error) {
	a.mu.Lock()
	a.text = req.Text
	a.mu.Unlock()
	return domain.LabAnalysis{
		Date: "2024-03-01",
		Analysis: []domain.LabTest{{
			TestName:       "Glucose",
			Result:         "90",
			NormalRange:    "70-99",
			Unit:           "mg/dL",
			Severity:       domain.SeverityNormal,
			Interpretation: "Within range",
		}},
		Questions: []string{"Should I retest in a year?"},
	}, nil
}

func (a *analyzerStub) HealthTips(_ context.Context, req analysis.TipsRequest) ([]string, error) {
	return []string{"Walk daily.", "Drink water."}, nil
}

type rateLimiterStub struct {
	mu      sync.Mutex
	calls   []rateCall
	allowFn func(key string, limit int, window time.Duration) rateDecision
}

type rateCall struct {
	key    string
	limit  int
	window time.Duration
}

func (s *rateLimiterStub) Allow(key string, limit int, window time.Duration) rateDecision {
	s.mu.Lock()
	s.calls = append(s.calls, rateCall{key: key, limit: limit, window: window})
	fn := s.allowFn
	s.mu.Unlock()
	if fn != nil {
		return fn(key, limit, window)
	}
	return rateDecision{allowed: true, count: 1, windowEnd: time.Now().Add(window)}
}

func (s *rateLimiterStub) Close() {}
