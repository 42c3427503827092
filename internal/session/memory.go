package session

import (
	"context"
	"sync"
	"time"

	"github.com/splax/healthmatters/internal/domain"
)

const sweepInterval = 5 * time.Minute

type memoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]domain.Session
	byUser   map[string]map[string]struct{}
	now      func() time.Time
	stopCh   chan struct{}
	once     sync.Once
}

// NewMemoryStore keeps sessions in process memory. Expired entries are swept periodically.
func NewMemoryStore(ttl time.Duration) Store {
	s := newMemoryStore(ttl, time.Now)
	go s.sweepLoop()
	return s
}

func newMemoryStore(ttl time.Duration, now func() time.Time) *memoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &memoryStore{
		ttl:      ttl,
		sessions: make(map[string]domain.Session),
		byUser:   make(map[string]map[string]struct{}),
		now:      now,
		stopCh:   make(chan struct{}),
	}
}

func (s *memoryStore) Create(_ context.Context, userID string) (domain.Session, error) {
	sess, err := newSession(userID, s.now().UTC(), s.ttl)
	if err != nil {
		return domain.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	ids, ok := s.byUser[userID]
	if !ok {
		ids = make(map[string]struct{})
		s.byUser[userID] = ids
	}
	ids[sess.ID] = struct{}{}
	return sess, nil
}

func (s *memoryStore) Get(_ context.Context, id string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, ErrNotFound
	}
	if sess.Expired(s.now()) {
		s.removeLocked(sess)
		return domain.Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		s.removeLocked(sess)
	}
	return nil
}

func (s *memoryStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.byUser[userID] {
		delete(s.sessions, id)
	}
	delete(s.byUser, userID)
	return nil
}

func (s *memoryStore) Close() {
	s.once.Do(func() {
		close(s.stopCh)
	})
}

func (s *memoryStore) removeLocked(sess domain.Session) {
	delete(s.sessions, sess.ID)
	if ids, ok := s.byUser[sess.UserID]; ok {
		delete(ids, sess.ID)
		if len(ids) == 0 {
			delete(s.byUser, sess.UserID)
		}
	}
}

func (s *memoryStore) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup(s.now())
		case <-s.stopCh:
			return
		}
	}
}

func (s *memoryStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.Expired(now) {
			s.removeLocked(sess)
		}
	}
}
