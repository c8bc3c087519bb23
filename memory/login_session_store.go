package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.curalink.io/qrlogin/domain"
	serrors "go.curalink.io/qrlogin/errors"
)

// LoginSessionStore keeps login sessions in process memory, keyed by code.
// It mirrors the semantics of the mongo repository, including the atomic
// conditional consume, and backs tests and single-node deployments. A
// multi-process deployment must use the durable store instead.
type LoginSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.LoginSession
}

func NewLoginSessionStore() *LoginSessionStore {
	return &LoginSessionStore{
		sessions: make(map[string]domain.LoginSession),
	}
}

func (s *LoginSessionStore) Save(_ context.Context, session *domain.LoginSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[session.Code]; ok {
		if !existing.ExpiredAt(time.Now()) {
			return serrors.ErrSessionCodeTaken
		}
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	s.sessions[session.Code] = *session

	return nil
}

func (s *LoginSessionStore) GetByCode(_ context.Context, code string) (*domain.LoginSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[code]
	if !ok {
		return nil, serrors.ErrSessionNotFound
	}

	return &session, nil
}

// Consume performs the compare-and-set under the write lock: the status and
// TTL check and the transition are a single critical section, so concurrent
// confirmations for the same code yield exactly one winner.
func (s *LoginSessionStore) Consume(_ context.Context, code, userID string, now time.Time) (*domain.LoginSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[code]
	if !ok {
		return nil, serrors.ErrSessionNotFound
	}
	if session.Status != domain.LoginSessionStatusPending || session.ExpiredAt(now) {
		return nil, serrors.ErrSessionNotFound
	}

	session.Status = domain.LoginSessionStatusConsumed
	session.BoundUserID = userID
	s.sessions[code] = session

	return &session, nil
}

func (s *LoginSessionStore) MarkExpired(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[code]
	if !ok || session.Status != domain.LoginSessionStatusPending {
		return nil
	}
	session.Status = domain.LoginSessionStatusExpired
	s.sessions[code] = session

	return nil
}

func (s *LoginSessionStore) DeleteExpired(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for code, session := range s.sessions {
		if !session.ExpiresAt.After(now) {
			delete(s.sessions, code)
		}
	}

	return nil
}

var _ domain.LoginSessionRepository = (*LoginSessionStore)(nil)
