package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"go.curalink.io/qrlogin/domain"
	serrors "go.curalink.io/qrlogin/errors"
	"go.curalink.io/qrlogin/internal/metrics"
	"go.curalink.io/qrlogin/realtime"
)

const (
	// sessionCodeBytes yields 192 bits of entropy per code.
	sessionCodeBytes = 24
	// maxCodeAttempts bounds the verify-and-retry loop on code collision.
	maxCodeAttempts = 5
)

// SessionService owns the LoginSession lifecycle: issuing codes for the
// desktop to display and consuming them when a mobile device confirms.
type SessionService struct {
	sessions domain.LoginSessionRepository
	users    domain.UserRepository
	broker   realtime.Broker
	ttl      time.Duration

	now func() time.Time
}

// NewSessionService creates a new SessionService instance.
func NewSessionService(
	sessions domain.LoginSessionRepository,
	users domain.UserRepository,
	broker realtime.Broker,
	ttl time.Duration,
) *SessionService {
	return &SessionService{
		sessions: sessions,
		users:    users,
		broker:   broker,
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock overrides the service's clock for tests.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// CreateSession issues a fresh pending session. The code is persisted before
// it is returned; there are no logical-only sessions. A collision with a
// live code (vanishingly rare, but verified rather than assumed) retries
// with a new code.
func (s *SessionService) CreateSession(ctx context.Context) (*domain.LoginSession, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateSessionCode()
		if err != nil {
			return nil, fmt.Errorf("cannot generate session code: %w", err)
		}

		now := s.now().UTC()
		session := &domain.LoginSession{
			Code:      code,
			Status:    domain.LoginSessionStatusPending,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		}

		err = s.sessions.Save(ctx, session)
		if errors.Is(err, serrors.ErrSessionCodeTaken) {
			log.Ctx(ctx).Warn().Int("attempt", attempt+1).Msg("session code collision, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to persist login session: %w", err)
		}

		metrics.SessionsCreatedTotal.Inc()
		log.Ctx(ctx).Debug().Str("session_id", session.ID).Time("expires_at", session.ExpiresAt).
			Msg("login session created")

		return session, nil
	}

	return nil, fmt.Errorf("could not allocate a unique session code after %d attempts", maxCodeAttempts)
}

// Validate reports whether a scanned code still points at a confirmable
// session. Expiry is evaluated lazily here, with a best-effort write-back.
func (s *SessionService) Validate(ctx context.Context, code string) (*domain.LoginSession, error) {
	session, err := s.sessions.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if session.Status == domain.LoginSessionStatusPending && session.ExpiredAt(s.now()) {
		s.markExpired(ctx, code)
		return nil, serrors.ErrSessionExpired
	}
	if session.Status == domain.LoginSessionStatusExpired {
		return nil, serrors.ErrSessionExpired
	}

	return session, nil
}

// Confirm is called by the mobile device after its local authentication
// succeeded. It binds the user to the session with an atomic conditional
// update and publishes the login event the desktop is waiting for. Exactly
// one Confirm per session can ever succeed.
func (s *SessionService) Confirm(ctx context.Context, code, userID string) error {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		metrics.ConfirmationsTotal.WithLabelValues("unknown_user").Inc()
		return err
	}

	now := s.now()

	session, err := s.sessions.GetByCode(ctx, code)
	if err != nil {
		metrics.ConfirmationsTotal.WithLabelValues("not_found").Inc()
		return err
	}
	if session.ExpiredAt(now) {
		s.markExpired(ctx, code)
		metrics.ConfirmationsTotal.WithLabelValues("expired").Inc()
		return serrors.ErrSessionExpired
	}
	if session.Status != domain.LoginSessionStatusPending {
		metrics.ConfirmationsTotal.WithLabelValues("replayed").Inc()
		return serrors.ErrSessionReplayed
	}

	consumed, err := s.sessions.Consume(ctx, code, userID, now)
	if err != nil {
		// The conditional update matched nothing: someone else won the
		// race, or the session expired between the read and the write.
		// Re-read to report and count the accurate reason.
		if errors.Is(err, serrors.ErrSessionNotFound) {
			resolved := s.resolveConsumeConflict(ctx, code, now)
			switch {
			case errors.Is(resolved, serrors.ErrSessionExpired):
				metrics.ConfirmationsTotal.WithLabelValues("expired").Inc()
			case errors.Is(resolved, serrors.ErrSessionReplayed):
				metrics.ConfirmationsTotal.WithLabelValues("replayed").Inc()
			default:
				metrics.ConfirmationsTotal.WithLabelValues("not_found").Inc()
			}
			return resolved
		}
		return fmt.Errorf("failed to consume login session: %w", err)
	}

	event, err := realtime.NewLoginEvent(consumed.ChannelName(), userID)
	if err != nil {
		return fmt.Errorf("cannot build login event: %w", err)
	}
	if err := s.broker.Publish(ctx, event); err != nil {
		// The session is already consumed; single-use wins over delivery.
		// The desktop self-heals by refreshing into a new session.
		log.Ctx(ctx).Error().Err(err).Str("session_id", consumed.ID).
			Msg("login event publish failed after consume")
		return fmt.Errorf("login event publish failed: %w", err)
	}

	metrics.ConfirmationsTotal.WithLabelValues("success").Inc()
	metrics.LoginEventsTotal.Inc()
	log.Ctx(ctx).Info().Str("session_id", consumed.ID).Str("user_id", userID).
		Msg("login session confirmed")

	return nil
}

// Consumed returns the session for a code only once a mobile confirmation
// has bound a user to it. The desktop completion exchange calls this to
// prove the login event it received corresponds to a real consumed session.
func (s *SessionService) Consumed(ctx context.Context, code string) (*domain.LoginSession, error) {
	session, err := s.sessions.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.LoginSessionStatusConsumed {
		return nil, serrors.ErrSessionNotFound
	}

	return session, nil
}

// StartSweeper runs the retention sweep until ctx is canceled. Expiry is
// enforced lazily on read; the sweep only reclaims storage.
func (s *SessionService) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.sessions.DeleteExpired(ctx, s.now()); err != nil {
					log.Ctx(ctx).Warn().Err(err).Msg("session sweep failed")
				}
			}
		}
	}()
}

func (s *SessionService) resolveConsumeConflict(ctx context.Context, code string, now time.Time) error {
	session, err := s.sessions.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if session.Status == domain.LoginSessionStatusPending && session.ExpiredAt(now) {
		s.markExpired(ctx, code)
		return serrors.ErrSessionExpired
	}
	if session.Status == domain.LoginSessionStatusExpired {
		return serrors.ErrSessionExpired
	}
	return serrors.ErrSessionReplayed
}

func (s *SessionService) markExpired(ctx context.Context, code string) {
	if err := s.sessions.MarkExpired(ctx, code); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("expired status write-back failed")
	}
}

// generateSessionCode draws a URL-safe code from crypto/rand. The code is
// the only secret in the QR payload, so it must not be derivable from
// anything public such as a timestamp.
func generateSessionCode() (string, error) {
	buf := make([]byte, sessionCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
