package services_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.curalink.io/qrlogin/domain"
	serrors "go.curalink.io/qrlogin/errors"
	"go.curalink.io/qrlogin/internal/metrics"
	"go.curalink.io/qrlogin/memory"
	"go.curalink.io/qrlogin/realtime"
	"go.curalink.io/qrlogin/services"
)

type sessionFixture struct {
	service *services.SessionService
	store   *memory.LoginSessionStore
	users   *memory.UserStore
	broker  *realtime.MemoryBroker
	clock   *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	store := memory.NewLoginSessionStore()
	users := memory.NewUserStore()
	broker := realtime.NewMemoryBroker()
	clock := &fakeClock{now: time.Now()}

	require.NoError(t, users.CreateUser(context.Background(), &domain.User{
		ID: "user-42", Email: "doc@example.com", DisplayName: "Dr. Example", Role: domain.RoleDoctor,
	}))
	require.NoError(t, users.CreateUser(context.Background(), &domain.User{
		ID: "user-7", Email: "pat@example.com", DisplayName: "Pat Example", Role: domain.RolePatient,
	}))

	service := services.NewSessionService(store, users, broker, 5*time.Minute).WithClock(clock.Now)

	return &sessionFixture{service: service, store: store, users: users, broker: broker, clock: clock}
}

func TestCreateSession(t *testing.T) {
	f := newSessionFixture(t)

	session, err := f.service.CreateSession(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, session.Code)
	// 24 random bytes in raw base64url.
	assert.Len(t, session.Code, 32)
	assert.Equal(t, domain.LoginSessionStatusPending, session.Status)
	assert.True(t, session.ExpiresAt.After(session.CreatedAt))

	stored, err := f.store.GetByCode(context.Background(), session.Code)
	require.NoError(t, err)
	assert.Equal(t, session.ID, stored.ID)
}

func TestCreateSessionCodesAreUnique(t *testing.T) {
	f := newSessionFixture(t)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		session, err := f.service.CreateSession(context.Background())
		require.NoError(t, err)
		_, dup := seen[session.Code]
		require.False(t, dup)
		seen[session.Code] = struct{}{}
	}
}

func TestConfirmHappyPath(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx)
	require.NoError(t, err)

	sub, err := f.broker.Subscribe(ctx, session.ChannelName())
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, f.service.Confirm(ctx, session.Code, "user-42"))

	select {
	case event := <-sub.Events():
		assert.Equal(t, realtime.EventLogin, event.Name)
		var data realtime.LoginEventData
		require.NoError(t, json.Unmarshal(event.Data, &data))
		assert.Equal(t, "user-42", data.UserID)
	case <-time.After(time.Second):
		t.Fatal("login event not delivered")
	}

	stored, err := f.store.GetByCode(ctx, session.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.LoginSessionStatusConsumed, stored.Status)
	assert.Equal(t, "user-42", stored.BoundUserID)
}

func TestConfirmUnknownSession(t *testing.T) {
	f := newSessionFixture(t)

	err := f.service.Confirm(context.Background(), "no-such-code", "user-42")
	assert.ErrorIs(t, err, serrors.ErrSessionNotFound)
}

func TestConfirmUnknownUser(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx)
	require.NoError(t, err)

	err = f.service.Confirm(ctx, session.Code, "ghost")
	assert.ErrorIs(t, err, serrors.ErrUserNotFound)

	stored, err := f.store.GetByCode(ctx, session.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.LoginSessionStatusPending, stored.Status)
}

func TestConfirmAfterExpiry(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx)
	require.NoError(t, err)

	sub, err := f.broker.Subscribe(ctx, session.ChannelName())
	require.NoError(t, err)
	defer sub.Close()

	f.clock.Advance(6 * time.Minute)

	err = f.service.Confirm(ctx, session.Code, "user-7")
	assert.ErrorIs(t, err, serrors.ErrSessionExpired)

	// No event may be published for an expired session.
	select {
	case event := <-sub.Events():
		t.Fatalf("unexpected event published: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}

	stored, err := f.store.GetByCode(ctx, session.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.LoginSessionStatusExpired, stored.Status)
}

func TestConfirmReplay(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx)
	require.NoError(t, err)

	require.NoError(t, f.service.Confirm(ctx, session.Code, "user-42"))

	err = f.service.Confirm(ctx, session.Code, "user-7")
	assert.ErrorIs(t, err, serrors.ErrSessionReplayed)

	// The binding reflects only the first confirmation.
	stored, err := f.store.GetByCode(ctx, session.Code)
	require.NoError(t, err)
	assert.Equal(t, "user-42", stored.BoundUserID)
}

func TestConfirmConcurrentExactlyOneWinner(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx)
	require.NoError(t, err)

	const racers = 16
	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := "user-42"
			if i%2 == 1 {
				user = "user-7"
			}
			errs[i] = f.service.Confirm(ctx, session.Code, user)
		}(i)
	}
	wg.Wait()

	var successes int
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, serrors.ErrSessionReplayed)
	}
	assert.Equal(t, 1, successes)
}

// contestedStore scripts the store race Confirm cannot see coming: the
// session reads as pending, the conditional consume matches nothing, and the
// re-read finds the state a concurrent writer left behind.
type contestedStore struct {
	mu     sync.Mutex
	reads  int
	states []domain.LoginSession
}

func (s *contestedStore) Save(context.Context, *domain.LoginSession) error { return nil }

func (s *contestedStore) GetByCode(_ context.Context, _ string) (*domain.LoginSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.reads
	if i >= len(s.states) {
		i = len(s.states) - 1
	}
	s.reads++
	out := s.states[i]
	return &out, nil
}

func (s *contestedStore) Consume(context.Context, string, string, time.Time) (*domain.LoginSession, error) {
	return nil, serrors.ErrSessionNotFound
}

func (s *contestedStore) MarkExpired(context.Context, string) error      { return nil }
func (s *contestedStore) DeleteExpired(context.Context, time.Time) error { return nil }

func TestConfirmCountsRacedExpiryAsExpired(t *testing.T) {
	now := time.Now()
	pending := domain.LoginSession{
		Code:      "code-1",
		Status:    domain.LoginSessionStatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}
	expired := pending
	expired.Status = domain.LoginSessionStatusExpired

	store := &contestedStore{states: []domain.LoginSession{pending, expired}}
	users := memory.NewUserStore()
	require.NoError(t, users.CreateUser(context.Background(), &domain.User{
		ID: "user-42", Email: "doc@example.com", DisplayName: "Dr. Example", Role: domain.RoleDoctor,
	}))
	service := services.NewSessionService(store, users, realtime.NewMemoryBroker(), 5*time.Minute)

	expiredBefore := testutil.ToFloat64(metrics.ConfirmationsTotal.WithLabelValues("expired"))
	replayedBefore := testutil.ToFloat64(metrics.ConfirmationsTotal.WithLabelValues("replayed"))

	err := service.Confirm(context.Background(), "code-1", "user-42")
	assert.ErrorIs(t, err, serrors.ErrSessionExpired)

	// The outcome is counted by what actually happened, not by the most
	// common cause of a lost consume race.
	assert.Equal(t, expiredBefore+1, testutil.ToFloat64(metrics.ConfirmationsTotal.WithLabelValues("expired")))
	assert.Equal(t, replayedBefore, testutil.ToFloat64(metrics.ConfirmationsTotal.WithLabelValues("replayed")))
}

func TestValidate(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx)
	require.NoError(t, err)

	got, err := f.service.Validate(ctx, session.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.LoginSessionStatusPending, got.Status)

	f.clock.Advance(6 * time.Minute)

	_, err = f.service.Validate(ctx, session.Code)
	assert.ErrorIs(t, err, serrors.ErrSessionExpired)

	_, err = f.service.Validate(ctx, "missing")
	assert.ErrorIs(t, err, serrors.ErrSessionNotFound)
}

func TestConsumed(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx)
	require.NoError(t, err)

	// Not consumed yet.
	_, err = f.service.Consumed(ctx, session.Code)
	assert.ErrorIs(t, err, serrors.ErrSessionNotFound)

	require.NoError(t, f.service.Confirm(ctx, session.Code, "user-42"))

	consumed, err := f.service.Consumed(ctx, session.Code)
	require.NoError(t, err)
	assert.Equal(t, "user-42", consumed.BoundUserID)
}

func TestDeleteExpiredSweep(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx)
	require.NoError(t, err)

	f.clock.Advance(6 * time.Minute)
	require.NoError(t, f.store.DeleteExpired(ctx, f.clock.Now()))

	_, err = f.store.GetByCode(ctx, session.Code)
	assert.ErrorIs(t, err, serrors.ErrSessionNotFound)
}
