package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"engagement-backend/internal/models"
)

func TestSessionJanitor_SweepClosesStaleSessions(t *testing.T) {
	f := newSessionFixture()
	staleID := f.start(t, "handle-stale")

	f.clock.Advance(30 * time.Minute)
	if _, err := f.svc.Heartbeat(context.Background(), HeartbeatInput{
		UserID:          f.userID,
		SessionID:       staleID,
		SessionCounters: counters(1800, 0, 0, 0),
	}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	f.clock.Advance(2 * time.Hour)
	other := uuid.New()
	fresh, err := f.svc.Start(context.Background(), StartSessionInput{UserID: other, ContentID: f.video})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	f.clock.Advance(30 * time.Minute)
	janitor := NewSessionJanitor(f.store, f.svc, 2*time.Hour, time.Minute, testLog)
	if closed := janitor.Sweep(context.Background(), f.clock.Now()); closed != 1 {
		t.Fatalf("expected 1 session closed, got %d", closed)
	}

	stale, _ := f.store.GetByID(context.Background(), staleID)
	if stale.IsOpen() {
		t.Fatalf("expected stale session to be closed")
	}
	if stale.DurationMinutes != 30 {
		t.Errorf("expected duration from last heartbeat (30), got %d", stale.DurationMinutes)
	}
	if stale.AttentionScore != nil || stale.CheatingScore != nil || stale.CompletionPercentageAtEnd != nil {
		t.Errorf("expired sessions must not be scored")
	}
	if len(f.media.released) != 1 || f.media.released[0] != "handle-stale" {
		t.Errorf("expected stale handle released, got %v", f.media.released)
	}

	stillOpen, _ := f.store.GetByID(context.Background(), fresh.ID)
	if !stillOpen.IsOpen() {
		t.Errorf("fresh session must stay open")
	}
}

func TestSessionJanitor_RecentHeartbeatKeepsSessionOpen(t *testing.T) {
	f := newSessionFixture()
	id := f.start(t, "")

	f.clock.Advance(3 * time.Hour)
	if _, err := f.svc.Heartbeat(context.Background(), HeartbeatInput{UserID: f.userID, SessionID: id}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	janitor := NewSessionJanitor(f.store, f.svc, 2*time.Hour, time.Minute, testLog)
	if closed := janitor.Sweep(context.Background(), f.clock.Now().Add(time.Minute)); closed != 0 {
		t.Errorf("expected no sessions closed, got %d", closed)
	}
}

type failingExpirer struct{ calls int }

func (e *failingExpirer) Expire(ctx context.Context, session *models.LearningSession) error {
	e.calls++
	return errors.New("database unavailable")
}

func TestSessionJanitor_SweepStopsWhenNothingCloses(t *testing.T) {
	f := newSessionFixture()
	f.start(t, "")

	expirer := &failingExpirer{}
	janitor := NewSessionJanitor(f.store, expirer, time.Hour, time.Minute, testLog)
	if closed := janitor.Sweep(context.Background(), f.clock.Now().Add(2*time.Hour)); closed != 0 {
		t.Errorf("expected 0 closed, got %d", closed)
	}
	if expirer.calls != 1 {
		t.Errorf("expected a single attempt, got %d", expirer.calls)
	}
}

func TestSessionJanitor_StopIsIdempotent(t *testing.T) {
	janitor := NewSessionJanitor(newFakeSessionStore(), &failingExpirer{}, time.Hour, time.Hour, testLog)
	janitor.Start()
	janitor.Stop()
	janitor.Stop()
}
