package services

import (
	"context"
	"time"

	"engagement-backend/internal/logger"
	"engagement-backend/internal/models"
)

const janitorBatchSize = 200

// SessionExpirer closes one abandoned session.
type SessionExpirer interface {
	Expire(ctx context.Context, session *models.LearningSession) error
}

// SessionJanitor periodically closes sessions that were never ended: started
// more than staleAfter ago and silent for at least as long.
type SessionJanitor struct {
	sessions   SessionStore
	expirer    SessionExpirer
	staleAfter time.Duration
	interval   time.Duration
	log        *logger.Logger
	stopChan   chan struct{}
}

func NewSessionJanitor(sessions SessionStore, expirer SessionExpirer, staleAfter, interval time.Duration, log *logger.Logger) *SessionJanitor {
	return &SessionJanitor{
		sessions:   sessions,
		expirer:    expirer,
		staleAfter: staleAfter,
		interval:   interval,
		log:        log.With("component", "session_janitor"),
		stopChan:   make(chan struct{}),
	}
}

func (j *SessionJanitor) Start() {
	go j.loop()
	j.log.Info("session janitor started", "stale_after", j.staleAfter.String(), "interval", j.interval.String())
}

func (j *SessionJanitor) Stop() {
	select {
	case <-j.stopChan:
		return
	default:
		close(j.stopChan)
	}
}

func (j *SessionJanitor) loop() {
	// Run on startup as well as by interval.
	j.Sweep(context.Background(), time.Now().UTC())

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			j.Sweep(context.Background(), time.Now().UTC())
		}
	}
}

// Sweep expires stale sessions in batches and returns how many it closed.
func (j *SessionJanitor) Sweep(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-j.staleAfter)
	closed := 0

	for {
		stale, err := j.sessions.ListStale(ctx, cutoff, cutoff, janitorBatchSize)
		if err != nil {
			j.log.Error("list stale sessions failed", "error", err)
			return closed
		}

		batchClosed := 0
		for _, session := range stale {
			if err := j.expirer.Expire(ctx, session); err != nil {
				j.log.Error("expire session failed", "session_id", session.ID, "error", err)
				continue
			}
			batchClosed++
		}
		closed += batchClosed

		// A short batch, or one where nothing could be closed, ends the sweep.
		if len(stale) < janitorBatchSize || batchClosed == 0 {
			break
		}
	}

	if closed > 0 {
		j.log.Info("expired stale sessions", "count", closed)
	}
	return closed
}
