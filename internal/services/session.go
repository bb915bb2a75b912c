package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"engagement-backend/internal/logger"
	"engagement-backend/internal/models"
	"engagement-backend/internal/repository"
)

type SessionStore interface {
	Create(ctx context.Context, s *models.LearningSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.LearningSession, error)
	ListOpen(ctx context.Context, userID, contentID uuid.UUID) ([]*models.LearningSession, error)
	ListStale(ctx context.Context, startedBefore, heartbeatBefore time.Time, limit int) ([]*models.LearningSession, error)
	SaveCounters(ctx context.Context, s *models.LearningSession) error
	Finalize(ctx context.Context, s *models.LearningSession) error
}

type ContentCatalog interface {
	GetContent(ctx context.Context, id uuid.UUID) (*models.Content, error)
	CountCourseContent(ctx context.Context, courseID uuid.UUID) (int, error)
}

// SessionProgressRecorder receives the completion percentage a session
// reported when it ended.
type SessionProgressRecorder interface {
	RecordSessionEnd(ctx context.Context, userID, contentID uuid.UUID, completionPercentage float64) error
}

type StartSessionInput struct {
	UserID          uuid.UUID `json:"user_id" validate:"required"`
	ContentID       uuid.UUID `json:"content_id" validate:"required"`
	InitialPosition float64   `json:"initial_position" validate:"gte=0"`
	ResourceHandle  string    `json:"resource_handle"`
}

type HeartbeatInput struct {
	UserID    uuid.UUID `json:"user_id" validate:"required"`
	SessionID uuid.UUID `json:"session_id" validate:"required"`
	models.SessionCounters
}

type EndSessionInput struct {
	UserID               uuid.UUID `json:"user_id" validate:"required"`
	SessionID            uuid.UUID `json:"session_id" validate:"required"`
	CompletionPercentage *float64  `json:"completion_percentage" validate:"required,gte=0,lte=100"`
	models.SessionCounters
}

// SessionService owns the learning-session lifecycle: start, heartbeat, end.
// All mutations for one (user, content) pair run under the same lock, which
// keeps at most one session open per pair.
type SessionService struct {
	sessions SessionStore
	catalog  ContentCatalog
	media    MediaReleaser
	progress SessionProgressRecorder
	locker   Locker
	log      *logger.Logger
	now      func() time.Time
}

func NewSessionService(
	sessions SessionStore,
	catalog ContentCatalog,
	media MediaReleaser,
	progress SessionProgressRecorder,
	locker Locker,
	log *logger.Logger,
) *SessionService {
	return &SessionService{
		sessions: sessions,
		catalog:  catalog,
		media:    media,
		progress: progress,
		locker:   locker,
		log:      log.With("component", "session_service"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start closes any open session for the pair, then opens a fresh one.
func (s *SessionService) Start(ctx context.Context, in StartSessionInput) (*models.LearningSession, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	content, err := s.catalog.GetContent(ctx, in.ContentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Message: "Content not found"}
		}
		return nil, fmt.Errorf("get content: %w", err)
	}

	release, err := s.locker.Acquire(ctx, sessionLockKey(in.UserID, in.ContentID))
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	defer release()

	open, err := s.sessions.ListOpen(ctx, in.UserID, in.ContentID)
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}

	now := s.now()
	for _, stale := range open {
		s.releaseHandle(ctx, stale)

		stale.SessionEnd = &now
		touchDuration(stale, now)
		if err := s.sessions.Finalize(ctx, stale); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("close open session: %w", err)
		}
		s.log.Info("closed open session before start",
			"session_id", stale.ID,
			"user_id", stale.UserID,
			"content_id", stale.ContentID,
			"duration_minutes", stale.DurationMinutes,
		)
	}

	session := &models.LearningSession{
		ID:              uuid.New(),
		UserID:          in.UserID,
		ContentID:       in.ContentID,
		CourseID:        content.CourseID,
		SessionStart:    now,
		LastHeartbeatAt: now,
		StartPosition:   in.InitialPosition,
	}
	if in.ResourceHandle != "" {
		handle := in.ResourceHandle
		session.ResourceHandle = &handle
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Debug("session started", "session_id", session.ID, "content_id", session.ContentID)
	return session, nil
}

// Heartbeat adds client-reported deltas to an open session. Elapsed time
// always comes from the server clock.
func (s *SessionService) Heartbeat(ctx context.Context, in HeartbeatInput) (*models.LearningSession, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	session, release, err := s.lockOwnedSession(ctx, in.UserID, in.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	if !session.IsOpen() {
		return nil, &InvalidStateError{Message: "Session has already ended"}
	}

	now := s.now()
	applyCounters(session, in.SessionCounters, now)

	if err := s.sessions.SaveCounters(ctx, session); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &InvalidStateError{Message: "Session has already ended"}
		}
		return nil, fmt.Errorf("save heartbeat: %w", err)
	}

	return session, nil
}

// End finalizes and scores a session. Ending an ended session returns the
// stored record unchanged.
func (s *SessionService) End(ctx context.Context, in EndSessionInput) (*models.LearningSession, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	session, release, err := s.lockOwnedSession(ctx, in.UserID, in.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	if !session.IsOpen() {
		s.log.Info("end on ended session ignored", "session_id", session.ID)
		return session, nil
	}

	s.releaseHandle(ctx, session)

	now := s.now()
	applyCounters(session, in.SessionCounters, now)

	content, err := s.catalog.GetContent(ctx, session.ContentID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("get content: %w", err)
		}
		// Scored without a time ratio.
		s.log.Warn("content missing at session end", "session_id", session.ID, "content_id", session.ContentID)
	}

	completion := *in.CompletionPercentage
	scores := ScoreEngagement(EngagementInput{
		DurationMinutes:         float64(session.DurationMinutes),
		SkipCount:               session.SkipCount,
		CompletionPercentage:    completion,
		ExpectedDurationMinutes: content.ExpectedDurationMinutes(),
	})

	session.SessionEnd = &now
	session.CompletionPercentageAtEnd = &completion
	session.AttentionScore = &scores.Attention
	session.CheatingScore = &scores.Cheating
	session.IsSuspicious = scores.Suspicious

	if err := s.sessions.Finalize(ctx, session); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.sessions.GetByID(ctx, session.ID)
		}
		return nil, fmt.Errorf("finalize session: %w", err)
	}

	if scores.Suspicious {
		s.log.Warn("suspicious learning session",
			"session_id", session.ID,
			"user_id", session.UserID,
			"duration_minutes", session.DurationMinutes,
			"skip_count", session.SkipCount,
			"cheating_score", scores.Cheating,
		)
	}

	if s.progress != nil {
		if err := s.progress.RecordSessionEnd(ctx, session.UserID, session.ContentID, completion); err != nil {
			s.log.Error("record session end on progress failed", "session_id", session.ID, "error", err)
		}
	}

	return session, nil
}

// Expire closes an abandoned session without scoring it. The duration stays
// at the value recorded by the last heartbeat.
func (s *SessionService) Expire(ctx context.Context, stale *models.LearningSession) error {
	release, err := s.locker.Acquire(ctx, sessionLockKey(stale.UserID, stale.ContentID))
	if err != nil {
		return fmt.Errorf("lock session: %w", err)
	}
	defer release()

	session, err := s.sessions.GetByID(ctx, stale.ID)
	if err != nil {
		return fmt.Errorf("reload session: %w", err)
	}
	if !session.IsOpen() {
		return nil
	}

	s.releaseHandle(ctx, session)

	now := s.now()
	session.SessionEnd = &now
	if err := s.sessions.Finalize(ctx, session); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("expire session: %w", err)
	}
	return nil
}

// lockOwnedSession loads a session the caller owns and returns it re-read
// under the pair lock.
func (s *SessionService) lockOwnedSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.LearningSession, func(), error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, &InvalidStateError{Message: "Session not found"}
		}
		return nil, nil, fmt.Errorf("get session: %w", err)
	}
	if session.UserID != userID {
		return nil, nil, &InvalidStateError{Message: "Session not found"}
	}

	release, err := s.locker.Acquire(ctx, sessionLockKey(session.UserID, session.ContentID))
	if err != nil {
		return nil, nil, fmt.Errorf("lock session: %w", err)
	}

	session, err = s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("reload session: %w", err)
	}
	return session, release, nil
}

// releaseHandle gives the media handle back, logging failures. Session
// bookkeeping never waits on the media service.
func (s *SessionService) releaseHandle(ctx context.Context, session *models.LearningSession) {
	if s.media == nil || session.ResourceHandle == nil || *session.ResourceHandle == "" {
		return
	}
	if err := s.media.Release(ctx, *session.ResourceHandle); err != nil {
		relErr := &ResourceReleaseError{Handle: *session.ResourceHandle, Err: err}
		s.log.Warn("media handle release failed",
			"session_id", session.ID,
			"resource_handle", relErr.Handle,
			"error", relErr,
		)
	}
}

func applyCounters(session *models.LearningSession, delta models.SessionCounters, now time.Time) {
	touchDuration(session, now)
	session.WatchTime += delta.WatchTime
	session.SkipCount += delta.SkipCount
	session.SeekCount += delta.SeekCount
	session.PauseCount += delta.PauseCount
	session.LastHeartbeatAt = now
}

// touchDuration recomputes duration_minutes from the wall clock. A clock
// stepping backwards cannot shrink it.
func touchDuration(session *models.LearningSession, now time.Time) {
	if m := elapsedMinutes(session.SessionStart, now); m > session.DurationMinutes {
		session.DurationMinutes = m
	}
}

// elapsedMinutes is whole minutes between start and now, never negative.
func elapsedMinutes(start, now time.Time) int {
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}
