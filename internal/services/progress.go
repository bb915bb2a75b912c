package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"engagement-backend/internal/logger"
	"engagement-backend/internal/models"
	"engagement-backend/internal/repository"
)

const (
	// Position jumps beyond these are skips: seconds for video, pages for
	// documents.
	videoSkipThreshold    = 30
	documentSkipThreshold = 2
	// Part of a skipped interval still credited as watch time.
	skipWatchTimeBuffer = 5

	completionThreshold = 95
)

type ProgressStore interface {
	GetOrCreate(ctx context.Context, p *models.ContentProgress) (*models.ContentProgress, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ContentProgress, error)
	GetByUserContent(ctx context.Context, userID, contentID uuid.UUID) (*models.ContentProgress, error)
	Update(ctx context.Context, p *models.ContentProgress) error
	CountCompleted(ctx context.Context, userID, courseID uuid.UUID) (int, error)
}

type AssignmentUpdater interface {
	SetProgress(ctx context.Context, courseID, userID uuid.UUID, percentage float64, status models.AssignmentStatus, completedAt *time.Time) error
}

// ProgressPublisher pushes progress events to a user's live connections.
type ProgressPublisher interface {
	Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error
}

type UpdateProgressInput struct {
	UserID               uuid.UUID `json:"user_id" validate:"required"`
	ProgressID           uuid.UUID `json:"progress_id" validate:"required"`
	CurrentPosition      *float64  `json:"current_position" validate:"required,gte=0"`
	CompletionPercentage *float64  `json:"completion_percentage" validate:"required"`
	WatchTime            *float64  `json:"watch_time" validate:"omitempty,gte=0"`
}

// ProgressService tracks per-content progress and rolls it up per course.
type ProgressService struct {
	progress    ProgressStore
	catalog     ContentCatalog
	assignments AssignmentUpdater
	publisher   ProgressPublisher
	locker      Locker
	log         *logger.Logger
	now         func() time.Time
}

func NewProgressService(
	progress ProgressStore,
	catalog ContentCatalog,
	assignments AssignmentUpdater,
	publisher ProgressPublisher,
	locker Locker,
	log *logger.Logger,
) *ProgressService {
	return &ProgressService{
		progress:    progress,
		catalog:     catalog,
		assignments: assignments,
		publisher:   publisher,
		locker:      locker,
		log:         log.With("component", "progress_service"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns the user's progress row for a content item, creating a
// zeroed one on first access.
func (s *ProgressService) GetOrCreate(ctx context.Context, userID, contentID uuid.UUID) (*models.ContentProgress, error) {
	content, err := s.catalog.GetContent(ctx, contentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Message: "Content not found"}
		}
		return nil, fmt.Errorf("get content: %w", err)
	}

	p, err := s.progress.GetOrCreate(ctx, &models.ContentProgress{
		UserID:      userID,
		ContentID:   contentID,
		CourseID:    content.CourseID,
		ModuleID:    content.ModuleID,
		ContentType: content.Type,
	})
	if err != nil {
		return nil, fmt.Errorf("get or create progress: %w", err)
	}
	return p, nil
}

// UpdateProgress applies a client position report.
func (s *ProgressService) UpdateProgress(ctx context.Context, in UpdateProgressInput) (*models.ContentProgress, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	current, err := s.progress.GetByID(ctx, in.ProgressID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Message: "Progress not found"}
		}
		return nil, fmt.Errorf("get progress: %w", err)
	}
	if current.UserID != in.UserID {
		return nil, &NotFoundError{Message: "Progress not found"}
	}

	return s.mutate(ctx, current.UserID, current.ContentID, func(p *models.ContentProgress, now time.Time) bool {
		result := applyPositionReport(p, *in.CurrentPosition, *in.CompletionPercentage, in.WatchTime, now)
		if result.Skipped {
			s.log.Debug("skip detected",
				"progress_id", p.ID,
				"content_type", p.ContentType,
				"position_jump", result.Jump,
			)
		}
		return result.Completed
	})
}

// MarkComplete sets a content item to 100% without skip detection.
func (s *ProgressService) MarkComplete(ctx context.Context, userID, contentID uuid.UUID) (*models.ContentProgress, error) {
	if _, err := s.GetOrCreate(ctx, userID, contentID); err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, contentID, func(p *models.ContentProgress, now time.Time) bool {
		p.CompletionPercentage = 100
		p.TaskCompleted = true
		p.LastAccessedAt = &now
		return markCompleted(p, now)
	})
}

// RecordSessionEnd touches last access and raises the stored percentage when
// a session ended further along than the last position report.
func (s *ProgressService) RecordSessionEnd(ctx context.Context, userID, contentID uuid.UUID, completionPercentage float64) error {
	if _, err := s.GetOrCreate(ctx, userID, contentID); err != nil {
		return err
	}

	_, err := s.mutate(ctx, userID, contentID, func(p *models.ContentProgress, now time.Time) bool {
		p.LastAccessedAt = &now
		pct := clampPercentage(completionPercentage)
		if pct <= p.CompletionPercentage {
			return false
		}
		p.CompletionPercentage = pct
		if pct >= completionThreshold {
			return markCompleted(p, now)
		}
		return false
	})
	return err
}

// CalculateCourseProgress is completed items over all items in the course.
func (s *ProgressService) CalculateCourseProgress(ctx context.Context, courseID, userID uuid.UUID) (*models.CourseProgress, error) {
	total, err := s.catalog.CountCourseContent(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("count course content: %w", err)
	}
	completed, err := s.progress.CountCompleted(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("count completed content: %w", err)
	}

	pct := coursePercentage(completed, total)
	return &models.CourseProgress{
		CourseID:           courseID,
		UserID:             userID,
		CompletedItems:     completed,
		TotalItems:         total,
		ProgressPercentage: pct,
		Status:             models.AssignmentStatusFor(pct),
	}, nil
}

// mutate runs fn on a freshly read row under the pair lock and persists it.
// fn reports whether the item just became completed.
func (s *ProgressService) mutate(ctx context.Context, userID, contentID uuid.UUID, fn func(p *models.ContentProgress, now time.Time) bool) (*models.ContentProgress, error) {
	release, err := s.locker.Acquire(ctx, progressLockKey(userID, contentID))
	if err != nil {
		return nil, fmt.Errorf("lock progress: %w", err)
	}

	p, err := s.progress.GetByUserContent(ctx, userID, contentID)
	if err != nil {
		release()
		return nil, fmt.Errorf("reload progress: %w", err)
	}

	now := s.now()
	justCompleted := fn(p, now)

	if err := s.progress.Update(ctx, p); err != nil {
		release()
		return nil, fmt.Errorf("update progress: %w", err)
	}
	release()

	if justCompleted {
		s.log.Info("content completed", "user_id", userID, "content_id", contentID, "course_id", p.CourseID)
	}

	s.publish(ctx, userID, models.EventProgressUpdated, models.ProgressEvent{
		ContentID:            p.ContentID,
		CourseID:             p.CourseID,
		CompletionPercentage: p.CompletionPercentage,
		IsCompleted:          p.IsCompleted,
	})

	// Every write on a completed item re-syncs the course, so a failed
	// assignment write is repaired by the next report or complete call.
	if p.IsCompleted {
		if err := s.syncCourseAssignment(ctx, p.CourseID, userID); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// syncCourseAssignment recomputes and writes the course aggregate under the
// per-course lock, so the last write always carries the newest count.
func (s *ProgressService) syncCourseAssignment(ctx context.Context, courseID, userID uuid.UUID) error {
	release, err := s.locker.Acquire(ctx, courseLockKey(userID, courseID))
	if err != nil {
		return fmt.Errorf("lock course progress: %w", err)
	}
	defer release()

	cp, err := s.CalculateCourseProgress(ctx, courseID, userID)
	if err != nil {
		return err
	}

	var completedAt *time.Time
	if cp.Status == models.AssignmentCompleted {
		now := s.now()
		completedAt = &now
	}

	if err := s.assignments.SetProgress(ctx, courseID, userID, cp.ProgressPercentage, cp.Status, completedAt); err != nil {
		return fmt.Errorf("update course assignment: %w", err)
	}

	s.log.Info("course progress updated",
		"course_id", courseID,
		"user_id", userID,
		"progress_percentage", cp.ProgressPercentage,
		"status", cp.Status,
	)
	s.publish(ctx, userID, models.EventCourseProgress, cp)
	return nil
}

func (s *ProgressService) publish(ctx context.Context, userID uuid.UUID, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, userID, models.WSMessage{Type: eventType, Payload: payload}); err != nil {
		s.log.Warn("publish progress event failed", "type", eventType, "error", err)
	}
}

type positionResult struct {
	Jump      float64
	Skipped   bool
	Completed bool
}

// applyPositionReport folds one client report into p. Completed is true only
// on the transition to completed.
func applyPositionReport(p *models.ContentProgress, position, percentage float64, watchTime *float64, now time.Time) positionResult {
	result := positionResult{Jump: position - p.PlaybackPosition}
	result.Skipped = isSkip(p.ContentType, result.Jump)

	if watchTime != nil {
		credited := *watchTime
		if result.Skipped {
			credited -= math.Max(0, result.Jump-skipWatchTimeBuffer)
		}
		if credited > 0 {
			p.WatchTime += credited
		}
	}

	pct := clampPercentage(percentage)
	if p.IsCompleted && pct < p.CompletionPercentage {
		pct = p.CompletionPercentage
	}
	p.CompletionPercentage = pct
	p.PlaybackPosition = position
	p.LastAccessedAt = &now

	if pct >= completionThreshold {
		result.Completed = markCompleted(p, now)
	}
	return result
}

func isSkip(contentType models.ContentType, jump float64) bool {
	switch contentType {
	case models.ContentTypeVideo:
		return jump > videoSkipThreshold
	case models.ContentTypeDocument:
		return jump > documentSkipThreshold
	default:
		return false
	}
}

// markCompleted flips the one-way completion flag. It returns true only the
// first time.
func markCompleted(p *models.ContentProgress, now time.Time) bool {
	if p.IsCompleted {
		return false
	}
	p.IsCompleted = true
	if p.CompletedAt == nil {
		p.CompletedAt = &now
	}
	return true
}

func clampPercentage(pct float64) float64 {
	if math.IsNaN(pct) || pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return round2(pct)
}

func coursePercentage(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	pct := round2(float64(completed) / float64(total) * 100)
	if pct > 100 {
		return 100
	}
	return pct
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
