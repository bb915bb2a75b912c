package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"engagement-backend/internal/logger"
	"engagement-backend/internal/models"
	"engagement-backend/internal/repository"
)

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]models.LearningSession
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[uuid.UUID]models.LearningSession)}
}

func (f *fakeSessionStore) Create(ctx context.Context, s *models.LearningSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.sessions {
		if existing.UserID == s.UserID && existing.ContentID == s.ContentID && existing.SessionEnd == nil {
			return errors.New("duplicate open session")
		}
	}
	s.CreatedAt = s.SessionStart
	f.sessions[s.ID] = *s
	return nil
}

func (f *fakeSessionStore) GetByID(ctx context.Context, id uuid.UUID) (*models.LearningSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (f *fakeSessionStore) ListOpen(ctx context.Context, userID, contentID uuid.UUID) ([]*models.LearningSession, error) {
	return f.filter(func(s models.LearningSession) bool {
		return s.UserID == userID && s.ContentID == contentID && s.SessionEnd == nil
	}), nil
}

func (f *fakeSessionStore) ListStale(ctx context.Context, startedBefore, heartbeatBefore time.Time, limit int) ([]*models.LearningSession, error) {
	out := f.filter(func(s models.LearningSession) bool {
		return s.SessionEnd == nil && s.SessionStart.Before(startedBefore) && s.LastHeartbeatAt.Before(heartbeatBefore)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSessionStore) filter(keep func(models.LearningSession) bool) []*models.LearningSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.LearningSession
	for _, s := range f.sessions {
		if keep(s) {
			s := s
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionStart.Before(out[j].SessionStart) })
	return out
}

func (f *fakeSessionStore) SaveCounters(ctx context.Context, s *models.LearningSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.sessions[s.ID]
	if !ok || stored.SessionEnd != nil {
		return repository.ErrNotFound
	}
	stored.DurationMinutes = s.DurationMinutes
	stored.WatchTime = s.WatchTime
	stored.SkipCount = s.SkipCount
	stored.SeekCount = s.SeekCount
	stored.PauseCount = s.PauseCount
	stored.LastHeartbeatAt = s.LastHeartbeatAt
	f.sessions[s.ID] = stored
	return nil
}

func (f *fakeSessionStore) Finalize(ctx context.Context, s *models.LearningSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.sessions[s.ID]
	if !ok || stored.SessionEnd != nil {
		return repository.ErrNotFound
	}
	f.sessions[s.ID] = *s
	return nil
}

func (f *fakeSessionStore) openCount(userID, contentID uuid.UUID) int {
	open, _ := f.ListOpen(context.Background(), userID, contentID)
	return len(open)
}

type fakeCatalog struct {
	contents map[uuid.UUID]*models.Content
	err      error
}

func newFakeCatalog(contents ...*models.Content) *fakeCatalog {
	c := &fakeCatalog{contents: make(map[uuid.UUID]*models.Content)}
	for _, content := range contents {
		c.contents[content.ID] = content
	}
	return c
}

func (f *fakeCatalog) GetContent(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.contents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (f *fakeCatalog) CountCourseContent(ctx context.Context, courseID uuid.UUID) (int, error) {
	n := 0
	for _, c := range f.contents {
		if c.CourseID == courseID {
			n++
		}
	}
	return n, nil
}

type fakeMedia struct {
	mu       sync.Mutex
	released []string
	err      error
}

func (f *fakeMedia) Release(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, handle)
	return f.err
}

type fakeRecorder struct {
	calls []float64
}

func (f *fakeRecorder) RecordSessionEnd(ctx context.Context, userID, contentID uuid.UUID, completionPercentage float64) error {
	f.calls = append(f.calls, completionPercentage)
	return nil
}

type fakeProgressStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.ContentProgress
}

func newFakeProgressStore() *fakeProgressStore {
	return &fakeProgressStore{rows: make(map[uuid.UUID]models.ContentProgress)}
}

func (f *fakeProgressStore) GetOrCreate(ctx context.Context, p *models.ContentProgress) (*models.ContentProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.UserID == p.UserID && row.ContentID == p.ContentID {
			return &row, nil
		}
	}
	row := *p
	row.ID = uuid.New()
	f.rows[row.ID] = row
	return &row, nil
}

func (f *fakeProgressStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ContentProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (f *fakeProgressStore) GetByUserContent(ctx context.Context, userID, contentID uuid.UUID) (*models.ContentProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.UserID == userID && row.ContentID == contentID {
			return &row, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeProgressStore) Update(ctx context.Context, p *models.ContentProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.rows[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	// completed_at is never cleared once set.
	if stored.CompletedAt != nil {
		p.CompletedAt = stored.CompletedAt
	}
	f.rows[p.ID] = *p
	return nil
}

func (f *fakeProgressStore) CountCompleted(ctx context.Context, userID, courseID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, row := range f.rows {
		if row.UserID == userID && row.CourseID == courseID && row.IsCompleted {
			n++
		}
	}
	return n, nil
}

// seed stores a completed row directly.
func (f *fakeProgressStore) seedCompleted(userID uuid.UUID, content *models.Content) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	id := uuid.New()
	f.rows[id] = models.ContentProgress{
		ID:                   id,
		UserID:               userID,
		ContentID:            content.ID,
		CourseID:             content.CourseID,
		ContentType:          content.Type,
		CompletionPercentage: 100,
		IsCompleted:          true,
		CompletedAt:          &now,
	}
}

type assignmentWrite struct {
	CourseID    uuid.UUID
	UserID      uuid.UUID
	Percentage  float64
	Status      models.AssignmentStatus
	CompletedAt *time.Time
}

type fakeAssignments struct {
	mu     sync.Mutex
	calls  int
	writes []assignmentWrite
	// failures makes the next n calls fail without writing.
	failures int
	// before runs ahead of each call with its 1-based call number.
	before func(call int)
}

func (f *fakeAssignments) SetProgress(ctx context.Context, courseID, userID uuid.UUID, percentage float64, status models.AssignmentStatus, completedAt *time.Time) error {
	f.mu.Lock()
	f.calls++
	call := f.calls
	before := f.before
	f.mu.Unlock()

	if before != nil {
		before(call)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("assignment store down")
	}
	f.writes = append(f.writes, assignmentWrite{courseID, userID, percentage, status, completedAt})
	return nil
}

func (f *fakeAssignments) written() []assignmentWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]assignmentWrite(nil), f.writes...)
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []models.WSMessage
}

func (f *fakePublisher) Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.messages))
	for _, m := range f.messages {
		out = append(out, m.Type)
	}
	return out
}

// testClock is a settable clock shared by the services under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func videoContent(courseID uuid.UUID, seconds int) *models.Content {
	return &models.Content{ID: uuid.New(), CourseID: courseID, Type: models.ContentTypeVideo, DurationHint: seconds}
}

func documentContent(courseID uuid.UUID, pages int) *models.Content {
	return &models.Content{ID: uuid.New(), CourseID: courseID, Type: models.ContentTypeDocument, DurationHint: pages}
}

var testLog = logger.Nop()

func counters(watch, skips, seeks, pauses int) models.SessionCounters {
	return models.SessionCounters{WatchTime: watch, SkipCount: skips, SeekCount: seeks, PauseCount: pauses}
}

func floatPtr(v float64) *float64 { return &v }
