package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"engagement-backend/internal/models"
)

type LearningSessionRepo struct {
	pool *pgxpool.Pool
}

func NewLearningSessionRepo(pool *pgxpool.Pool) *LearningSessionRepo {
	return &LearningSessionRepo{pool: pool}
}

const sessionColumns = `id, user_id, content_id, course_id, session_start, session_end, last_heartbeat_at,
	start_position, duration_minutes, watch_time, skip_count, seek_count, pause_count,
	completion_percentage_at_end::float8, attention_score, cheating_score, is_suspicious,
	resource_handle, created_at`

func scanSession(row pgx.Row) (*models.LearningSession, error) {
	s := &models.LearningSession{}
	err := row.Scan(
		&s.ID, &s.UserID, &s.ContentID, &s.CourseID, &s.SessionStart, &s.SessionEnd, &s.LastHeartbeatAt,
		&s.StartPosition, &s.DurationMinutes, &s.WatchTime, &s.SkipCount, &s.SeekCount, &s.PauseCount,
		&s.CompletionPercentageAtEnd, &s.AttentionScore, &s.CheatingScore, &s.IsSuspicious,
		&s.ResourceHandle, &s.CreatedAt,
	)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return s, nil
}

func (r *LearningSessionRepo) Create(ctx context.Context, s *models.LearningSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	query := `INSERT INTO learning_sessions (id, user_id, content_id, course_id, session_start, last_heartbeat_at,
			start_position, resource_handle)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		s.ID, s.UserID, s.ContentID, s.CourseID, s.SessionStart, s.LastHeartbeatAt,
		s.StartPosition, s.ResourceHandle,
	).Scan(&s.CreatedAt)
}

func (r *LearningSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.LearningSession, error) {
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM learning_sessions WHERE id = $1`, id))
}

func (r *LearningSessionRepo) ListOpen(ctx context.Context, userID, contentID uuid.UUID) ([]*models.LearningSession, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM learning_sessions
		WHERE user_id = $1 AND content_id = $2 AND session_end IS NULL
		ORDER BY session_start`, userID, contentID)
}

// ListStale returns open sessions started before startedBefore with no
// heartbeat since heartbeatBefore.
func (r *LearningSessionRepo) ListStale(ctx context.Context, startedBefore, heartbeatBefore time.Time, limit int) ([]*models.LearningSession, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM learning_sessions
		WHERE session_end IS NULL
		  AND session_start < $1
		  AND last_heartbeat_at < $2
		ORDER BY session_start
		LIMIT $3`, startedBefore, heartbeatBefore, limit)
}

func (r *LearningSessionRepo) list(ctx context.Context, query string, args ...interface{}) ([]*models.LearningSession, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.LearningSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SaveCounters persists heartbeat state. Ended sessions are never touched;
// ErrNotFound is returned when the row is missing or already closed.
func (r *LearningSessionRepo) SaveCounters(ctx context.Context, s *models.LearningSession) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE learning_sessions
		SET duration_minutes = $2,
			watch_time = $3,
			skip_count = $4,
			seek_count = $5,
			pause_count = $6,
			last_heartbeat_at = $7
		WHERE id = $1
		  AND session_end IS NULL
	`, s.ID, s.DurationMinutes, s.WatchTime, s.SkipCount, s.SeekCount, s.PauseCount, s.LastHeartbeatAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Finalize writes session_end, final counters and scores exactly once.
func (r *LearningSessionRepo) Finalize(ctx context.Context, s *models.LearningSession) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE learning_sessions
		SET session_end = $2,
			duration_minutes = $3,
			watch_time = $4,
			skip_count = $5,
			seek_count = $6,
			pause_count = $7,
			last_heartbeat_at = $8,
			completion_percentage_at_end = $9,
			attention_score = $10,
			cheating_score = $11,
			is_suspicious = $12
		WHERE id = $1
		  AND session_end IS NULL
	`, s.ID, s.SessionEnd, s.DurationMinutes, s.WatchTime, s.SkipCount, s.SeekCount, s.PauseCount,
		s.LastHeartbeatAt, s.CompletionPercentageAtEnd, s.AttentionScore, s.CheatingScore, s.IsSuspicious)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
