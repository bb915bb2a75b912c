package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"engagement-backend/internal/models"
)

type ProgressRepo struct {
	pool *pgxpool.Pool
}

func NewProgressRepo(pool *pgxpool.Pool) *ProgressRepo {
	return &ProgressRepo{pool: pool}
}

const progressColumns = `id, user_id, content_id, course_id, module_id, content_type, watch_time,
	playback_position, completion_percentage::float8, is_completed, task_completed,
	last_accessed_at, completed_at, created_at, updated_at`

func scanProgress(row pgx.Row) (*models.ContentProgress, error) {
	p := &models.ContentProgress{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.ContentID, &p.CourseID, &p.ModuleID, &p.ContentType, &p.WatchTime,
		&p.PlaybackPosition, &p.CompletionPercentage, &p.IsCompleted, &p.TaskCompleted,
		&p.LastAccessedAt, &p.CompletedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return p, nil
}

// GetOrCreate inserts a zeroed row for (user, content) unless one exists and
// returns the stored row. The unique pair makes concurrent calls converge.
func (r *ProgressRepo) GetOrCreate(ctx context.Context, p *models.ContentProgress) (*models.ContentProgress, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO content_progress (id, user_id, content_id, course_id, module_id, content_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, content_id) DO NOTHING
	`, uuid.New(), p.UserID, p.ContentID, p.CourseID, p.ModuleID, p.ContentType)
	if err != nil {
		return nil, err
	}
	return r.GetByUserContent(ctx, p.UserID, p.ContentID)
}

func (r *ProgressRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ContentProgress, error) {
	return scanProgress(r.pool.QueryRow(ctx, `SELECT `+progressColumns+` FROM content_progress WHERE id = $1`, id))
}

func (r *ProgressRepo) GetByUserContent(ctx context.Context, userID, contentID uuid.UUID) (*models.ContentProgress, error) {
	return scanProgress(r.pool.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM content_progress WHERE user_id = $1 AND content_id = $2`,
		userID, contentID))
}

func (r *ProgressRepo) Update(ctx context.Context, p *models.ContentProgress) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE content_progress
		SET watch_time = $2,
			playback_position = $3,
			completion_percentage = $4,
			is_completed = $5,
			task_completed = $6,
			last_accessed_at = $7,
			completed_at = COALESCE(completed_at, $8),
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, p.ID, p.WatchTime, p.PlaybackPosition, p.CompletionPercentage, p.IsCompleted,
		p.TaskCompleted, p.LastAccessedAt, p.CompletedAt,
	).Scan(&p.UpdatedAt)
	return mapNoRows(err)
}

func (r *ProgressRepo) CountCompleted(ctx context.Context, userID, courseID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM content_progress
		WHERE user_id = $1 AND course_id = $2 AND is_completed
	`, userID, courseID).Scan(&n)
	return n, err
}
