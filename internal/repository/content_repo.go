package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"engagement-backend/internal/models"
)

// ContentRepo reads the course catalog. It never writes.
type ContentRepo struct {
	pool *pgxpool.Pool
}

func NewContentRepo(pool *pgxpool.Pool) *ContentRepo {
	return &ContentRepo{pool: pool}
}

func (r *ContentRepo) GetContent(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	c := &models.Content{}
	query := `SELECT id, course_id, module_id, content_type, title, duration_hint
		FROM course_contents WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.CourseID, &c.ModuleID, &c.Type, &c.Title, &c.DurationHint,
	)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return c, nil
}

func (r *ContentRepo) CountCourseContent(ctx context.Context, courseID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM course_contents WHERE course_id = $1", courseID).Scan(&n)
	return n, err
}
