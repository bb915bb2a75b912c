package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"engagement-backend/internal/models"
)

type AssignmentRepo struct {
	pool *pgxpool.Pool
}

func NewAssignmentRepo(pool *pgxpool.Pool) *AssignmentRepo {
	return &AssignmentRepo{pool: pool}
}

// SetProgress writes the aggregate onto an existing assignment. Users
// without an assignment for the course are left alone. completed_at keeps
// the first completion time across repeated writes.
func (r *AssignmentRepo) SetProgress(ctx context.Context, courseID, userID uuid.UUID, percentage float64, status models.AssignmentStatus, completedAt *time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE course_assignments
		SET progress_percentage = $3,
			status = $4,
			completed_at = CASE WHEN $4 = 'completed' THEN COALESCE(completed_at, $5) ELSE NULL END,
			updated_at = NOW()
		WHERE course_id = $1
		  AND user_id = $2
	`, courseID, userID, percentage, string(status), completedAt)
	return err
}
