package models

import (
	"time"

	"github.com/google/uuid"
)

type ContentProgress struct {
	ID                   uuid.UUID   `json:"id"`
	UserID               uuid.UUID   `json:"user_id"`
	ContentID            uuid.UUID   `json:"content_id"`
	CourseID             uuid.UUID   `json:"course_id"`
	ModuleID             *uuid.UUID  `json:"module_id"`
	ContentType          ContentType `json:"content_type"`
	WatchTime            float64     `json:"watch_time"`
	PlaybackPosition     float64     `json:"playback_position"` // seconds or page number
	CompletionPercentage float64     `json:"completion_percentage"`
	IsCompleted          bool        `json:"is_completed"`
	TaskCompleted        bool        `json:"task_completed"`
	LastAccessedAt       *time.Time  `json:"last_accessed_at"`
	CompletedAt          *time.Time  `json:"completed_at"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

type AssignmentStatus string

const (
	AssignmentAssigned   AssignmentStatus = "assigned"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentCompleted  AssignmentStatus = "completed"
)

// AssignmentStatusFor derives the course-assignment status from an
// aggregate completion percentage.
func AssignmentStatusFor(percentage float64) AssignmentStatus {
	switch {
	case percentage >= 100:
		return AssignmentCompleted
	case percentage > 0:
		return AssignmentInProgress
	default:
		return AssignmentAssigned
	}
}

type CourseProgress struct {
	CourseID           uuid.UUID        `json:"course_id"`
	UserID             uuid.UUID        `json:"user_id"`
	CompletedItems     int              `json:"completed_items"`
	TotalItems         int              `json:"total_items"`
	ProgressPercentage float64          `json:"progress_percentage"`
	Status             AssignmentStatus `json:"status"`
}
