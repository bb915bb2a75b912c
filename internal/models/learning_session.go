package models

import (
	"time"

	"github.com/google/uuid"
)

// LearningSession is one observation window of a user engaging with one
// content item. SessionEnd is nil while the session is open.
type LearningSession struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	ContentID       uuid.UUID  `json:"content_id"`
	CourseID        uuid.UUID  `json:"course_id"`
	SessionStart    time.Time  `json:"session_start"`
	SessionEnd      *time.Time `json:"session_end,omitempty"`
	LastHeartbeatAt time.Time  `json:"last_heartbeat_at"`
	StartPosition   float64    `json:"start_position"`

	DurationMinutes int `json:"duration_minutes"`
	WatchTime       int `json:"watch_time"`
	SkipCount       int `json:"skip_count"`
	SeekCount       int `json:"seek_count"`
	PauseCount      int `json:"pause_count"`

	CompletionPercentageAtEnd *float64 `json:"completion_percentage_at_end,omitempty"`
	AttentionScore            *int     `json:"attention_score,omitempty"`
	CheatingScore             *int     `json:"cheating_score,omitempty"`
	IsSuspicious              bool     `json:"is_suspicious"`

	ResourceHandle *string   `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *LearningSession) IsOpen() bool {
	return s.SessionEnd == nil
}

// SessionCounters are client-reported deltas since the previous report.
type SessionCounters struct {
	WatchTime  int `json:"watch_time" validate:"gte=0"`
	SkipCount  int `json:"skip_count" validate:"gte=0"`
	SeekCount  int `json:"seek_count" validate:"gte=0"`
	PauseCount int `json:"pause_count" validate:"gte=0"`
}
