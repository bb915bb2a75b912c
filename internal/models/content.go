package models

import (
	"math"

	"github.com/google/uuid"
)

type ContentType string

const (
	ContentTypeVideo    ContentType = "video"
	ContentTypeDocument ContentType = "document"
)

// Content is the read-only descriptor of a course content item.
// DurationHint is seconds for video and pages for documents.
type Content struct {
	ID           uuid.UUID   `json:"id"`
	CourseID     uuid.UUID   `json:"course_id"`
	ModuleID     *uuid.UUID  `json:"module_id"`
	Type         ContentType `json:"type"`
	Title        string      `json:"title"`
	DurationHint int         `json:"duration_hint"`
}

// ExpectedDurationMinutes is the time a genuine read/watch should take.
// Zero disables ratio-based scoring.
func (c *Content) ExpectedDurationMinutes() float64 {
	if c == nil || c.DurationHint <= 0 {
		return 0
	}
	switch c.Type {
	case ContentTypeDocument:
		return float64(c.DurationHint * 2)
	case ContentTypeVideo:
		return math.Ceil(float64(c.DurationHint) / 60)
	default:
		return 0
	}
}
