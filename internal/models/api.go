package models

import "github.com/google/uuid"

type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

const (
	EventProgressUpdated = "progress.updated"
	EventCourseProgress  = "course.progress"
)

type ProgressEvent struct {
	ContentID            uuid.UUID `json:"content_id"`
	CourseID             uuid.UUID `json:"course_id"`
	CompletionPercentage float64   `json:"completion_percentage"`
	IsCompleted          bool      `json:"is_completed"`
}
