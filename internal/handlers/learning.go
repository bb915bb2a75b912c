package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"engagement-backend/internal/logger"
	"engagement-backend/internal/middleware"
	"engagement-backend/internal/models"
	"engagement-backend/internal/services"
)

type SessionManager interface {
	Start(ctx context.Context, in services.StartSessionInput) (*models.LearningSession, error)
	Heartbeat(ctx context.Context, in services.HeartbeatInput) (*models.LearningSession, error)
	End(ctx context.Context, in services.EndSessionInput) (*models.LearningSession, error)
}

type ProgressTracker interface {
	GetOrCreate(ctx context.Context, userID, contentID uuid.UUID) (*models.ContentProgress, error)
	UpdateProgress(ctx context.Context, in services.UpdateProgressInput) (*models.ContentProgress, error)
	MarkComplete(ctx context.Context, userID, contentID uuid.UUID) (*models.ContentProgress, error)
	CalculateCourseProgress(ctx context.Context, courseID, userID uuid.UUID) (*models.CourseProgress, error)
}

// MediaHandles hands out playback handles for new sessions. Optional.
type MediaHandles interface {
	services.HandleAcquirer
	services.MediaReleaser
}

const (
	actionStart     = "start"
	actionHeartbeat = "heartbeat"
	actionEnd       = "end"
)

type LearningHandler struct {
	sessions SessionManager
	progress ProgressTracker
	handles  MediaHandles
	log      *logger.Logger
}

func NewLearningHandler(sessions SessionManager, progress ProgressTracker, handles MediaHandles, log *logger.Logger) *LearningHandler {
	return &LearningHandler{
		sessions: sessions,
		progress: progress,
		handles:  handles,
		log:      log.With("component", "learning_handler"),
	}
}

type sessionRequest struct {
	Action               string   `json:"action"`
	ContentID            string   `json:"content_id"`
	SessionID            string   `json:"session_id"`
	InitialPosition      float64  `json:"initial_position"`
	CompletionPercentage *float64 `json:"completion_percentage"` // required for end
	models.SessionCounters
}

// Session dispatches start, heartbeat and end on the action field.
func (h *LearningHandler) Session(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("BAD_REQUEST", "Invalid request body", r))
		return
	}

	switch req.Action {
	case actionStart:
		h.startSession(w, r, userID, req)
	case actionHeartbeat, actionEnd:
		sessionID, err := uuid.Parse(req.SessionID)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
				map[string]string{"session_id": "must be a valid id"}, r))
			return
		}
		if req.Action == actionHeartbeat {
			h.heartbeat(w, r, userID, sessionID, req)
		} else {
			h.endSession(w, r, userID, sessionID, req)
		}
	default:
		writeJSON(w, http.StatusBadRequest, errorResp("BAD_REQUEST", "action must be start, heartbeat, or end", r))
	}
}

func (h *LearningHandler) startSession(w http.ResponseWriter, r *http.Request, userID uuid.UUID, req sessionRequest) {
	contentID, err := uuid.Parse(req.ContentID)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"content_id": "must be a valid id"}, r))
		return
	}

	var handle string
	if h.handles != nil {
		// Sessions start without a handle when the registry is unavailable.
		handle, err = h.handles.Acquire(r.Context(), userID, contentID)
		if err != nil {
			h.log.Warn("media handle acquire failed", "user_id", userID, "content_id", contentID, "error", err)
			handle = ""
		}
	}

	session, err := h.sessions.Start(r.Context(), services.StartSessionInput{
		UserID:          userID,
		ContentID:       contentID,
		InitialPosition: req.InitialPosition,
		ResourceHandle:  handle,
	})
	if err != nil {
		if handle != "" {
			if relErr := h.handles.Release(r.Context(), handle); relErr != nil {
				h.log.Warn("media handle release failed", "resource_handle", handle, "error", relErr)
			}
		}
		h.handleServiceError(w, r, err)
		return
	}

	resp := map[string]interface{}{
		"success":    true,
		"session_id": session.ID,
	}
	if handle != "" {
		resp["resource_handle"] = handle
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LearningHandler) heartbeat(w http.ResponseWriter, r *http.Request, userID, sessionID uuid.UUID, req sessionRequest) {
	_, err := h.sessions.Heartbeat(r.Context(), services.HeartbeatInput{
		UserID:          userID,
		SessionID:       sessionID,
		SessionCounters: req.SessionCounters,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *LearningHandler) endSession(w http.ResponseWriter, r *http.Request, userID, sessionID uuid.UUID, req sessionRequest) {
	_, err := h.sessions.End(r.Context(), services.EndSessionInput{
		UserID:               userID,
		SessionID:            sessionID,
		CompletionPercentage: req.CompletionPercentage,
		SessionCounters:      req.SessionCounters,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type progressResponse struct {
	Success              bool    `json:"success"`
	CompletionPercentage float64 `json:"completion_percentage"`
	IsCompleted          bool    `json:"is_completed"`
}

func (h *LearningHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		ContentID            string   `json:"content_id"`
		CurrentPosition      *float64 `json:"current_position"`
		CompletionPercentage *float64 `json:"completion_percentage"`
		WatchTime            *float64 `json:"watch_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("BAD_REQUEST", "Invalid request body", r))
		return
	}

	contentID, ok := h.parseContentID(w, r, req.ContentID)
	if !ok {
		return
	}

	current, err := h.progress.GetOrCreate(r.Context(), userID, contentID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	p, err := h.progress.UpdateProgress(r.Context(), services.UpdateProgressInput{
		UserID:               userID,
		ProgressID:           current.ID,
		CurrentPosition:      req.CurrentPosition,
		CompletionPercentage: req.CompletionPercentage,
		WatchTime:            req.WatchTime,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, progressResponse{
		Success:              true,
		CompletionPercentage: p.CompletionPercentage,
		IsCompleted:          p.IsCompleted,
	})
}

func (h *LearningHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		ContentID string `json:"content_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("BAD_REQUEST", "Invalid request body", r))
		return
	}

	contentID, ok := h.parseContentID(w, r, req.ContentID)
	if !ok {
		return
	}

	p, err := h.progress.MarkComplete(r.Context(), userID, contentID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, progressResponse{
		Success:              true,
		CompletionPercentage: p.CompletionPercentage,
		IsCompleted:          p.IsCompleted,
	})
}

func (h *LearningHandler) CourseProgress(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("BAD_REQUEST", "Invalid course ID", r))
		return
	}

	cp, err := h.progress.CalculateCourseProgress(r.Context(), courseID, userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"course_id":           cp.CourseID,
		"completed_items":     cp.CompletedItems,
		"total_items":         cp.TotalItems,
		"progress_percentage": cp.ProgressPercentage,
		"status":              cp.Status,
	})
}

func (h *LearningHandler) parseContentID(w http.ResponseWriter, r *http.Request, raw string) (uuid.UUID, bool) {
	contentID, err := uuid.Parse(raw)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"content_id": "must be a valid id"}, r))
		return uuid.Nil, false
	}
	return contentID, true
}
