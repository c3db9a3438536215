package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SceneVideo submits the video render for a scene. The response carries the
// pending job; progress arrives through SceneVideoStatus.
func (a *App) SceneVideo(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	scene, err := a.Workflow.GenerateVideo(r.Context(), userID, chi.URLParam(r, "scene_id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, a.sceneDTO(scene))
}

// SceneVideoStatus reports the render state with a progress estimate. A
// pending job never reports 100; only completion does.
func (a *App) SceneVideoStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	scene, err := a.Workflow.SceneStatus(r.Context(), userID, chi.URLParam(r, "scene_id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	if scene.VideoJob == nil {
		a.error(w, http.StatusNotFound, "not_found", "no video job for scene")
		return
	}
	a.json(w, http.StatusOK, a.videoDTO(scene.VideoJob))
}

type checkVideoStatusRequest struct {
	RequestID string `json:"request_id"`
}

// CheckVideoStatus reports a render looked up by its vendor request id.
// Regeneration abandons the old request id, which then reports not found.
func (a *App) CheckVideoStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req checkVideoStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RequestID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	job, err := a.Workflow.VideoStatusByRequest(r.Context(), userID, req.RequestID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, a.videoDTO(job))
}
