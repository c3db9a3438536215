package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"storyreel/internal/domain"
	"storyreel/internal/middleware"
)

type parseScenesRequest struct {
	SessionID  string `json:"session_id"`
	Synopsis   string `json:"synopsis"`
	SceneCount int    `json:"scene_count"`
}

type parseScenesResponse struct {
	SessionID string     `json:"session_id"`
	Scenes    []sceneDTO `json:"scenes"`
}

// ScenesParse splits a synopsis into scenes and starts a session pipeline.
func (a *App) ScenesParse(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req parseScenesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	locale := middleware.LocaleFromContext(r.Context())
	scenes, err := a.Workflow.ParseScenes(r.Context(), userID, req.SessionID, req.Synopsis, locale, req.SceneCount)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusCreated, parseScenesResponse{SessionID: req.SessionID, Scenes: a.sceneList(scenes)})
}

// SceneImagePrompt synthesizes the visual prompt for one scene.
func (a *App) SceneImagePrompt(w http.ResponseWriter, r *http.Request) {
	a.sceneOp(w, r, a.Workflow.GenerateImagePrompt)
}

// SceneImages generates the candidate image batch for one scene.
func (a *App) SceneImages(w http.ResponseWriter, r *http.Request) {
	a.sceneOp(w, r, a.Workflow.GenerateImages)
}

// SceneVideoPrompt derives motion prompts from the selected image.
func (a *App) SceneVideoPrompt(w http.ResponseWriter, r *http.Request) {
	a.sceneOp(w, r, a.Workflow.GenerateVideoPrompt)
}

type selectImageRequest struct {
	Index int `json:"index"`
}

// SceneSelectImage picks one of the candidate images.
func (a *App) SceneSelectImage(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	sceneID := chi.URLParam(r, "scene_id")
	var req selectImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	scene, err := a.Workflow.SelectImage(r.Context(), userID, sceneID, req.Index)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, a.sceneDTO(scene))
}

type updateSceneRequest struct {
	SceneText string `json:"scene_text"`
}

// SceneUpdate edits the scene text, invalidating downstream artifacts.
func (a *App) SceneUpdate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	sceneID := chi.URLParam(r, "scene_id")
	var req updateSceneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	scene, err := a.Workflow.UpdateSceneText(r.Context(), userID, sceneID, req.SceneText)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, a.sceneDTO(scene))
}

// SceneGet returns one scene with its derived state.
func (a *App) SceneGet(w http.ResponseWriter, r *http.Request) {
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
	a.json(w, http.StatusOK, a.sceneDTO(scene))
}

// SceneDelete removes a scene; the last scene of a session cannot go.
func (a *App) SceneDelete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if err := a.Workflow.DeleteScene(r.Context(), userID, chi.URLParam(r, "scene_id")); err != nil {
		a.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addSceneRequest struct {
	SceneText string `json:"scene_text"`
}

// SessionAddScene appends a manually written scene to a session.
func (a *App) SessionAddScene(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	sessionID := chi.URLParam(r, "session_id")
	var req addSceneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	scene, err := a.Workflow.AddScene(r.Context(), userID, sessionID, req.SceneText)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusCreated, a.sceneDTO(scene))
}

// SessionScenes lists a session's scenes in pipeline order.
func (a *App) SessionScenes(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	scenes, err := a.Workflow.SessionScenes(r.Context(), userID, chi.URLParam(r, "session_id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"scenes": a.sceneList(scenes)})
}

// SessionExport returns the downloadable session manifest.
func (a *App) SessionExport(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	exports, err := a.Workflow.ExportScenes(r.Context(), userID, chi.URLParam(r, "session_id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"scenes": exports})
}

// GenerateImagePrompt is the flat alias of SceneImagePrompt; the scene is
// named in the request body.
func (a *App) GenerateImagePrompt(w http.ResponseWriter, r *http.Request) {
	a.sceneOpBody(w, r, a.Workflow.GenerateImagePrompt, http.StatusOK)
}

// GenerateImages is the flat alias of SceneImages.
func (a *App) GenerateImages(w http.ResponseWriter, r *http.Request) {
	a.sceneOpBody(w, r, a.Workflow.GenerateImages, http.StatusOK)
}

// DescribeImage is the flat alias of SceneVideoPrompt.
func (a *App) DescribeImage(w http.ResponseWriter, r *http.Request) {
	a.sceneOpBody(w, r, a.Workflow.GenerateVideoPrompt, http.StatusOK)
}

// GenerateVideo is the flat alias of SceneVideo.
func (a *App) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	a.sceneOpBody(w, r, a.Workflow.GenerateVideo, http.StatusAccepted)
}

// sceneOp is the shared shape of the paid per-scene generation endpoints.
func (a *App) sceneOp(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) (*domain.Scene, error)) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	scene, err := op(r.Context(), userID, chi.URLParam(r, "scene_id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, a.sceneDTO(scene))
}

type sceneRefRequest struct {
	SceneID string `json:"scene_id"`
}

// sceneOpBody is sceneOp for the flat routes that carry the scene id in the
// request body instead of the URL.
func (a *App) sceneOpBody(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) (*domain.Scene, error), status int) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req sceneRefRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SceneID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	scene, err := op(r.Context(), userID, req.SceneID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, status, a.sceneDTO(scene))
}
