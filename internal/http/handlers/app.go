package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/middleware"
	"storyreel/internal/workflow"
)

// ProgressEstimator reports estimated render progress for a pending job.
type ProgressEstimator interface {
	Progress(submittedAt time.Time) int
}

type App struct {
	Logger   infra.Logger
	Config   *infra.Config
	Workflow *workflow.Workflow
	Ledger   domain.CreditLedger
	Users    domain.UserStore
	Progress ProgressEstimator
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// domainError translates workflow and store errors to HTTP. The credit
// shortfall keeps its numbers so the client can render a top-up prompt.
func (a *App) domainError(w http.ResponseWriter, err error) {
	var insufficient *domain.InsufficientCreditsError
	var outOfOrder *domain.OutOfOrderTransitionError
	var upstream *domain.UpstreamGenerationError
	switch {
	case errors.As(err, &insufficient):
		a.json(w, http.StatusPaymentRequired, map[string]any{
			"error":           "insufficient_credits",
			"message":         insufficient.Error(),
			"requiredCredits": insufficient.Required,
			"currentCredits":  insufficient.Current,
		})
	case errors.As(err, &outOfOrder):
		a.json(w, http.StatusConflict, map[string]any{
			"error":         "out_of_order",
			"message":       outOfOrder.Error(),
			"missing_stage": string(outOfOrder.Missing),
		})
	case errors.As(err, &upstream):
		switch {
		case errors.Is(err, domain.ErrUpstreamTimeout):
			a.error(w, http.StatusGatewayTimeout, "upstream_timeout", upstream.Error())
		case errors.Is(err, domain.ErrInvalidInput):
			a.error(w, http.StatusUnprocessableEntity, "upstream_rejected", upstream.Error())
		default:
			a.error(w, http.StatusBadGateway, "upstream_unavailable", upstream.Error())
		}
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusForbidden, "forbidden", "resource belongs to another user")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	default:
		a.Logger.Error().Err(err).Msg("unhandled error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

type videoDTO struct {
	Status       string `json:"status"`
	RequestID    string `json:"request_id,omitempty"`
	Progress     int    `json:"progress"`
	VideoURL     string `json:"video_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

type sceneDTO struct {
	ID                 string    `json:"id"`
	SessionID          string    `json:"session_id"`
	Order              int       `json:"order"`
	State              string    `json:"state"`
	SceneText          string    `json:"scene_text"`
	ImagePrompt        string    `json:"image_prompt,omitempty"`
	Images             []string  `json:"images,omitempty"`
	SelectedImageIndex *int      `json:"selected_image_index,omitempty"`
	VideoPrompt        string    `json:"video_prompt,omitempty"`
	NegativePrompt     string    `json:"negative_prompt,omitempty"`
	Video              *videoDTO `json:"video,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (a *App) sceneDTO(s *domain.Scene) sceneDTO {
	dto := sceneDTO{
		ID:                 s.ID,
		SessionID:          s.SessionID,
		Order:              s.Order,
		State:              string(s.State()),
		SceneText:          s.Text,
		ImagePrompt:        s.ImagePrompt,
		Images:             s.Images,
		SelectedImageIndex: s.SelectedImageIndex,
		VideoPrompt:        s.VideoPrompt,
		NegativePrompt:     s.NegativePrompt,
		UpdatedAt:          s.UpdatedAt,
	}
	if s.VideoJob != nil {
		dto.Video = a.videoDTO(s.VideoJob)
	}
	return dto
}

func (a *App) videoDTO(job *domain.VideoJob) *videoDTO {
	dto := &videoDTO{
		Status:       string(job.Status),
		RequestID:    job.RequestID,
		VideoURL:     job.VideoURL,
		ThumbnailURL: job.ThumbnailURL,
		Reason:       job.Reason,
	}
	switch job.Status {
	case domain.VideoJobCompleted:
		dto.Progress = 100
	case domain.VideoJobPending:
		if a.Progress != nil {
			dto.Progress = a.Progress.Progress(job.SubmittedAt)
		}
	}
	return dto
}

func (a *App) sceneList(scenes []*domain.Scene) []sceneDTO {
	out := make([]sceneDTO, 0, len(scenes))
	for _, s := range scenes {
		out = append(out, a.sceneDTO(s))
	}
	return out
}
