// Package workflow is the pipeline engine. It enforces stage order, charges
// credits, calls the generation gateway, and persists artifacts. The paid
// operations all follow the same contract: check the balance before touching
// the vendor, debit exactly once after the vendor succeeds, and leave the
// ledger untouched on any failure.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storyreel/internal/domain"
	"storyreel/internal/gateway"
	"storyreel/internal/infra"
)

// Costs is the credit price per paid stage.
type Costs struct {
	ParseScenes   int
	ImagePrompt   int
	Images        int
	DescribeImage int
	Video         int
}

// CostsFromConfig copies the configured cost table.
func CostsFromConfig(cfg *infra.Config) Costs {
	return Costs{
		ParseScenes:   cfg.CostParseScenes,
		ImagePrompt:   cfg.CostImagePrompt,
		Images:        cfg.CostImages,
		DescribeImage: cfg.CostDescribeImage,
		Video:         cfg.CostVideo,
	}
}

// Watcher starts a poll loop for a submitted video render.
type Watcher interface {
	Watch(sceneID string, epoch int, requestID string, submittedAt time.Time) error
}

// Workflow wires the stores, ledger, gateway and poller into the scene
// pipeline operations.
type Workflow struct {
	store   domain.SceneStore
	ledger  domain.CreditLedger
	gw      gateway.Gateway
	watcher Watcher
	costs   Costs
	log     zerolog.Logger
	guard   *stageGuard
}

// New creates a workflow engine.
func New(store domain.SceneStore, ledger domain.CreditLedger, gw gateway.Gateway, watcher Watcher, costs Costs, log zerolog.Logger) *Workflow {
	return &Workflow{
		store:   store,
		ledger:  ledger,
		gw:      gw,
		watcher: watcher,
		costs:   costs,
		log:     log.With().Str("component", "workflow").Logger(),
		guard:   newStageGuard(),
	}
}

// Scene count bounds for synopsis segmentation.
const (
	MinSceneCount = 5
	MaxSceneCount = 20
)

// ParseScenes splits a synopsis into sceneCount scenes and persists them as
// the start of a new session pipeline. A session can be parsed only once;
// reusing a populated session is rejected.
func (w *Workflow) ParseScenes(ctx context.Context, userID, sessionID, synopsis, locale string, sceneCount int) ([]*domain.Scene, error) {
	synopsis = strings.TrimSpace(synopsis)
	if synopsis == "" {
		return nil, fmt.Errorf("%w: synopsis is required", domain.ErrValidation)
	}
	if sceneCount < MinSceneCount || sceneCount > MaxSceneCount {
		return nil, fmt.Errorf("%w: scene_count must be between %d and %d", domain.ErrValidation, MinSceneCount, MaxSceneCount)
	}
	key := "session/" + sessionID + "/parse"
	if !w.guard.tryAcquire(key) {
		w.log.Debug().Str("session_id", sessionID).Msg("parse already in flight, dropping duplicate")
		return w.store.SessionScenes(ctx, sessionID)
	}
	defer w.guard.release(key)

	existing, err := w.store.SessionScenes(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: session already has scenes", domain.ErrValidation)
	}

	if err := w.requireCredits(ctx, userID, w.costs.ParseScenes); err != nil {
		return nil, err
	}
	seg, err := w.gw.SegmentScenes(ctx, synopsis, locale, sceneCount)
	if err != nil {
		return nil, &domain.UpstreamGenerationError{Stage: domain.StageText, Err: err}
	}
	if _, err := w.ledger.Debit(ctx, userID, w.costs.ParseScenes, "parse-scenes"); err != nil {
		return nil, err
	}

	scenes := make([]*domain.Scene, 0, len(seg.Scenes))
	for _, draft := range seg.Scenes {
		scenes = append(scenes, &domain.Scene{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			UserID:    userID,
			Order:     draft.Order,
			Text:      draft.Text,
		})
	}
	if err := w.store.InsertScenes(ctx, scenes); err != nil {
		w.refund(ctx, userID, w.costs.ParseScenes, "parse-scenes")
		return nil, err
	}
	w.log.Info().Str("session_id", sessionID).Int("scenes", len(scenes)).Bool("fallback", seg.Fallback).Msg("synopsis segmented")
	return scenes, nil
}

// GenerateImagePrompt synthesizes the visual prompt for a scene's text.
func (w *Workflow) GenerateImagePrompt(ctx context.Context, userID, sceneID string) (*domain.Scene, error) {
	return w.generate(ctx, userID, sceneID, domain.StageImagePrompt, domain.StageText, w.costs.ImagePrompt, "image-prompt",
		func(ctx context.Context, scene *domain.Scene) error {
			prompt, err := w.gw.SynthesizeImagePrompt(ctx, scene.Text)
			if err != nil {
				return err
			}
			scene.ImagePrompt = prompt.Text
			return nil
		},
		func(ctx context.Context, scene *domain.Scene) error {
			return w.store.SetImagePrompt(ctx, scene.ID, scene.ImagePrompt)
		})
}

// GenerateImages produces the candidate image batch for a scene's prompt.
func (w *Workflow) GenerateImages(ctx context.Context, userID, sceneID string) (*domain.Scene, error) {
	return w.generate(ctx, userID, sceneID, domain.StageImages, domain.StageImagePrompt, w.costs.Images, "generate-images",
		func(ctx context.Context, scene *domain.Scene) error {
			set, err := w.gw.SynthesizeImages(ctx, scene.ImagePrompt)
			if err != nil {
				return err
			}
			scene.Images = set.URLs
			return nil
		},
		func(ctx context.Context, scene *domain.Scene) error {
			return w.store.SetImages(ctx, scene.ID, scene.Images)
		})
}

// SelectImage picks one candidate image. Selection is free and repeatable
// while the scene has images; reselecting clears later artifacts.
func (w *Workflow) SelectImage(ctx context.Context, userID, sceneID string, index int) (*domain.Scene, error) {
	scene, err := w.ownedScene(ctx, userID, sceneID)
	if err != nil {
		return nil, err
	}
	if !scene.HasArtifact(domain.StageImages) {
		return nil, &domain.OutOfOrderTransitionError{SceneID: sceneID, Stage: domain.StageImageSelected, Missing: domain.StageImages}
	}
	if index < 0 || index >= len(scene.Images) {
		return nil, fmt.Errorf("%w: image index %d out of range", domain.ErrValidation, index)
	}
	if err := w.store.SetSelectedImage(ctx, sceneID, index); err != nil {
		return nil, err
	}
	return w.store.GetScene(ctx, sceneID)
}

// GenerateVideoPrompt derives the motion prompts from the selected image.
func (w *Workflow) GenerateVideoPrompt(ctx context.Context, userID, sceneID string) (*domain.Scene, error) {
	return w.generate(ctx, userID, sceneID, domain.StageVideoPrompt, domain.StageImageSelected, w.costs.DescribeImage, "describe-image",
		func(ctx context.Context, scene *domain.Scene) error {
			selected, _ := scene.SelectedImage()
			desc, err := w.gw.DescribeImage(ctx, selected, scene.Text)
			if err != nil {
				return err
			}
			scene.VideoPrompt = desc.VideoPrompt
			scene.NegativePrompt = desc.NegativePrompt
			return nil
		},
		func(ctx context.Context, scene *domain.Scene) error {
			return w.store.SetVideoPrompts(ctx, scene.ID, scene.VideoPrompt, scene.NegativePrompt)
		})
}

// GenerateVideo submits the render, records the pending job under a fresh
// epoch, and hands the request to the poller.
func (w *Workflow) GenerateVideo(ctx context.Context, userID, sceneID string) (*domain.Scene, error) {
	scene, err := w.ownedScene(ctx, userID, sceneID)
	if err != nil {
		return nil, err
	}
	if !scene.HasArtifact(domain.StageVideoPrompt) {
		return nil, &domain.OutOfOrderTransitionError{SceneID: sceneID, Stage: domain.StageVideo, Missing: domain.StageVideoPrompt}
	}
	key := sceneID + "/" + string(domain.StageVideo)
	if !w.guard.tryAcquire(key) {
		w.log.Debug().Str("scene_id", sceneID).Msg("video submission already in flight, dropping duplicate")
		return scene, nil
	}
	defer w.guard.release(key)

	if err := w.requireCredits(ctx, userID, w.costs.Video); err != nil {
		return nil, err
	}
	selected, _ := scene.SelectedImage()
	requestID, err := w.gw.SubmitVideoRender(ctx, gateway.VideoRenderRequest{
		ImageURL:       selected,
		Prompt:         scene.VideoPrompt,
		NegativePrompt: scene.NegativePrompt,
	})
	if err != nil {
		return nil, &domain.UpstreamGenerationError{Stage: domain.StageVideo, Err: err}
	}
	if _, err := w.ledger.Debit(ctx, userID, w.costs.Video, "generate-video"); err != nil {
		return nil, err
	}

	job, err := w.store.CreateVideoJob(ctx, sceneID, requestID, time.Now())
	if err != nil {
		w.refund(ctx, userID, w.costs.Video, "generate-video")
		return nil, err
	}
	if err := w.watcher.Watch(job.SceneID, job.Epoch, job.RequestID, job.SubmittedAt); err != nil {
		// The job row exists, so boot re-adoption or the reconciler will
		// pick it up even without a live poll loop.
		w.log.Warn().Err(err).Str("scene_id", sceneID).Msg("poll loop not started for submitted render")
	}
	w.log.Info().Str("scene_id", sceneID).Int("epoch", job.Epoch).Str("request_id", requestID).Msg("video render submitted")
	return w.store.GetScene(ctx, sceneID)
}

// UpdateSceneText edits the scene text. Every downstream artifact is cleared
// and any pending render is abandoned.
func (w *Workflow) UpdateSceneText(ctx context.Context, userID, sceneID, text string) (*domain.Scene, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: scene text is required", domain.ErrValidation)
	}
	if _, err := w.ownedScene(ctx, userID, sceneID); err != nil {
		return nil, err
	}
	if err := w.store.UpdateText(ctx, sceneID, text); err != nil {
		return nil, err
	}
	return w.store.GetScene(ctx, sceneID)
}

// AddScene appends a manually written scene to a session.
func (w *Workflow) AddScene(ctx context.Context, userID, sessionID, text string) (*domain.Scene, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: scene text is required", domain.ErrValidation)
	}
	existing, err := w.store.SessionScenes(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	order := 1
	for _, s := range existing {
		if s.UserID != userID {
			return nil, domain.ErrUnauthorized
		}
		if s.Order >= order {
			order = s.Order + 1
		}
	}
	scene := &domain.Scene{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Order:     order,
		Text:      text,
	}
	if err := w.store.InsertScenes(ctx, []*domain.Scene{scene}); err != nil {
		return nil, err
	}
	return w.store.GetScene(ctx, scene.ID)
}

// DeleteScene removes a scene. A session always keeps at least one scene.
func (w *Workflow) DeleteScene(ctx context.Context, userID, sceneID string) error {
	scene, err := w.ownedScene(ctx, userID, sceneID)
	if err != nil {
		return err
	}
	siblings, err := w.store.SessionScenes(ctx, scene.SessionID)
	if err != nil {
		return err
	}
	if len(siblings) <= 1 {
		return fmt.Errorf("%w: cannot delete the last scene of a session", domain.ErrValidation)
	}
	return w.store.DeleteScene(ctx, sceneID)
}

// SceneStatus returns the current scene with its derived state.
func (w *Workflow) SceneStatus(ctx context.Context, userID, sceneID string) (*domain.Scene, error) {
	return w.ownedScene(ctx, userID, sceneID)
}

// VideoStatusByRequest looks up a render by its vendor request id and returns
// the owning scene's job. A stale request id, one abandoned by regeneration,
// reports not found.
func (w *Workflow) VideoStatusByRequest(ctx context.Context, userID, requestID string) (*domain.VideoJob, error) {
	job, err := w.store.GetVideoJobByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if _, err := w.ownedScene(ctx, userID, job.SceneID); err != nil {
		return nil, err
	}
	return job, nil
}

// SessionScenes lists a user's session in pipeline order.
func (w *Workflow) SessionScenes(ctx context.Context, userID, sessionID string) ([]*domain.Scene, error) {
	scenes, err := w.store.SessionScenes(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, s := range scenes {
		if s.UserID != userID {
			return nil, domain.ErrUnauthorized
		}
	}
	return scenes, nil
}

// ExportScenes produces the downloadable session manifest.
func (w *Workflow) ExportScenes(ctx context.Context, userID, sessionID string) ([]domain.SceneExport, error) {
	scenes, err := w.SessionScenes(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SceneExport, 0, len(scenes))
	for _, s := range scenes {
		selected, _ := s.SelectedImage()
		export := domain.SceneExport{
			SceneID:        s.ID,
			SceneText:      s.Text,
			ImagePrompt:    s.ImagePrompt,
			SelectedImage:  selected,
			VideoPrompt:    s.VideoPrompt,
			NegativePrompt: s.NegativePrompt,
		}
		if s.VideoJob != nil && s.VideoJob.Status == domain.VideoJobCompleted {
			export.VideoURL = s.VideoJob.VideoURL
		}
		out = append(out, export)
	}
	return out, nil
}

// generate runs one paid per-scene stage: precondition, in-flight guard,
// balance check, vendor call, single debit, artifact write. The busy path is
// a silent no-op that returns the scene as-is.
func (w *Workflow) generate(
	ctx context.Context,
	userID, sceneID string,
	stage, requires domain.Stage,
	cost int,
	reason string,
	produce func(context.Context, *domain.Scene) error,
	persist func(context.Context, *domain.Scene) error,
) (*domain.Scene, error) {
	scene, err := w.ownedScene(ctx, userID, sceneID)
	if err != nil {
		return nil, err
	}
	if !scene.HasArtifact(requires) {
		return nil, &domain.OutOfOrderTransitionError{SceneID: sceneID, Stage: stage, Missing: requires}
	}
	key := sceneID + "/" + string(stage)
	if !w.guard.tryAcquire(key) {
		w.log.Debug().Str("scene_id", sceneID).Str("stage", string(stage)).Msg("stage already in flight, dropping duplicate")
		return scene, nil
	}
	defer w.guard.release(key)

	if err := w.requireCredits(ctx, userID, cost); err != nil {
		return nil, err
	}
	if err := produce(ctx, scene); err != nil {
		return nil, &domain.UpstreamGenerationError{Stage: stage, Err: err}
	}
	if _, err := w.ledger.Debit(ctx, userID, cost, reason); err != nil {
		return nil, err
	}
	if err := persist(ctx, scene); err != nil {
		w.refund(ctx, userID, cost, reason)
		return nil, err
	}
	return w.store.GetScene(ctx, sceneID)
}

// refund returns a debit whose artifact never landed. The account must not
// stay charged when the write after a successful vendor call fails.
func (w *Workflow) refund(ctx context.Context, userID string, amount int, reason string) {
	if _, err := w.ledger.Credit(ctx, userID, amount, reason+"-refund"); err != nil {
		w.log.Error().Err(err).Str("user_id", userID).Int("amount", amount).Str("reason", reason).Msg("refund failed, account left charged")
	}
}

func (w *Workflow) requireCredits(ctx context.Context, userID string, cost int) error {
	ok, current, err := w.ledger.HasSufficient(ctx, userID, cost)
	if err != nil {
		return err
	}
	if !ok {
		return &domain.InsufficientCreditsError{Required: cost, Current: current}
	}
	return nil
}

func (w *Workflow) ownedScene(ctx context.Context, userID, sceneID string) (*domain.Scene, error) {
	scene, err := w.store.GetScene(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	if scene.UserID != userID {
		return nil, domain.ErrUnauthorized
	}
	return scene, nil
}
