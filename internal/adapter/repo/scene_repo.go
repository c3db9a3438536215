package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/sqlinline"
)

// SceneRepositoryPG implements domain.SceneStore backed by PostgreSQL.
// Video jobs live in their own table keyed by scene, one row per scene,
// overwritten on each resubmission.
type SceneRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewSceneRepository creates a new SceneRepositoryPG.
func NewSceneRepository(sql infra.SQLExecutor) *SceneRepositoryPG {
	return &SceneRepositoryPG{sql: sql}
}

// InsertScenes persists a batch of freshly segmented scenes.
func (r *SceneRepositoryPG) InsertScenes(ctx context.Context, scenes []*domain.Scene) error {
	for _, s := range scenes {
		if _, err := r.sql.Exec(ctx, sqlinline.QInsertScene, s.ID, s.SessionID, s.UserID, s.Order, s.Text); err != nil {
			return err
		}
	}
	return nil
}

// GetScene fetches a scene with its current video job, if any.
func (r *SceneRepositoryPG) GetScene(ctx context.Context, sceneID string) (*domain.Scene, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectScene, sceneID)
	scene, err := scanScene(row)
	if err != nil {
		return nil, err
	}
	job, err := r.videoJob(ctx, sqlinline.QSelectVideoJobByScene, sceneID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	scene.VideoJob = job
	return scene, nil
}

// SessionScenes lists a session's scenes in pipeline order.
func (r *SceneRepositoryPG) SessionScenes(ctx context.Context, sessionID string) ([]*domain.Scene, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectSessionScenes, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Scene
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, scene)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, scene := range out {
		job, err := r.videoJob(ctx, sqlinline.QSelectVideoJobByScene, scene.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		scene.VideoJob = job
	}
	return out, nil
}

func (r *SceneRepositoryPG) UpdateText(ctx context.Context, sceneID, text string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpdateSceneText, sceneID, text)
	return err
}

func (r *SceneRepositoryPG) SetImagePrompt(ctx context.Context, sceneID, prompt string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QSetImagePrompt, sceneID, prompt)
	return err
}

func (r *SceneRepositoryPG) SetImages(ctx context.Context, sceneID string, images []string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QSetImages, sceneID, images)
	return err
}

func (r *SceneRepositoryPG) SetSelectedImage(ctx context.Context, sceneID string, index int) error {
	_, err := r.sql.Exec(ctx, sqlinline.QSetSelectedImage, sceneID, index)
	return err
}

func (r *SceneRepositoryPG) SetVideoPrompts(ctx context.Context, sceneID, videoPrompt, negativePrompt string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QSetVideoPrompts, sceneID, videoPrompt, negativePrompt)
	return err
}

func (r *SceneRepositoryPG) DeleteScene(ctx context.Context, sceneID string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QDeleteScene, sceneID)
	return err
}

// CreateVideoJob bumps the scene epoch and records the submission atomically.
func (r *SceneRepositoryPG) CreateVideoJob(ctx context.Context, sceneID, requestID string, submittedAt time.Time) (*domain.VideoJob, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QCreateVideoJob, sceneID, requestID, submittedAt)
	var job domain.VideoJob
	if err := row.Scan(&job.SceneID, &job.Epoch, &job.RequestID, &job.Status, &job.SubmittedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *SceneRepositoryPG) GetVideoJobByRequest(ctx context.Context, requestID string) (*domain.VideoJob, error) {
	return r.videoJob(ctx, sqlinline.QSelectVideoJobByRequest, requestID)
}

// CompleteVideoJob applies a successful poll result; false means the epoch
// was stale or the job already terminal, and nothing was mutated.
func (r *SceneRepositoryPG) CompleteVideoJob(ctx context.Context, sceneID string, epoch int, videoURL, thumbnailURL string) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QCompleteVideoJob, sceneID, epoch, videoURL, thumbnailURL)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FailVideoJob applies a failure or timeout result under the same epoch guard.
func (r *SceneRepositoryPG) FailVideoJob(ctx context.Context, sceneID string, epoch int, reason string) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QFailVideoJob, sceneID, epoch, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// PendingVideoJobs lists jobs awaiting a terminal state, oldest first.
func (r *SceneRepositoryPG) PendingVideoJobs(ctx context.Context) ([]*domain.VideoJob, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectPendingVideoJobs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.VideoJob
	for rows.Next() {
		var job domain.VideoJob
		if err := rows.Scan(&job.SceneID, &job.Epoch, &job.RequestID, &job.Status, &job.SubmittedAt,
			&job.VideoURL, &job.ThumbnailURL, &job.Reason, &job.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &job)
	}
	return out, rows.Err()
}

func (r *SceneRepositoryPG) videoJob(ctx context.Context, query, arg string) (*domain.VideoJob, error) {
	row := r.sql.QueryRow(ctx, query, arg)
	var job domain.VideoJob
	if err := row.Scan(&job.SceneID, &job.Epoch, &job.RequestID, &job.Status, &job.SubmittedAt,
		&job.VideoURL, &job.ThumbnailURL, &job.Reason, &job.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func scanScene(row pgx.Row) (*domain.Scene, error) {
	var s domain.Scene
	if err := row.Scan(&s.ID, &s.SessionID, &s.UserID, &s.Order, &s.Text,
		&s.ImagePrompt, &s.Images, &s.SelectedImageIndex,
		&s.VideoPrompt, &s.NegativePrompt, &s.VideoEpoch,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

var _ domain.SceneStore = (*SceneRepositoryPG)(nil)
