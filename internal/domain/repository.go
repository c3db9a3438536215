package domain

import (
	"context"
	"time"
)

// UserStore defines access methods for users.
type UserStore interface {
	// UpsertByEmail creates the user on first sight and reports whether it
	// was newly created so the caller can grant the signup bonus.
	UpsertByEmail(ctx context.Context, email, locale string) (*User, bool, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

// CreditLedger owns the per-user balance and the append-only transaction log.
// Debit must be a single atomic check-and-update: two concurrent debits whose
// combined amount exceeds the balance may never both succeed.
type CreditLedger interface {
	Balance(ctx context.Context, userID string) (int, error)
	// HasSufficient returns the current balance alongside the verdict so the
	// caller can build the exact shortfall without a second read.
	HasSufficient(ctx context.Context, userID string, amount int) (bool, int, error)
	Debit(ctx context.Context, userID string, amount int, reason string) (int, error)
	Credit(ctx context.Context, userID string, amount int, reason string) (int, error)
	Transactions(ctx context.Context, userID string, limit int) ([]CreditTransaction, error)
}

// SceneStore persists scenes and their video jobs. Mutators that rewrite an
// earlier stage clear every later artifact and advance the video epoch so
// in-flight poll results for abandoned jobs become no-ops.
type SceneStore interface {
	InsertScenes(ctx context.Context, scenes []*Scene) error
	GetScene(ctx context.Context, sceneID string) (*Scene, error)
	SessionScenes(ctx context.Context, sessionID string) ([]*Scene, error)
	UpdateText(ctx context.Context, sceneID, text string) error
	SetImagePrompt(ctx context.Context, sceneID, prompt string) error
	SetImages(ctx context.Context, sceneID string, images []string) error
	SetSelectedImage(ctx context.Context, sceneID string, index int) error
	SetVideoPrompts(ctx context.Context, sceneID, videoPrompt, negativePrompt string) error
	DeleteScene(ctx context.Context, sceneID string) error

	// CreateVideoJob records a new submission, allocating the next epoch for
	// the scene and replacing any previous job record.
	CreateVideoJob(ctx context.Context, sceneID, requestID string, submittedAt time.Time) (*VideoJob, error)
	GetVideoJobByRequest(ctx context.Context, requestID string) (*VideoJob, error)
	// CompleteVideoJob and FailVideoJob apply a poll result conditionally:
	// they report false without mutating anything when the epoch is stale or
	// the job is already terminal.
	CompleteVideoJob(ctx context.Context, sceneID string, epoch int, videoURL, thumbnailURL string) (bool, error)
	FailVideoJob(ctx context.Context, sceneID string, epoch int, reason string) (bool, error)
	PendingVideoJobs(ctx context.Context) ([]*VideoJob, error)
}
