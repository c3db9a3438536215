// Package memstore provides in-memory implementations of the domain stores.
// They back the unit tests and local development without PostgreSQL; the
// ledger serializes all mutation per account behind one mutex, which is the
// lock-based variant of the atomic check-and-debit requirement.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"storyreel/internal/domain"
)

// Ledger is an in-memory domain.CreditLedger.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]int
	log      []domain.CreditTransaction
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]int)}
}

func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *Ledger) HasSufficient(ctx context.Context, userID string, amount int) (bool, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balances[userID]
	return balance >= amount, balance, nil
}

// Debit checks and decrements under the ledger lock, so concurrent debits
// whose combined amount exceeds the balance cannot both succeed.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int, reason string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balances[userID]
	if balance < amount {
		return 0, &domain.InsufficientCreditsError{Required: amount, Current: balance}
	}
	l.balances[userID] = balance - amount
	l.append(userID, -amount, domain.TransactionDebit, reason)
	return l.balances[userID], nil
}

func (l *Ledger) Credit(ctx context.Context, userID string, amount int, reason string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += amount
	l.append(userID, amount, domain.TransactionCredit, reason)
	return l.balances[userID], nil
}

func (l *Ledger) Transactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.CreditTransaction
	for i := len(l.log) - 1; i >= 0; i-- {
		if l.log[i].UserID != userID {
			continue
		}
		out = append(out, l.log[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (l *Ledger) append(userID string, amount int, kind domain.TransactionKind, reason string) {
	l.log = append(l.log, domain.CreditTransaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Kind:      kind,
		Reason:    reason,
		CreatedAt: time.Now(),
	})
}

var _ domain.CreditLedger = (*Ledger)(nil)

// Users is an in-memory domain.UserStore.
type Users struct {
	mu      sync.Mutex
	byEmail map[string]*domain.User
	byID    map[string]*domain.User
}

// NewUsers creates an empty in-memory user store.
func NewUsers() *Users {
	return &Users{byEmail: make(map[string]*domain.User), byID: make(map[string]*domain.User)}
}

func (u *Users) UpsertByEmail(ctx context.Context, email, locale string) (*domain.User, bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if existing, ok := u.byEmail[email]; ok {
		copied := *existing
		return &copied, false, nil
	}
	now := time.Now()
	user := &domain.User{ID: uuid.NewString(), Email: email, Locale: locale, CreatedAt: now, UpdatedAt: now}
	u.byEmail[email] = user
	u.byID[user.ID] = user
	copied := *user
	return &copied, true, nil
}

func (u *Users) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

var _ domain.UserStore = (*Users)(nil)

// Scenes is an in-memory domain.SceneStore. Epoch-conditional job updates
// mirror the SQL store: a stale epoch is reported, never applied.
type Scenes struct {
	mu     sync.Mutex
	scenes map[string]*domain.Scene
	jobs   map[string]*domain.VideoJob // keyed by scene ID
}

// NewScenes creates an empty in-memory scene store.
func NewScenes() *Scenes {
	return &Scenes{scenes: make(map[string]*domain.Scene), jobs: make(map[string]*domain.VideoJob)}
}

func (s *Scenes) InsertScenes(ctx context.Context, scenes []*domain.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, scene := range scenes {
		copied := *scene
		copied.CreatedAt = now
		copied.UpdatedAt = now
		s.scenes[copied.ID] = &copied
	}
	return nil
}

func (s *Scenes) GetScene(ctx context.Context, sceneID string) (*domain.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(sceneID)
}

func (s *Scenes) SessionScenes(ctx context.Context, sessionID string) ([]*domain.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Scene
	for id, scene := range s.scenes {
		if scene.SessionID != sessionID {
			continue
		}
		snap, err := s.snapshot(id)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *Scenes) UpdateText(ctx context.Context, sceneID, text string) error {
	return s.mutate(sceneID, func(scene *domain.Scene) {
		scene.Text = text
		s.clearFrom(scene, domain.StageImagePrompt)
	})
}

func (s *Scenes) SetImagePrompt(ctx context.Context, sceneID, prompt string) error {
	return s.mutate(sceneID, func(scene *domain.Scene) {
		scene.ImagePrompt = prompt
		s.clearFrom(scene, domain.StageImages)
	})
}

func (s *Scenes) SetImages(ctx context.Context, sceneID string, images []string) error {
	return s.mutate(sceneID, func(scene *domain.Scene) {
		scene.Images = append([]string(nil), images...)
		s.clearFrom(scene, domain.StageImageSelected)
	})
}

func (s *Scenes) SetSelectedImage(ctx context.Context, sceneID string, index int) error {
	return s.mutate(sceneID, func(scene *domain.Scene) {
		idx := index
		scene.SelectedImageIndex = &idx
		s.clearFrom(scene, domain.StageVideoPrompt)
	})
}

func (s *Scenes) SetVideoPrompts(ctx context.Context, sceneID, videoPrompt, negativePrompt string) error {
	return s.mutate(sceneID, func(scene *domain.Scene) {
		scene.VideoPrompt = videoPrompt
		scene.NegativePrompt = negativePrompt
		s.clearFrom(scene, domain.StageVideo)
	})
}

func (s *Scenes) DeleteScene(ctx context.Context, sceneID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scenes[sceneID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.scenes, sceneID)
	delete(s.jobs, sceneID)
	return nil
}

func (s *Scenes) CreateVideoJob(ctx context.Context, sceneID, requestID string, submittedAt time.Time) (*domain.VideoJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scene, ok := s.scenes[sceneID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	scene.VideoEpoch++
	job := &domain.VideoJob{
		SceneID:     sceneID,
		Epoch:       scene.VideoEpoch,
		RequestID:   requestID,
		Status:      domain.VideoJobPending,
		SubmittedAt: submittedAt,
		UpdatedAt:   time.Now(),
	}
	s.jobs[sceneID] = job
	copied := *job
	return &copied, nil
}

func (s *Scenes) GetVideoJobByRequest(ctx context.Context, requestID string) (*domain.VideoJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.RequestID == requestID {
			copied := *job
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Scenes) CompleteVideoJob(ctx context.Context, sceneID string, epoch int, videoURL, thumbnailURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[sceneID]
	if !ok || job.Epoch != epoch || job.Status != domain.VideoJobPending {
		return false, nil
	}
	job.Status = domain.VideoJobCompleted
	job.VideoURL = videoURL
	job.ThumbnailURL = thumbnailURL
	job.UpdatedAt = time.Now()
	return true, nil
}

func (s *Scenes) FailVideoJob(ctx context.Context, sceneID string, epoch int, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[sceneID]
	if !ok || job.Epoch != epoch || job.Status != domain.VideoJobPending {
		return false, nil
	}
	job.Status = domain.VideoJobFailed
	job.Reason = reason
	job.UpdatedAt = time.Now()
	return true, nil
}

func (s *Scenes) PendingVideoJobs(ctx context.Context) ([]*domain.VideoJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.VideoJob
	for _, job := range s.jobs {
		if job.Status == domain.VideoJobPending {
			copied := *job
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

// clearFrom wipes the artifact for stage and everything after it, and bumps
// the epoch so an in-flight poll for a replaced job lands as a no-op.
func (s *Scenes) clearFrom(scene *domain.Scene, stage domain.Stage) {
	switch stage {
	case domain.StageImagePrompt:
		scene.ImagePrompt = ""
		fallthrough
	case domain.StageImages:
		scene.Images = nil
		fallthrough
	case domain.StageImageSelected:
		scene.SelectedImageIndex = nil
		fallthrough
	case domain.StageVideoPrompt:
		scene.VideoPrompt = ""
		scene.NegativePrompt = ""
		fallthrough
	case domain.StageVideo:
		scene.VideoEpoch++
		delete(s.jobs, scene.ID)
	}
	scene.UpdatedAt = time.Now()
}

func (s *Scenes) mutate(sceneID string, fn func(*domain.Scene)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scene, ok := s.scenes[sceneID]
	if !ok {
		return domain.ErrNotFound
	}
	fn(scene)
	return nil
}

func (s *Scenes) snapshot(sceneID string) (*domain.Scene, error) {
	scene, ok := s.scenes[sceneID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *scene
	copied.Images = append([]string(nil), scene.Images...)
	if scene.SelectedImageIndex != nil {
		idx := *scene.SelectedImageIndex
		copied.SelectedImageIndex = &idx
	}
	if job, ok := s.jobs[sceneID]; ok {
		jobCopy := *job
		copied.VideoJob = &jobCopy
	}
	return &copied, nil
}

var _ domain.SceneStore = (*Scenes)(nil)
