package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"storyreel/internal/domain"
	"storyreel/internal/gateway"
	"storyreel/internal/memstore"
)

type stubGateway struct {
	mu         sync.Mutex
	calls      map[string]int
	promptGate chan struct{}
	imagesErr  error
	submitErr  error
}

func newStubGateway() *stubGateway {
	return &stubGateway{calls: make(map[string]int)}
}

func (g *stubGateway) count(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[name]++
	return g.calls[name]
}

func (g *stubGateway) callCount(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func (g *stubGateway) SegmentScenes(ctx context.Context, synopsis, locale string, sceneCount int) (*gateway.Segmentation, error) {
	g.count("segment")
	return &gateway.Segmentation{Scenes: []gateway.SceneDraft{
		{Order: 1, Text: "A cat wakes up."},
		{Order: 2, Text: "The cat leaves home."},
	}}, nil
}

func (g *stubGateway) SynthesizeImagePrompt(ctx context.Context, sceneText string) (*gateway.ImagePrompt, error) {
	g.count("prompt")
	if g.promptGate != nil {
		<-g.promptGate
	}
	return &gateway.ImagePrompt{Text: "cinematic: " + sceneText}, nil
}

func (g *stubGateway) SynthesizeImages(ctx context.Context, imagePrompt string) (*gateway.ImageSet, error) {
	g.count("images")
	if g.imagesErr != nil {
		return nil, g.imagesErr
	}
	return &gateway.ImageSet{URLs: []string{"a.png", "b.png", "c.png"}}, nil
}

func (g *stubGateway) DescribeImage(ctx context.Context, imageURL, sceneText string) (*gateway.ImageDescription, error) {
	g.count("describe")
	return &gateway.ImageDescription{VideoPrompt: "slow pan over " + imageURL, NegativePrompt: "blur"}, nil
}

func (g *stubGateway) SubmitVideoRender(ctx context.Context, req gateway.VideoRenderRequest) (string, error) {
	n := g.count("submit")
	if g.submitErr != nil {
		return "", g.submitErr
	}
	return fmt.Sprintf("req-%d", n), nil
}

func (g *stubGateway) PollVideoRender(ctx context.Context, requestID string) (*gateway.VideoStatus, error) {
	g.count("poll")
	return &gateway.VideoStatus{State: gateway.RenderPending}, nil
}

type recordingWatcher struct {
	mu      sync.Mutex
	watches []string
}

func (w *recordingWatcher) Watch(sceneID string, epoch int, requestID string, submittedAt time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watches = append(w.watches, fmt.Sprintf("%s/%d/%s", sceneID, epoch, requestID))
	return nil
}

type fixture struct {
	wf      *Workflow
	store   *memstore.Scenes
	ledger  *memstore.Ledger
	gw      *stubGateway
	watcher *recordingWatcher
}

func newFixture(t *testing.T, credits int) *fixture {
	t.Helper()
	f := &fixture{
		store:   memstore.NewScenes(),
		ledger:  memstore.NewLedger(),
		gw:      newStubGateway(),
		watcher: &recordingWatcher{},
	}
	costs := Costs{ParseScenes: 10, ImagePrompt: 5, Images: 15, DescribeImage: 5, Video: 25}
	f.wf = New(f.store, f.ledger, f.gw, f.watcher, costs, zerolog.Nop())
	if credits > 0 {
		if _, err := f.ledger.Credit(context.Background(), "u1", credits, "signup"); err != nil {
			t.Fatalf("seed credits: %v", err)
		}
	}
	return f
}

func (f *fixture) seedScene(t *testing.T, stage domain.Stage) string {
	t.Helper()
	ctx := context.Background()
	scene := &domain.Scene{ID: "s1", SessionID: "sess", UserID: "u1", Order: 1, Text: "A cat wakes up."}
	if err := f.store.InsertScenes(ctx, []*domain.Scene{scene}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if stage == domain.StageText {
		return scene.ID
	}
	f.store.SetImagePrompt(ctx, scene.ID, "cinematic cat")
	if stage == domain.StageImagePrompt {
		return scene.ID
	}
	f.store.SetImages(ctx, scene.ID, []string{"a.png", "b.png", "c.png"})
	if stage == domain.StageImages {
		return scene.ID
	}
	f.store.SetSelectedImage(ctx, scene.ID, 0)
	if stage == domain.StageImageSelected {
		return scene.ID
	}
	f.store.SetVideoPrompts(ctx, scene.ID, "slow pan", "blur")
	return scene.ID
}

func TestParseScenesChargesAndPersists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	scenes, err := f.wf.ParseScenes(ctx, "u1", "sess", "A cat story.", "en", 5)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("want 2 scenes, got %d", len(scenes))
	}
	balance, _ := f.ledger.Balance(ctx, "u1")
	if balance != 90 {
		t.Fatalf("want balance 90 after parse, got %d", balance)
	}
}

func TestParseScenesValidatesSceneCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	for _, count := range []int{0, 4, 21} {
		if _, err := f.wf.ParseScenes(ctx, "u1", "sess", "A cat story.", "en", count); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("scene count %d: want ErrValidation, got %v", count, err)
		}
	}
	if f.gw.callCount("segment") != 0 {
		t.Fatal("invalid scene count must not reach the vendor")
	}
	balance, _ := f.ledger.Balance(ctx, "u1")
	if balance != 100 {
		t.Fatalf("invalid scene count must not charge, balance %d", balance)
	}
}

func TestParseScenesRejectsSessionReuse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	f.seedScene(t, domain.StageText)

	if _, err := f.wf.ParseScenes(ctx, "u1", "sess", "Another story.", "en", 5); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("parsing into a populated session must fail, got %v", err)
	}
	if f.gw.callCount("segment") != 0 {
		t.Fatal("rejected reuse must not reach the vendor")
	}
	scenes, _ := f.store.SessionScenes(ctx, "sess")
	if len(scenes) != 1 {
		t.Fatalf("existing scenes must be untouched, got %d", len(scenes))
	}
}

func TestStageOrderIsEnforced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	sceneID := f.seedScene(t, domain.StageText)

	_, err := f.wf.GenerateImages(ctx, "u1", sceneID)
	var outOfOrder *domain.OutOfOrderTransitionError
	if !errors.As(err, &outOfOrder) {
		t.Fatalf("want OutOfOrderTransitionError, got %v", err)
	}
	if outOfOrder.Missing != domain.StageImagePrompt {
		t.Fatalf("want missing image_prompt, got %s", outOfOrder.Missing)
	}
	if f.gw.callCount("images") != 0 {
		t.Fatal("out-of-order request must not reach the vendor")
	}
	balance, _ := f.ledger.Balance(ctx, "u1")
	if balance != 100 {
		t.Fatalf("out-of-order request must not charge, balance %d", balance)
	}
}

func TestInsufficientCreditsBlocksBeforeVendorCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	sceneID := f.seedScene(t, domain.StageImagePrompt)

	_, err := f.wf.GenerateImages(ctx, "u1", sceneID)
	var insufficient *domain.InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("want InsufficientCreditsError, got %v", err)
	}
	if insufficient.Required != 15 || insufficient.Current != 5 {
		t.Fatalf("unexpected shortfall: %+v", insufficient)
	}
	if f.gw.callCount("images") != 0 {
		t.Fatal("credit check must precede the vendor call")
	}
}

func TestNoDebitWhenGatewayFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	sceneID := f.seedScene(t, domain.StageImagePrompt)
	f.gw.imagesErr = fmt.Errorf("%w: 503", domain.ErrUpstreamUnavailable)

	_, err := f.wf.GenerateImages(ctx, "u1", sceneID)
	var upstream *domain.UpstreamGenerationError
	if !errors.As(err, &upstream) {
		t.Fatalf("want UpstreamGenerationError, got %v", err)
	}
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("cause not preserved: %v", err)
	}
	balance, _ := f.ledger.Balance(ctx, "u1")
	if balance != 100 {
		t.Fatalf("failed generation must not charge, balance %d", balance)
	}
	scene, _ := f.store.GetScene(ctx, sceneID)
	if len(scene.Images) != 0 {
		t.Fatalf("failed generation must not persist artifacts: %v", scene.Images)
	}
}

func TestDuplicateInFlightRequestIsDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	sceneID := f.seedScene(t, domain.StageText)
	f.gw.promptGate = make(chan struct{})

	first := make(chan error, 1)
	go func() {
		_, err := f.wf.GenerateImagePrompt(ctx, "u1", sceneID)
		first <- err
	}()
	// Wait for the first request to reach the vendor and hold there.
	deadline := time.After(2 * time.Second)
	for f.gw.callCount("prompt") == 0 {
		select {
		case <-deadline:
			t.Fatal("first request never reached the vendor")
		case <-time.After(time.Millisecond):
		}
	}

	// The duplicate must return immediately without charging or calling out.
	scene, err := f.wf.GenerateImagePrompt(ctx, "u1", sceneID)
	if err != nil {
		t.Fatalf("duplicate must be a silent no-op, got %v", err)
	}
	if scene.ImagePrompt != "" {
		t.Fatalf("duplicate returned a mutated scene: %+v", scene)
	}
	close(f.gw.promptGate)
	if err := <-first; err != nil {
		t.Fatalf("first request: %v", err)
	}

	if got := f.gw.callCount("prompt"); got != 1 {
		t.Fatalf("want exactly one vendor call, got %d", got)
	}
	balance, _ := f.ledger.Balance(ctx, "u1")
	if balance != 95 {
		t.Fatalf("want exactly one debit of 5, balance %d", balance)
	}
}

func TestRegenerationClearsDownstreamAndAbandonsJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 200)
	sceneID := f.seedScene(t, domain.StageVideoPrompt)

	before, err := f.wf.GenerateVideo(ctx, "u1", sceneID)
	if err != nil {
		t.Fatalf("video: %v", err)
	}
	if before.VideoJob == nil || before.VideoJob.Status != domain.VideoJobPending {
		t.Fatalf("expected pending job, got %+v", before.VideoJob)
	}
	staleEpoch := before.VideoJob.Epoch

	// Regenerating the image prompt invalidates everything downstream.
	after, err := f.wf.GenerateImagePrompt(ctx, "u1", sceneID)
	if err != nil {
		t.Fatalf("regenerate prompt: %v", err)
	}
	if len(after.Images) != 0 || after.SelectedImageIndex != nil || after.VideoPrompt != "" || after.VideoJob != nil {
		t.Fatalf("downstream artifacts survived: %+v", after)
	}

	applied, err := f.store.CompleteVideoJob(ctx, sceneID, staleEpoch, "late.mp4", "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if applied {
		t.Fatal("stale render result must not apply after regeneration")
	}
}

func TestGenerateVideoSubmitsDebitsAndWatches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)
	sceneID := f.seedScene(t, domain.StageVideoPrompt)

	scene, err := f.wf.GenerateVideo(ctx, "u1", sceneID)
	if err != nil {
		t.Fatalf("video: %v", err)
	}
	if scene.VideoJob == nil || scene.VideoJob.RequestID != "req-1" {
		t.Fatalf("unexpected job: %+v", scene.VideoJob)
	}
	balance, _ := f.ledger.Balance(ctx, "u1")
	if balance != 5 {
		t.Fatalf("want balance 5 after video debit, got %d", balance)
	}
	f.watcher.mu.Lock()
	defer f.watcher.mu.Unlock()
	if len(f.watcher.watches) != 1 {
		t.Fatalf("poller not engaged: %v", f.watcher.watches)
	}
}

func TestSelectImageValidatesIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	sceneID := f.seedScene(t, domain.StageImages)

	if _, err := f.wf.SelectImage(ctx, "u1", sceneID, 3); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation for out-of-range index, got %v", err)
	}
	scene, err := f.wf.SelectImage(ctx, "u1", sceneID, 1)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got, ok := scene.SelectedImage(); !ok || got != "b.png" {
		t.Fatalf("unexpected selection: %q ok=%v", got, ok)
	}
}

func TestDeleteSceneKeepsTheLastOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	sceneID := f.seedScene(t, domain.StageText)

	if err := f.wf.DeleteScene(ctx, "u1", sceneID); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("deleting the last scene must fail, got %v", err)
	}
	if _, err := f.wf.AddScene(ctx, "u1", "sess", "Another scene."); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := f.wf.DeleteScene(ctx, "u1", sceneID); err != nil {
		t.Fatalf("delete with sibling present: %v", err)
	}
}

func TestOwnershipIsChecked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	sceneID := f.seedScene(t, domain.StageImagePrompt)

	if _, err := f.wf.GenerateImages(ctx, "intruder", sceneID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

// failingStore injects write failures after the vendor call has succeeded.
type failingStore struct {
	*memstore.Scenes
	setImagesErr error
	createJobErr error
}

func (s *failingStore) SetImages(ctx context.Context, sceneID string, urls []string) error {
	if s.setImagesErr != nil {
		return s.setImagesErr
	}
	return s.Scenes.SetImages(ctx, sceneID, urls)
}

func (s *failingStore) CreateVideoJob(ctx context.Context, sceneID, requestID string, submittedAt time.Time) (*domain.VideoJob, error) {
	if s.createJobErr != nil {
		return nil, s.createJobErr
	}
	return s.Scenes.CreateVideoJob(ctx, sceneID, requestID, submittedAt)
}

func TestPersistFailureRefundsDebit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	sceneID := f.seedScene(t, domain.StageImagePrompt)
	costs := Costs{ParseScenes: 10, ImagePrompt: 5, Images: 15, DescribeImage: 5, Video: 25}
	store := &failingStore{Scenes: f.store, setImagesErr: domain.ErrNotFound}
	wf := New(store, f.ledger, f.gw, f.watcher, costs, zerolog.Nop())

	// The scene vanished between the vendor call and the write, as when it
	// is deleted mid-flight.
	if _, err := wf.GenerateImages(ctx, "u1", sceneID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	balance, _ := f.ledger.Balance(ctx, "u1")
	if balance != 100 {
		t.Fatalf("failed write must refund the debit, balance %d", balance)
	}
	txs, _ := f.ledger.Transactions(ctx, "u1", 10)
	if len(txs) != 3 {
		t.Fatalf("want seed+debit+refund entries, got %d", len(txs))
	}
}

func TestVideoJobWriteFailureRefundsDebit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)
	sceneID := f.seedScene(t, domain.StageVideoPrompt)
	costs := Costs{ParseScenes: 10, ImagePrompt: 5, Images: 15, DescribeImage: 5, Video: 25}
	store := &failingStore{Scenes: f.store, createJobErr: domain.ErrNotFound}
	wf := New(store, f.ledger, f.gw, f.watcher, costs, zerolog.Nop())

	if _, err := wf.GenerateVideo(ctx, "u1", sceneID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	balance, _ := f.ledger.Balance(ctx, "u1")
	if balance != 30 {
		t.Fatalf("failed job write must refund the debit, balance %d", balance)
	}
	f.watcher.mu.Lock()
	defer f.watcher.mu.Unlock()
	if len(f.watcher.watches) != 0 {
		t.Fatalf("no poll loop for an unrecorded job: %v", f.watcher.watches)
	}
}

func TestVideoStatusByRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 200)
	sceneID := f.seedScene(t, domain.StageVideoPrompt)

	scene, err := f.wf.GenerateVideo(ctx, "u1", sceneID)
	if err != nil {
		t.Fatalf("video: %v", err)
	}
	job, err := f.wf.VideoStatusByRequest(ctx, "u1", scene.VideoJob.RequestID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if job.SceneID != sceneID || job.Status != domain.VideoJobPending {
		t.Fatalf("unexpected job: %+v", job)
	}
	if _, err := f.wf.VideoStatusByRequest(ctx, "intruder", scene.VideoJob.RequestID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	if _, err := f.wf.VideoStatusByRequest(ctx, "u1", "no-such-request"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestExportIncludesVideoOnlyWhenCompleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 200)
	sceneID := f.seedScene(t, domain.StageVideoPrompt)

	scene, err := f.wf.GenerateVideo(ctx, "u1", sceneID)
	if err != nil {
		t.Fatalf("video: %v", err)
	}
	exports, err := f.wf.ExportScenes(ctx, "u1", "sess")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(exports) != 1 || exports[0].VideoURL != "" {
		t.Fatalf("pending job must not export a video url: %+v", exports)
	}

	if _, err := f.store.CompleteVideoJob(ctx, sceneID, scene.VideoJob.Epoch, "v.mp4", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	exports, err = f.wf.ExportScenes(ctx, "u1", "sess")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exports[0].VideoURL != "v.mp4" || exports[0].SelectedImage != "a.png" {
		t.Fatalf("unexpected export: %+v", exports[0])
	}
}
