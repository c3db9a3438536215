package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storyreel/internal/domain"
)

func TestLedgerDebitRejectsBelowFloor(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()
	if _, err := ledger.Credit(ctx, "u1", 10, "signup"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	_, err := ledger.Debit(ctx, "u1", 15, "images")
	var insufficient *domain.InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientCreditsError, got %v", err)
	}
	if insufficient.Required != 15 || insufficient.Current != 10 {
		t.Fatalf("unexpected error detail: %+v", insufficient)
	}
	balance, _ := ledger.Balance(ctx, "u1")
	if balance != 10 {
		t.Fatalf("rejected debit must not move the balance, got %d", balance)
	}
	txs, _ := ledger.Transactions(ctx, "u1", 0)
	if len(txs) != 1 {
		t.Fatalf("rejected debit must not append a transaction, got %d entries", len(txs))
	}
}

func TestLedgerConcurrentDebitsNeverOverspend(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()
	if _, err := ledger.Credit(ctx, "u1", 25, "signup"); err != nil {
		t.Fatalf("credit: %v", err)
	}

	// Two debits of 15 against 25: exactly one may pass.
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = ledger.Debit(ctx, "u1", 15, "images")
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range results {
		var insufficient *domain.InsufficientCreditsError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &insufficient):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Fatalf("want exactly one success and one rejection, got ok=%d rejected=%d", ok, rejected)
	}
	balance, _ := ledger.Balance(ctx, "u1")
	if balance != 10 {
		t.Fatalf("balance after one debit of 15 from 25 should be 10, got %d", balance)
	}
}

func TestLedgerConservation(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()
	ledger.Credit(ctx, "u1", 100, "signup")
	ledger.Debit(ctx, "u1", 10, "parse")
	ledger.Debit(ctx, "u1", 5, "prompt")
	ledger.Credit(ctx, "u1", 20, "topup")

	txs, err := ledger.Transactions(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	sum := 0
	for _, tx := range txs {
		sum += tx.Amount
	}
	balance, _ := ledger.Balance(ctx, "u1")
	if sum != balance {
		t.Fatalf("transaction sum %d != balance %d", sum, balance)
	}
	if balance != 105 {
		t.Fatalf("want balance 105, got %d", balance)
	}
}

func TestUsersUpsertReportsCreationOnce(t *testing.T) {
	ctx := context.Background()
	users := NewUsers()
	first, created, err := users.UpsertByEmail(ctx, "a@example.com", "en")
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}
	second, created, err := users.UpsertByEmail(ctx, "a@example.com", "id")
	if err != nil || created {
		t.Fatalf("second upsert: created=%v err=%v", created, err)
	}
	if first.ID != second.ID {
		t.Fatalf("upsert must be stable: %s != %s", first.ID, second.ID)
	}
}

func seedScene(t *testing.T, s *Scenes) *domain.Scene {
	t.Helper()
	scene := &domain.Scene{ID: "s1", SessionID: "sess", UserID: "u1", Order: 1, Text: "a cat at dawn"}
	if err := s.InsertScenes(context.Background(), []*domain.Scene{scene}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return scene
}

func TestScenesRegenerationClearsDownstream(t *testing.T) {
	ctx := context.Background()
	store := NewScenes()
	seedScene(t, store)

	store.SetImagePrompt(ctx, "s1", "a cat, cinematic")
	store.SetImages(ctx, "s1", []string{"u1.png", "u2.png", "u3.png"})
	store.SetSelectedImage(ctx, "s1", 1)
	store.SetVideoPrompts(ctx, "s1", "cat pans left", "blurry")

	// Regenerating the image prompt must clear everything after it.
	if err := store.SetImagePrompt(ctx, "s1", "a cat, watercolor"); err != nil {
		t.Fatalf("set prompt: %v", err)
	}
	scene, _ := store.GetScene(ctx, "s1")
	if len(scene.Images) != 0 || scene.SelectedImageIndex != nil || scene.VideoPrompt != "" || scene.NegativePrompt != "" {
		t.Fatalf("downstream artifacts survived regeneration: %+v", scene)
	}
	if scene.ImagePrompt != "a cat, watercolor" {
		t.Fatalf("new prompt not stored: %q", scene.ImagePrompt)
	}
}

func TestScenesEpochGuardsStaleJobResults(t *testing.T) {
	ctx := context.Background()
	store := NewScenes()
	seedScene(t, store)

	job, err := store.CreateVideoJob(ctx, "s1", "req-1", time.Now())
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	staleEpoch := job.Epoch

	// A text edit invalidates the pending job and bumps the epoch.
	if err := store.UpdateText(ctx, "s1", "a different cat"); err != nil {
		t.Fatalf("update text: %v", err)
	}
	applied, err := store.CompleteVideoJob(ctx, "s1", staleEpoch, "v.mp4", "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if applied {
		t.Fatal("stale completion must not apply")
	}

	// A fresh submission completes normally.
	job2, err := store.CreateVideoJob(ctx, "s1", "req-2", time.Now())
	if err != nil {
		t.Fatalf("create job 2: %v", err)
	}
	if job2.Epoch <= staleEpoch {
		t.Fatalf("epoch must advance: %d -> %d", staleEpoch, job2.Epoch)
	}
	applied, err = store.CompleteVideoJob(ctx, "s1", job2.Epoch, "v2.mp4", "t2.jpg")
	if err != nil || !applied {
		t.Fatalf("fresh completion should apply: applied=%v err=%v", applied, err)
	}
	scene, _ := store.GetScene(ctx, "s1")
	if scene.VideoJob == nil || scene.VideoJob.Status != domain.VideoJobCompleted || scene.VideoJob.VideoURL != "v2.mp4" {
		t.Fatalf("unexpected job state: %+v", scene.VideoJob)
	}
}

func TestScenesTerminalJobCannotFlip(t *testing.T) {
	ctx := context.Background()
	store := NewScenes()
	seedScene(t, store)

	job, _ := store.CreateVideoJob(ctx, "s1", "req-1", time.Now())
	if applied, _ := store.CompleteVideoJob(ctx, "s1", job.Epoch, "v.mp4", ""); !applied {
		t.Fatal("completion should apply")
	}
	if applied, _ := store.FailVideoJob(ctx, "s1", job.Epoch, "late failure"); applied {
		t.Fatal("terminal job must not flip to failed")
	}
	scene, _ := store.GetScene(ctx, "s1")
	if scene.VideoJob.Status != domain.VideoJobCompleted {
		t.Fatalf("status changed after terminal: %s", scene.VideoJob.Status)
	}
}

func TestScenesPendingVideoJobs(t *testing.T) {
	ctx := context.Background()
	store := NewScenes()
	scenes := []*domain.Scene{
		{ID: "s1", SessionID: "sess", UserID: "u1", Order: 1, Text: "one"},
		{ID: "s2", SessionID: "sess", UserID: "u1", Order: 2, Text: "two"},
	}
	if err := store.InsertScenes(ctx, scenes); err != nil {
		t.Fatalf("insert: %v", err)
	}
	store.CreateVideoJob(ctx, "s1", "req-1", time.Now().Add(-time.Minute))
	job2, _ := store.CreateVideoJob(ctx, "s2", "req-2", time.Now())
	store.CompleteVideoJob(ctx, "s2", job2.Epoch, "v.mp4", "")

	pending, err := store.PendingVideoJobs(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].SceneID != "s1" {
		t.Fatalf("want only s1 pending, got %+v", pending)
	}
}
