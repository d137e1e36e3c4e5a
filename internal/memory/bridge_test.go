package memory

import (
	"context"
	"path/filepath"
	"testing"

	"lingoloop/internal/agent"
	"lingoloop/internal/autotune"
	"lingoloop/internal/guard"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tm.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newBridgeJob() *agent.Job {
	blocks := []*agent.Block{
		{BlockID: "b1", OriginalText: "hello"},
		{BlockID: "b2", OriginalText: "world"},
	}
	j := agent.NewJob("j1", "es", blocks, autotune.NewRunSettings(autotune.Settings{}, nil))
	j.PageURL = "https://example.com/doc"
	return j
}

func TestBridge_MissIsNotAnError(t *testing.T) {
	b := NewBridge(newTestStore(t))
	j := newBridgeJob()

	text, hit := b.Lookup(context.Background(), j, j.Block("b1"))
	if hit || text != "" {
		t.Errorf("expected miss, got hit=%v text=%q", hit, text)
	}
	if j.MemoryContext.Misses != 1 {
		t.Errorf("miss counter %d, want 1", j.MemoryContext.Misses)
	}
}

func TestBridge_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	b := NewBridge(store)
	j := newBridgeJob()
	ctx := context.Background()

	blk := j.Block("b1")
	blk.TranslatedText = "hola"
	blk.Category = "body"
	blk.Quality.Tag = agent.QualityRaw
	b.StoreDone(ctx, j, blk)

	if j.MemoryContext.Stores != 1 {
		t.Fatalf("store counter %d, want 1", j.MemoryContext.Stores)
	}

	// A second job over the same source text hits the cache.
	j2 := newBridgeJob()
	text, hit := b.Lookup(ctx, j2, j2.Block("b1"))
	if !hit || text != "hola" {
		t.Fatalf("expected cached hit \"hola\", got hit=%v text=%q", hit, text)
	}
	if j2.MemoryContext.Hits != 1 {
		t.Errorf("hit counter %d, want 1", j2.MemoryContext.Hits)
	}
}

func TestBridge_KeyIsLanguageScoped(t *testing.T) {
	store := newTestStore(t)
	b := NewBridge(store)
	ctx := context.Background()

	j := newBridgeJob()
	blk := j.Block("b1")
	blk.TranslatedText = "hola"
	b.StoreDone(ctx, j, blk)

	jFR := newBridgeJob()
	jFR.TargetLanguage = "fr"
	if _, hit := b.Lookup(ctx, jFR, jFR.Block("b1")); hit {
		t.Error("a Spanish translation must not satisfy a French lookup")
	}
}

func TestBridge_PageStats(t *testing.T) {
	store := newTestStore(t)
	b := NewBridge(store)
	ctx := context.Background()

	j := newBridgeJob()
	b1 := j.Block("b1")
	b1.TranslatedText = "hola"
	b1.Category = "heading"
	b1.Quality.Tag = agent.QualityProofread
	b.StoreDone(ctx, j, b1)

	b2 := j.Block("b2")
	b2.TranslatedText = "mundo"
	b2.Category = "body"
	b2.Quality.Tag = agent.QualityRaw
	b.StoreDone(ctx, j, b2)

	page, err := store.GetPage(ctx, j.PageURL)
	if err != nil || page == nil {
		t.Fatalf("page record missing: %v", err)
	}
	if page.CategoryStats["heading"].Units != 1 || page.CategoryStats["heading"].ProofreadUnits != 1 {
		t.Errorf("heading stats %+v", page.CategoryStats["heading"])
	}
	if page.CategoryStats["body"].Units != 1 || page.CategoryStats["body"].ProofreadUnits != 0 {
		t.Errorf("body stats %+v", page.CategoryStats["body"])
	}
	if got := page.ProofreadCoverage(); got != 0.5 {
		t.Errorf("coverage %v, want 0.5", got)
	}
}

func TestBridge_NilStoreIsInert(t *testing.T) {
	b := NewBridge(nil)
	j := newBridgeJob()

	if _, hit := b.Lookup(context.Background(), j, j.Block("b1")); hit {
		t.Error("nil store must always miss")
	}
	blk := j.Block("b1")
	blk.TranslatedText = "hola"
	b.StoreDone(context.Background(), j, blk) // must not panic
}

func TestSQLiteStore_TouchUpdatesRecency(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key := Key("es", guard.HashText("hello"))
	rec := &BlockRecord{
		Key:            key,
		TargetLanguage: "es",
		OriginalHash:   guard.HashText("hello"),
		TranslatedText: "hola",
	}
	if err := store.UpsertBlock(ctx, rec); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	before, _ := store.GetBlock(ctx, key)
	if err := store.TouchBlock(ctx, key); err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	after, _ := store.GetBlock(ctx, key)
	if after.TouchedAt.Before(before.TouchedAt) {
		t.Error("touch must not move recency backwards")
	}
}
