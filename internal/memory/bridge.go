package memory

import (
	"context"

	"golang.org/x/sync/errgroup"

	"lingoloop/internal/agent"
	"lingoloop/internal/logging"
)

// Bridge sits between the dispatch core and the memory store. Lookups run
// before a model call; stores run after a unit is marked done. Store
// failures are swallowed: memory is an accelerator, not a dependency.
type Bridge struct {
	store Store
}

// NewBridge wraps a store. A nil store yields a bridge whose lookups
// always miss and whose stores are no-ops.
func NewBridge(store Store) *Bridge {
	return &Bridge{store: store}
}

// Lookup checks memory for a unit's translation. On a hit the block's
// recency is touched and the cached text returned.
func (b *Bridge) Lookup(ctx context.Context, j *agent.Job, block *agent.Block) (string, bool) {
	if b.store == nil {
		return "", false
	}

	key := Key(j.TargetLanguage, block.OriginalHash)
	rec, err := b.store.GetBlock(ctx, key)
	if err != nil {
		logging.For(logging.CategoryMemory).Warnw("memory lookup failed",
			"key", key, "err", err)
		return "", false
	}
	if rec == nil {
		if j.MemoryContext != nil {
			j.MemoryContext.Misses++
		}
		return "", false
	}

	if err := b.store.TouchBlock(ctx, key); err != nil {
		logging.For(logging.CategoryMemory).Debugw("memory touch failed", "key", key, "err", err)
	}
	if j.MemoryContext != nil {
		j.MemoryContext.Hits++
	}
	return rec.TranslatedText, true
}

// StoreDone upserts a finished block's translation and refreshes the
// owning page's per-category statistics. Both writes run concurrently;
// either failing is logged and ignored.
func (b *Bridge) StoreDone(ctx context.Context, j *agent.Job, block *agent.Block) {
	if b.store == nil || block.TranslatedText == "" {
		return
	}

	rec := &BlockRecord{
		Key:            Key(j.TargetLanguage, block.OriginalHash),
		TargetLanguage: j.TargetLanguage,
		OriginalHash:   block.OriginalHash,
		TranslatedText: block.TranslatedText,
		Category:       block.Category,
		QualityTag:     string(block.Quality.Tag),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.store.UpsertBlock(gctx, rec)
	})
	if j.PageURL != "" {
		g.Go(func() error {
			return b.updatePageStats(gctx, j)
		})
	}
	if err := g.Wait(); err != nil {
		logging.For(logging.CategoryMemory).Warnw("memory store failed",
			"key", rec.Key, "err", err)
		return
	}
	if j.MemoryContext != nil {
		j.MemoryContext.Stores++
	}
}

// updatePageStats recomputes the page rollup from the job's current
// block states.
func (b *Bridge) updatePageStats(ctx context.Context, j *agent.Job) error {
	page, err := b.store.GetPage(ctx, j.PageURL)
	if err != nil {
		return err
	}
	if page == nil {
		page = &PageRecord{PageURL: j.PageURL}
	}
	page.CategoryStats = make(map[string]CategoryStats)

	for _, blk := range j.BlocksByID {
		if blk.TranslatedText == "" {
			continue
		}
		cat := blk.Category
		if cat == "" {
			cat = "uncategorized"
		}
		stats := page.CategoryStats[cat]
		stats.Units++
		if blk.Quality.Tag == agent.QualityProofread {
			stats.ProofreadUnits++
		}
		page.CategoryStats[cat] = stats
	}
	return b.store.UpsertPage(ctx, page)
}
