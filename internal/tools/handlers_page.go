package tools

import (
	"context"
	"encoding/json"
	"sort"
)

func handlePageGetStats(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	j := rt.Job

	byCategory := make(map[string]int)
	translated := 0
	for _, b := range j.BlocksByID {
		cat := b.Category
		if cat == "" {
			cat = "uncategorized"
		}
		byCategory[cat]++
		if b.TranslatedText != "" {
			translated++
		}
	}

	return map[string]any{
		"status":           j.Status,
		"stage":            rt.Stage,
		"totalBlocks":      j.TotalBlocks,
		"completedBlocks":  j.CompletedBlocks,
		"pendingBlocks":    len(j.PendingBlockIDs),
		"failedBlocks":     len(j.FailedBlockIDs),
		"translated":       translated,
		"blocksByCategory": byCategory,
		"memory":           j.MemoryContext,
	}, nil
}

type getBlocksArgs struct {
	Limit       int    `json:"limit"`
	Offset      int    `json:"offset"`
	Order       string `json:"order"` // "document" (default) or "by_length_desc"
	Category    string `json:"category"`
	PendingOnly bool   `json:"pendingOnly"`
}

type blockView struct {
	BlockID      string `json:"blockId"`
	OriginalText string `json:"originalText"`
	Category     string `json:"category,omitempty"`
	Translated   bool   `json:"translated"`
	Length       int    `json:"length"`
}

func handlePageGetBlocks(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a getBlocksArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Limit < 0 || a.Offset < 0 {
		return nil, Errf(CodeBadToolArgs, "limit and offset must be non-negative")
	}
	switch a.Order {
	case "", "document", "by_length_desc":
	default:
		return nil, Errf(CodeBadToolArgs, "unknown order %q", a.Order)
	}

	j := rt.Job
	pending := make(map[string]bool, len(j.PendingBlockIDs))
	for _, id := range j.PendingBlockIDs {
		pending[id] = true
	}

	ids := make([]string, 0, len(j.BlocksByID))
	for id := range j.BlocksByID {
		ids = append(ids, id)
	}
	sort.Strings(ids) // document order: block ids are assigned in order

	items := make([]blockView, 0, len(ids))
	for _, id := range ids {
		b := j.BlocksByID[id]
		if a.Category != "" && b.Category != a.Category {
			continue
		}
		if a.PendingOnly && !pending[id] {
			continue
		}
		items = append(items, blockView{
			BlockID:      b.BlockID,
			OriginalText: b.OriginalText,
			Category:     b.Category,
			Translated:   b.TranslatedText != "",
			Length:       len(b.OriginalText),
		})
	}

	if a.Order == "by_length_desc" {
		sort.SliceStable(items, func(i, k int) bool {
			return items[i].Length > items[k].Length
		})
	}

	total := len(items)
	if a.Offset > len(items) {
		items = nil
	} else {
		items = items[a.Offset:]
	}
	if a.Limit > 0 && a.Limit < len(items) {
		items = items[:a.Limit]
	}

	return map[string]any{"items": items, "total": total}, nil
}

func handlePageGetPreanalysis(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	if rt.Deps.Classifier == nil {
		return nil, Errf(CodeClassifierDown, "no classifier is attached to this surface")
	}
	summary, err := rt.Deps.Classifier.GetCategorySummaryForJob(ctx, rt.Job)
	if err != nil {
		return nil, Errf(CodeClassifierDown, "classifier failed: %v", err)
	}
	return map[string]any{"categorySummary": summary}, nil
}

type getRangesArgs struct {
	RangeID string `json:"rangeId"`
}

func handlePageGetRanges(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a getRangesArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	ranges := rt.Job.Agent.Taxonomy.CategoryByRange
	if a.RangeID != "" {
		cat, ok := ranges[a.RangeID]
		if !ok {
			return nil, Errf(CodeRangeNotFound, "no range %q", a.RangeID)
		}
		return map[string]any{"rangeId": a.RangeID, "category": cat}, nil
	}
	return map[string]any{"ranges": ranges}, nil
}
