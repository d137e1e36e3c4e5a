// Package memory is the translation-memory layer: a pure cache of per-unit
// translations keyed by target language and content hash. A miss is never
// an error and writes are best-effort; every translation is re-derivable
// from the model.
package memory

import (
	"context"
	"fmt"
	"time"
)

// BlockRecord is one cached translation.
type BlockRecord struct {
	Key            string    `json:"key"`
	TargetLanguage string    `json:"targetLanguage"`
	OriginalHash   string    `json:"originalHash"`
	TranslatedText string    `json:"translatedText"`
	Category       string    `json:"category,omitempty"`
	QualityTag     string    `json:"qualityTag,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	TouchedAt      time.Time `json:"touchedAt"`
}

// CategoryStats is the per-category rollup on a page record.
type CategoryStats struct {
	Units          int `json:"units"`
	ProofreadUnits int `json:"proofreadUnits"`
}

// PageRecord aggregates what memory knows about one page.
type PageRecord struct {
	PageURL       string                   `json:"pageUrl"`
	CategoryStats map[string]CategoryStats `json:"categoryStats"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

// ProofreadCoverage is the ratio of proofread units across all categories.
func (p *PageRecord) ProofreadCoverage() float64 {
	var units, proofed int
	for _, s := range p.CategoryStats {
		units += s.Units
		proofed += s.ProofreadUnits
	}
	if units == 0 {
		return 0
	}
	return float64(proofed) / float64(units)
}

// Store is the translation-memory backend contract.
// GetBlock and GetPage return (nil, nil) on a miss.
type Store interface {
	GetBlock(ctx context.Context, key string) (*BlockRecord, error)
	UpsertBlock(ctx context.Context, rec *BlockRecord) error
	TouchBlock(ctx context.Context, key string) error
	GetPage(ctx context.Context, pageURL string) (*PageRecord, error)
	UpsertPage(ctx context.Context, rec *PageRecord) error
	Close() error
}

// Key derives the cache key for a unit.
func Key(targetLanguage, originalHash string) string {
	return fmt.Sprintf("%s:%s", targetLanguage, originalHash)
}
