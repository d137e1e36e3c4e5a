package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the shipped Store backend.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (creating if needed) the memory database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tm_blocks (
		key TEXT PRIMARY KEY,
		target_language TEXT NOT NULL,
		original_hash TEXT NOT NULL,
		translated_text TEXT NOT NULL,
		category TEXT,
		quality_tag TEXT,
		created_at DATETIME NOT NULL,
		touched_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tm_blocks_lang ON tm_blocks(target_language);
	CREATE INDEX IF NOT EXISTS idx_tm_blocks_touched ON tm_blocks(touched_at);

	CREATE TABLE IF NOT EXISTS tm_pages (
		page_url TEXT PRIMARY KEY,
		category_stats TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// GetBlock returns the cached translation for key, or (nil, nil) on a miss.
func (s *SQLiteStore) GetBlock(ctx context.Context, key string) (*BlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT key, target_language, original_hash, translated_text,
		        COALESCE(category, ''), COALESCE(quality_tag, ''), created_at, touched_at
		 FROM tm_blocks WHERE key = ?`, key)

	rec := &BlockRecord{}
	err := row.Scan(&rec.Key, &rec.TargetLanguage, &rec.OriginalHash, &rec.TranslatedText,
		&rec.Category, &rec.QualityTag, &rec.CreatedAt, &rec.TouchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read block: %w", err)
	}
	return rec, nil
}

// UpsertBlock inserts or replaces a cached translation.
func (s *SQLiteStore) UpsertBlock(ctx context.Context, rec *BlockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.TouchedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tm_blocks (key, target_language, original_hash, translated_text,
		                        category, quality_tag, created_at, touched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   translated_text = excluded.translated_text,
		   category = excluded.category,
		   quality_tag = excluded.quality_tag,
		   touched_at = excluded.touched_at`,
		rec.Key, rec.TargetLanguage, rec.OriginalHash, rec.TranslatedText,
		rec.Category, rec.QualityTag, rec.CreatedAt, rec.TouchedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert block: %w", err)
	}
	return nil
}

// TouchBlock refreshes the recency timestamp of a cached translation.
func (s *SQLiteStore) TouchBlock(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE tm_blocks SET touched_at = ? WHERE key = ?`, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("failed to touch block: %w", err)
	}
	return nil
}

// GetPage returns the page rollup, or (nil, nil) when unknown.
func (s *SQLiteStore) GetPage(ctx context.Context, pageURL string) (*PageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT page_url, category_stats, updated_at FROM tm_pages WHERE page_url = ?`, pageURL)

	rec := &PageRecord{}
	var statsJSON string
	err := row.Scan(&rec.PageURL, &statsJSON, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	if err := json.Unmarshal([]byte(statsJSON), &rec.CategoryStats); err != nil {
		return nil, fmt.Errorf("failed to decode page stats: %w", err)
	}
	return rec, nil
}

// UpsertPage inserts or replaces a page rollup.
func (s *SQLiteStore) UpsertPage(ctx context.Context, rec *PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	statsJSON, err := json.Marshal(rec.CategoryStats)
	if err != nil {
		return fmt.Errorf("failed to encode page stats: %w", err)
	}
	rec.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tm_pages (page_url, category_stats, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(page_url) DO UPDATE SET
		   category_stats = excluded.category_stats,
		   updated_at = excluded.updated_at`,
		rec.PageURL, string(statsJSON), rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert page: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
