// Package sqlite persists learned provider capabilities in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/ports"
)

// Store is a SQLite implementation of ports.CapabilityStore.
type Store struct {
	db *sql.DB
}

// Ensure Store implements CapabilityStore at compile time.
var _ ports.CapabilityStore = (*Store)(nil)

// New opens (or creates) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS capabilities (
			provider TEXT NOT NULL,
			submodel TEXT NOT NULL,
			supports_temperature INTEGER NOT NULL DEFAULT 0,
			supports_reasoning INTEGER NOT NULL DEFAULT 0,
			safe_max_tokens INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (provider, submodel)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_capabilities_updated ON capabilities(updated_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// LoadCapabilities returns every persisted record.
func (s *Store) LoadCapabilities(ctx context.Context) ([]domain.CapabilityRecord, error) {
	query := `SELECT provider, submodel, supports_temperature, supports_reasoning, safe_max_tokens, updated_at
		FROM capabilities ORDER BY provider, submodel`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query capabilities: %w", err)
	}
	defer rows.Close()

	var records []domain.CapabilityRecord
	for rows.Next() {
		var (
			rec         domain.CapabilityRecord
			temperature int
			reasoning   int
		)
		if err := rows.Scan(&rec.Provider, &rec.Submodel, &temperature, &reasoning, &rec.SafeMaxTokens, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan capability: %w", err)
		}
		rec.SupportsTemperature = triState(temperature)
		rec.SupportsReasoning = triState(reasoning)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// SaveCapability upserts rec keyed by (provider, submodel).
func (s *Store) SaveCapability(ctx context.Context, rec domain.CapabilityRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	query := `INSERT INTO capabilities (provider, submodel, supports_temperature, supports_reasoning, safe_max_tokens, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, submodel) DO UPDATE SET
			supports_temperature = excluded.supports_temperature,
			supports_reasoning = excluded.supports_reasoning,
			safe_max_tokens = excluded.safe_max_tokens,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		rec.Provider, rec.Submodel,
		int(rec.SupportsTemperature), int(rec.SupportsReasoning),
		rec.SafeMaxTokens, rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save capability: %w", err)
	}
	return nil
}

// ResetCapabilities deletes all records.
func (s *Store) ResetCapabilities(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM capabilities`); err != nil {
		return fmt.Errorf("failed to reset capabilities: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func triState(v int) domain.TriState {
	switch domain.TriState(v) {
	case domain.True, domain.False:
		return domain.TriState(v)
	}
	return domain.Unknown
}
