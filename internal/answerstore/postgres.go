package answerstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const schemaSQL = `CREATE SCHEMA IF NOT EXISTS "dialogtool";

CREATE TABLE IF NOT EXISTS "dialogtool".answer_units (
    answer_unit_id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    plain_text TEXT NOT NULL DEFAULT '',
    document JSONB NOT NULL,
    imported_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS "dialogtool".answer_mappings (
    mapping_uri TEXT NOT NULL,
    answer_unit_id TEXT NOT NULL REFERENCES "dialogtool".answer_units (answer_unit_id) ON DELETE CASCADE,
    intent TEXT NOT NULL DEFAULT '',
    position INTEGER NOT NULL,
    PRIMARY KEY (mapping_uri, answer_unit_id)
);

CREATE INDEX IF NOT EXISTS idx_answer_mappings_uri ON "dialogtool".answer_mappings (mapping_uri, position);`

// PostgresStore keeps answer units as JSONB documents indexed by mapping URI.
type PostgresStore struct {
	db *sqlx.DB
	tx *sqlx.Tx
}

// NewPostgresStore creates a PostgreSQL answer store
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *PostgresStore) BeginTx(ctx context.Context) (*PostgresStore, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &PostgresStore{db: s.db, tx: tx}, nil
}

func (s *PostgresStore) Commit() error {
	if s.tx == nil {
		return fmt.Errorf("no active transaction")
	}
	return s.tx.Commit()
}

func (s *PostgresStore) Rollback() error {
	if s.tx == nil {
		return fmt.Errorf("no active transaction")
	}
	return s.tx.Rollback()
}

func (s *PostgresStore) getContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if s.tx != nil {
		return s.tx.GetContext(ctx, dest, query, args...)
	}
	return s.db.GetContext(ctx, dest, query, args...)
}

func (s *PostgresStore) execContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if s.tx != nil {
		return s.tx.ExecContext(ctx, query, args...)
	}
	return s.db.ExecContext(ctx, query, args...)
}

// =============================================================================
// Schema
// =============================================================================

// InitSchema creates the answer tables when they do not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.execContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create answer store schema: %w", err)
	}
	return nil
}

// =============================================================================
// Answer Units
// =============================================================================

// AnswerUnit returns the first imported unit mapped to the URI.
func (s *PostgresStore) AnswerUnit(ctx context.Context, mappingURI string) (*AnswerUnit, error) {
	query := `SELECT u.document
		FROM "dialogtool".answer_mappings m
		JOIN "dialogtool".answer_units u ON u.answer_unit_id = m.answer_unit_id
		WHERE m.mapping_uri = $1
		ORDER BY m.position
		LIMIT 1`

	var document []byte
	if err := s.getContext(ctx, &document, query, mappingURI); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, mappingURI)
		}
		return nil, fmt.Errorf("failed to get answer unit for %s: %w", mappingURI, err)
	}

	var unit AnswerUnit
	if err := json.Unmarshal(document, &unit); err != nil {
		return nil, fmt.Errorf("failed to decode answer unit for %s: %w", mappingURI, err)
	}
	return &unit, nil
}

// Import replaces the stored units and their mappings in one transaction.
// The position of a unit in units decides which one wins when two share a URI.
func (s *PostgresStore) Import(ctx context.Context, units []*AnswerUnit) error {
	txStore, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = txStore.Rollback()
	}()

	for i, u := range units {
		if err := txStore.upsertUnit(ctx, i, u); err != nil {
			return err
		}
	}

	if err := txStore.Commit(); err != nil {
		return fmt.Errorf("failed to commit answer import: %w", err)
	}
	return nil
}

func (s *PostgresStore) upsertUnit(ctx context.Context, position int, u *AnswerUnit) error {
	document, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode answer unit %s: %w", u.AnswerUnitID, err)
	}

	_, err = s.execContext(ctx,
		`INSERT INTO "dialogtool".answer_units (answer_unit_id, title, plain_text, document)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (answer_unit_id) DO UPDATE SET title = EXCLUDED.title, plain_text = EXCLUDED.plain_text, document = EXCLUDED.document, imported_at = NOW()`,
		u.AnswerUnitID, u.Title(), u.Content.PlainText, document)
	if err != nil {
		return fmt.Errorf("failed to insert answer unit %s: %w", u.AnswerUnitID, err)
	}

	if _, err := s.execContext(ctx,
		`DELETE FROM "dialogtool".answer_mappings WHERE answer_unit_id = $1`, u.AnswerUnitID); err != nil {
		return fmt.Errorf("failed to clear mappings of %s: %w", u.AnswerUnitID, err)
	}

	seen := make(map[string]bool)
	for _, m := range u.MappingInfo {
		if m.MappingURI == "" || seen[m.MappingURI] {
			continue
		}
		seen[m.MappingURI] = true
		if _, err := s.execContext(ctx,
			`INSERT INTO "dialogtool".answer_mappings (mapping_uri, answer_unit_id, intent, position) VALUES ($1, $2, $3, $4)`,
			m.MappingURI, u.AnswerUnitID, m.Intent, position); err != nil {
			return fmt.Errorf("failed to insert mapping %s: %w", m.MappingURI, err)
		}
	}
	return nil
}
