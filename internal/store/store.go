// Package store persists dialog comparison runs in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"dialogtool/internal/batch"
	"dialogtool/internal/interpreter"
)

//go:embed schema.sql
var schemaSQL string

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("comparison run not found")

// Store represents the database connection and operations.
type Store struct {
	db *sql.DB
}

// ComparisonRun is one comparison of two dialog versions on a question set.
type ComparisonRun struct {
	RunID         string    `json:"run_id"`
	NewDialog     string    `json:"new_dialog"`
	OldDialog     string    `json:"old_dialog"`
	QuestionCount int       `json:"question_count"`
	ImpactCount   int       `json:"impact_count"`
	CreatedAt     time.Time `json:"created_at"`

	Impacts []ImpactRecord `json:"impacts,omitempty"`
}

// ImpactRecord is the stored form of a batch.Impact.
type ImpactRecord struct {
	QuestionID   string           `json:"question_id"`
	QuestionText string           `json:"question_text"`
	Intent       string           `json:"intent"`
	NewResult    string           `json:"new_result"`
	OldResult    string           `json:"old_result"`
	NewPath      JSONBStringArray `json:"new_path"`
	OldPath      JSONBStringArray `json:"old_path"`
	NewValues    JSONBValues      `json:"new_values"`
}

// NewImpactRecords flattens execution results to their printable form.
func NewImpactRecords(impacts []batch.Impact) []ImpactRecord {
	records := make([]ImpactRecord, len(impacts))
	for i, im := range impacts {
		records[i] = ImpactRecord{
			QuestionID:   im.Question.ID,
			QuestionText: im.Question.Text,
			Intent:       im.Question.Intent,
			NewResult:    finalString(im.New),
			OldResult:    finalString(im.Old),
			NewPath:      pathStrings(im.New),
			OldPath:      pathStrings(im.Old),
			NewValues:    JSONBValues(im.New.Values),
		}
	}
	return records
}

func finalString(r *interpreter.ExecutionResult) string {
	if f := r.Final(); f != nil {
		return f.String()
	}
	return ""
}

func pathStrings(r *interpreter.ExecutionResult) JSONBStringArray {
	path := make(JSONBStringArray, len(r.Path))
	for i, e := range r.Path {
		path[i] = e.String()
	}
	return path
}

// NewStore creates a new Store instance and opens a database connection.
func NewStore(connString string) (*Store, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if pingErr := db.Ping(); pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return &Store{db: db}, nil
}

// NewStoreFromDB constructs a Store from an existing *sql.DB. Useful for tests.
func NewStoreFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// InitDB creates the comparison tables.
func (s *Store) InitDB(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute init SQL: %w", err)
	}
	return nil
}

// SaveComparisonRun stores the run and its impacts in one transaction and
// returns the new run id.
func (s *Store) SaveComparisonRun(ctx context.Context, run *ComparisonRun) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	runID := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO "dialogtool".comparison_runs (run_id, new_dialog, old_dialog, question_count, impact_count)
		 VALUES ($1, $2, $3, $4, $5)`,
		runID, run.NewDialog, run.OldDialog, run.QuestionCount, len(run.Impacts))
	if err != nil {
		return "", fmt.Errorf("failed to insert comparison run: %w", err)
	}

	for i, im := range run.Impacts {
		_, execErr := tx.ExecContext(ctx,
			`INSERT INTO "dialogtool".comparison_impacts
			 (run_id, position, question_id, question_text, intent, new_result, old_result, new_path, old_path, new_values)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			runID, i, im.QuestionID, im.QuestionText, im.Intent, im.NewResult, im.OldResult,
			im.NewPath, im.OldPath, im.NewValues)
		if execErr != nil {
			return "", fmt.Errorf("failed to insert impact of question %s: %w", im.QuestionID, execErr)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit comparison run: %w", err)
	}
	run.RunID = runID
	run.ImpactCount = len(run.Impacts)
	return runID, nil
}

// GetComparisonRun loads a run with its impacts.
func (s *Store) GetComparisonRun(ctx context.Context, runID string) (*ComparisonRun, error) {
	var run ComparisonRun
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id::text, new_dialog, old_dialog, question_count, impact_count, created_at
		 FROM "dialogtool".comparison_runs
		 WHERE run_id = $1`,
		runID).Scan(&run.RunID, &run.NewDialog, &run.OldDialog, &run.QuestionCount, &run.ImpactCount, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comparison run: %w", err)
	}

	impacts, err := s.ListImpacts(ctx, runID)
	if err != nil {
		return nil, err
	}
	run.Impacts = impacts
	return &run, nil
}

// ListImpacts returns the impacts of a run in question order.
func (s *Store) ListImpacts(ctx context.Context, runID string) ([]ImpactRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id, question_text, intent, new_result, old_result, new_path, old_path, new_values
		 FROM "dialogtool".comparison_impacts
		 WHERE run_id = $1
		 ORDER BY position ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query impacts: %w", err)
	}
	defer rows.Close()

	var impacts []ImpactRecord
	for rows.Next() {
		var im ImpactRecord
		if scanErr := rows.Scan(&im.QuestionID, &im.QuestionText, &im.Intent, &im.NewResult, &im.OldResult,
			&im.NewPath, &im.OldPath, &im.NewValues); scanErr != nil {
			return nil, fmt.Errorf("failed to scan impact row: %w", scanErr)
		}
		impacts = append(impacts, im)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("error iterating impacts: %w", rowsErr)
	}

	return impacts, nil
}

// ListComparisonRuns returns the most recent runs without their impacts.
func (s *Store) ListComparisonRuns(ctx context.Context, limit int) ([]ComparisonRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id::text, new_dialog, old_dialog, question_count, impact_count, created_at
		 FROM "dialogtool".comparison_runs
		 ORDER BY created_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query comparison runs: %w", err)
	}
	defer rows.Close()

	var runs []ComparisonRun
	for rows.Next() {
		var r ComparisonRun
		if scanErr := rows.Scan(&r.RunID, &r.NewDialog, &r.OldDialog, &r.QuestionCount, &r.ImpactCount, &r.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan comparison run row: %w", scanErr)
		}
		runs = append(runs, r)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("error iterating comparison runs: %w", rowsErr)
	}

	return runs, nil
}
