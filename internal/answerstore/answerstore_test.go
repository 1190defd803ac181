package answerstore

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const livretURI = "/intent/Savings_Rate/product_entity/Livret_A"

func TestFileStore_FirstUnitWins(t *testing.T) {
	s, err := LoadFile("testdata/answers.json")
	require.NoError(t, err)
	require.Len(t, s.Units(), 2)

	u, err := s.AnswerUnit(context.Background(), livretURI)
	require.NoError(t, err)
	assert.Equal(t, "AU-001", u.AnswerUnitID)
	assert.Equal(t, "Taux du Livret A", u.Title())
	assert.Equal(t, "Livret_A", u.MappingInfo[0].MappingEntities[0].Value)

	u, err = s.AnswerUnit(context.Background(), "/intent/Savings_Rate/product_entity/LDD")
	require.NoError(t, err)
	assert.Equal(t, "AU-002", u.AnswerUnitID)
	assert.Equal(t, "Livret A ancienne version", u.Title())
}

func TestFileStore_NotFound(t *testing.T) {
	s := NewFileStore(nil)
	_, err := s.AnswerUnit(context.Background(), "/intent/Unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"answerUnitID": 1`))
	assert.Error(t, err)
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresStore_AnswerUnit(t *testing.T) {
	s, mock := newMockStore(t)

	document, err := json.Marshal(&AnswerUnit{
		AnswerUnitID: "AU-001",
		Content:      Content{PlainText: "Le taux du Livret A", Title: []string{"Taux"}},
		MappingInfo:  []MappingInfo{{MappingURI: livretURI, Intent: "Savings_Rate"}},
	})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT u.document`)).
		WithArgs(livretURI).
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow(document))

	u, err := s.AnswerUnit(context.Background(), livretURI)
	require.NoError(t, err)
	assert.Equal(t, "AU-001", u.AnswerUnitID)
	assert.True(t, u.MapsTo(livretURI))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AnswerUnitNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT u.document`)).
		WithArgs("/intent/Unknown").
		WillReturnRows(sqlmock.NewRows([]string{"document"}))

	_, err := s.AnswerUnit(context.Background(), "/intent/Unknown")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Import(t *testing.T) {
	s, mock := newMockStore(t)
	units := []*AnswerUnit{{
		AnswerUnitID: "AU-002",
		Content:      Content{PlainText: "Ancienne réponse", Title: []string{"Livret A", "ancienne version"}},
		MappingInfo: []MappingInfo{
			{MappingURI: livretURI, Intent: "Savings_Rate"},
			{MappingURI: livretURI, Intent: "Savings_Rate"},
			{MappingURI: "/intent/Savings_Rate/product_entity/LDD", Intent: "Savings_Rate"},
		},
	}}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "dialogtool".answer_units`)).
		WithArgs("AU-002", "Livret A ancienne version", "Ancienne réponse", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "dialogtool".answer_mappings`)).
		WithArgs("AU-002").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "dialogtool".answer_mappings`)).
		WithArgs(livretURI, "AU-002", "Savings_Rate", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "dialogtool".answer_mappings`)).
		WithArgs("/intent/Savings_Rate/product_entity/LDD", "AU-002", "Savings_Rate", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Import(context.Background(), units))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ImportRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "dialogtool".answer_units`)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := s.Import(context.Background(), []*AnswerUnit{{AnswerUnitID: "AU-003"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert answer unit AU-003")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InitSchema(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE SCHEMA IF NOT EXISTS "dialogtool"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.InitSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
