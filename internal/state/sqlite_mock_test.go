package state

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewSQLiteStore(nil)
	store.db = db
	return store, mock
}

func TestSQLiteStore_DatabaseErrors(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		call      func(s *SQLiteStore) error
		errMsg    string
	}{
		{
			name: "create run insert fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO runs").WillReturnError(assert.AnError)
			},
			call: func(s *SQLiteStore) error {
				_, err := s.CreateRun([]string{"default"})
				return err
			},
			errMsg: "failed to create run",
		},
		{
			name: "complete unknown run",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE runs SET status").WillReturnResult(sqlmock.NewResult(0, 0))
			},
			call: func(s *SQLiteStore) error {
				return s.CompleteRun("missing", RunStatusCompleted, "")
			},
			errMsg: "run not found: missing",
		},
		{
			name: "record files rolls back on insert failure",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				prep := mock.ExpectPrepare("INSERT OR REPLACE INTO file_results")
				prep.ExpectExec().WillReturnError(assert.AnError)
				mock.ExpectRollback()
			},
			call: func(s *SQLiteStore) error {
				return s.RecordFiles("run-1", []FileRecord{
					{Task: "page-sass", Source: "home.scss", Output: "home.css", Status: "compiled"},
				})
			},
			errMsg: "failed to record home.scss",
		},
		{
			name: "get run query fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM runs r WHERE r.id").WillReturnError(assert.AnError)
			},
			call: func(s *SQLiteStore) error {
				_, err := s.GetRun("run-1")
				return err
			},
			errMsg: "failed to get run",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.setupMock(mock)

			err := tt.call(store)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
