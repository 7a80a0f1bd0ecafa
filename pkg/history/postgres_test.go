package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mockSQL, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	return NewPostgres(sqlx.NewDb(mockDB, "sqlmock")), mockSQL
}

func TestPostgres_Migrate(t *testing.T) {
	p, mockSQL := newMockPostgres(t)
	mockSQL.ExpectExec("CREATE TABLE IF NOT EXISTS analysis_history").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := p.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := mockSQL.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestPostgres_Save(t *testing.T) {
	tests := []struct {
		name       string
		beforeTest func(sqlmock.Sqlmock)
		wantID     string
		wantErr    bool
	}{
		{
			name: "new record",
			beforeTest: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("INSERT INTO analysis_history").
					WithArgs(sqlmock.AnyArg(), userA, int64(1700000000000), []byte(`{"n":1}`)).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("11111111-1111-1111-1111-111111111111"))
			},
			wantID: "11111111-1111-1111-1111-111111111111",
		},
		{
			name: "database error",
			beforeTest: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("INSERT INTO analysis_history").
					WillReturnError(errors.New("whoops, error"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, mockSQL := newMockPostgres(t)
			tt.beforeTest(mockSQL)

			rec := &Record{UserID: userA, Timestamp: 1700000000000, Analysis: json.RawMessage(`{"n":1}`)}
			err := p.Save(context.Background(), rec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Save() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && rec.ID != tt.wantID {
				t.Errorf("Expected ID %s, got %s", tt.wantID, rec.ID)
			}
			if err := mockSQL.ExpectationsWereMet(); err != nil {
				t.Errorf("Unmet expectations: %v", err)
			}
		})
	}
}

func TestPostgres_SaveRejectsInvalid(t *testing.T) {
	p, mockSQL := newMockPostgres(t)
	if err := p.Save(context.Background(), &Record{UserID: "x"}); !errors.Is(err, ErrInvalidUserID) {
		t.Errorf("Expected ErrInvalidUserID, got %v", err)
	}
	if err := mockSQL.ExpectationsWereMet(); err != nil {
		t.Errorf("Expected no queries: %v", err)
	}
}

func TestPostgres_List(t *testing.T) {
	p, mockSQL := newMockPostgres(t)
	mockSQL.ExpectQuery("SELECT id, user_id, ts, analysis").
		WithArgs(userA).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "ts", "analysis"}).
			AddRow("b", userA, int64(1700000002000), []byte(`{"v":2}`)).
			AddRow("a", userA, int64(1700000001000), []byte(`{"v":1}`)))

	list, err := p.List(context.Background(), userA)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(list))
	}
	if list[0].ID != "b" || list[0].Timestamp != 1700000002000 || string(list[0].Analysis) != `{"v":2}` {
		t.Errorf("Unexpected first record %+v", list[0])
	}
	if err := mockSQL.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestPostgres_Delete(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		execErr  error
		wantErr  error
	}{
		{name: "deleted", affected: 1},
		{name: "missing", affected: 0, wantErr: ErrNotFound},
		{name: "db error", execErr: sql.ErrConnDone, wantErr: sql.ErrConnDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, mockSQL := newMockPostgres(t)
			exp := mockSQL.ExpectExec("DELETE FROM analysis_history").
				WithArgs(userA, int64(1700000000000))
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, tt.affected))
			}

			err := p.Delete(context.Background(), userA, 1700000000000)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
