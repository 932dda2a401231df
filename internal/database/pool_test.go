package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

type recordingExecer struct {
	stmts  []string
	failAt int
}

func (e *recordingExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.stmts = append(e.stmts, sql)
	if e.failAt > 0 && len(e.stmts) == e.failAt {
		return pgconn.CommandTag{}, errors.New("permission denied")
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func TestEnsureSchema(t *testing.T) {
	db := &recordingExecer{}
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	if len(db.stmts) != len(schema) {
		t.Fatalf("executed %d statements, want %d", len(db.stmts), len(schema))
	}
	if !strings.Contains(db.stmts[0], "CREATE TABLE IF NOT EXISTS odds_changes") {
		t.Errorf("first statement = %q, want table creation", db.stmts[0])
	}
	if !strings.Contains(db.stmts[1], "create_hypertable") {
		t.Errorf("second statement = %q, want hypertable creation", db.stmts[1])
	}
}

func TestEnsureSchema_StopsOnError(t *testing.T) {
	db := &recordingExecer{failAt: 1}
	err := EnsureSchema(context.Background(), db)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "ensure schema") {
		t.Errorf("error = %v, want ensure schema prefix", err)
	}
	if len(db.stmts) != 1 {
		t.Errorf("executed %d statements after failure, want 1", len(db.stmts))
	}
}
