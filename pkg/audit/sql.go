package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `CREATE TABLE IF NOT EXISTS offload_audit (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	flow        TEXT NOT NULL,
	recorded_at TEXT NOT NULL,
	payload     TEXT NOT NULL
)`

// SQL writes entries to a postgres database when a DSN is given, or to a
// local sqlite file otherwise.
type SQL struct {
	db *sql.DB
}

// OpenSQL opens and migrates the audit table.
func OpenSQL(ctx context.Context, dsn, sqlitePath string) (*SQL, error) {
	var (
		db  *sql.DB
		err error
	)
	if dsn == "" {
		db, err = sql.Open("sqlite3", "file:"+sqlitePath+"?_busy_timeout=5000")
	} else {
		db, err = sql.Open("postgres", dsn)
	}
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return &SQL{db: db}, nil
}

func (s *SQL) Record(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO offload_audit (id, kind, flow, recorded_at, payload) VALUES ($1, $2, $3, $4, $5)`,
		e.ID(), string(e.Kind), e.Flow().String(), e.Timestamp.UTC().Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return fmt.Errorf("insert audit entry %s: %w", e.ID(), err)
	}
	return nil
}

// Count returns the number of stored entries of a kind.
func (s *SQL) Count(ctx context.Context, kind Kind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offload_audit WHERE kind = $1`, string(kind)).Scan(&n)
	return n, err
}

func (s *SQL) Close() error {
	return s.db.Close()
}
