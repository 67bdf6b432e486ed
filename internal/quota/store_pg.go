package quota

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PGStore keeps records as JSONB rows in quota_records. Apply holds a
// SELECT ... FOR UPDATE row lock for the duration of fn.
type PGStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed quota store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{DB: db}
}

func (s *PGStore) Load(ctx context.Context, clientID string) (Record, error) {
	var raw []byte
	err := s.DB.QueryRowContext(ctx, `
SELECT record FROM quota_records WHERE client_id = $1`, clientID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("load quota record: %w", err)
	}
	return decodeRecord(raw)
}

func (s *PGStore) Apply(ctx context.Context, clientID string, fn func(*Record) error) (rec Record, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
INSERT INTO quota_records (client_id, record) VALUES ($1, '{}'::jsonb)
ON CONFLICT (client_id) DO NOTHING`, clientID); err != nil {
		return Record{}, fmt.Errorf("ensure quota record: %w", err)
	}

	var raw []byte
	if err = tx.QueryRowContext(ctx, `
SELECT record FROM quota_records WHERE client_id = $1 FOR UPDATE`, clientID).Scan(&raw); err != nil {
		return Record{}, fmt.Errorf("lock quota record: %w", err)
	}
	rec, err = decodeRecord(raw)
	if err != nil {
		return Record{}, err
	}

	if err = fn(&rec); err != nil {
		return Record{}, err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode quota record: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `
UPDATE quota_records SET record = $1, updated_at = now() WHERE client_id = $2`, data, clientID); err != nil {
		return Record{}, fmt.Errorf("update quota record: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func decodeRecord(raw []byte) (Record, error) {
	var rec Record
	if len(raw) == 0 {
		return rec, nil
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode quota record: %w", err)
	}
	return rec, nil
}

var _ Store = (*PGStore)(nil)
