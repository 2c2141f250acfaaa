package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sigmos-lang/sigmos/domain/value"
	"github.com/sigmos-lang/sigmos/ports"
)

// StateStore implements ports.StateStore using SQLite.
type StateStore struct {
	db *DB
}

// NewStateStore creates a new SQLite state store.
func NewStateStore(db *DB) *StateStore {
	return &StateStore{db: db}
}

// LastInputs returns the most recent input snapshot for a spec.
func (s *StateStore) LastInputs(ctx context.Context, specName string) (*value.Object, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT inputs FROM spec_state WHERE spec_name = ?
	`, specName).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	in, err := decodeInputs(raw)
	if err != nil {
		return nil, false, err
	}
	return in, true, nil
}

// SaveExecution records an execution and replaces the spec's last-input
// snapshot in one transaction.
func (s *StateStore) SaveExecution(ctx context.Context, rec ports.ExecutionRecord) error {
	inputs, err := encodeInputs(rec.Inputs)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO executions (id, spec_name, spec_version, status, error_kind, inputs, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.SpecName, rec.SpecVersion, string(rec.Status), rec.ErrorKind, inputs,
		rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO spec_state (spec_name, inputs, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(spec_name) DO UPDATE SET inputs = excluded.inputs, updated_at = excluded.updated_at
	`, rec.SpecName, inputs, rec.FinishedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// History returns the most recent executions for a spec, newest first.
func (s *StateStore) History(ctx context.Context, specName string, limit int) ([]ports.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, spec_name, spec_version, status, error_kind, inputs, started_at, finished_at
		FROM executions
		WHERE spec_name = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, specName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []ports.ExecutionRecord
	for rows.Next() {
		var rec ports.ExecutionRecord
		var status, raw string
		if err := rows.Scan(&rec.ID, &rec.SpecName, &rec.SpecVersion, &status,
			&rec.ErrorKind, &raw, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, err
		}
		rec.Status = ports.ExecutionStatus(status)
		rec.Inputs, err = decodeInputs(raw)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func encodeInputs(in *value.Object) (string, error) {
	if in == nil {
		return "{}", nil
	}
	b, err := json.Marshal(value.Obj(in).ToGo())
	if err != nil {
		return "", fmt.Errorf("encode inputs: %w", err)
	}
	return string(b), nil
}

func decodeInputs(raw string) (*value.Object, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode inputs: %w", err)
	}
	v, err := value.FromGo(m)
	if err != nil {
		return nil, err
	}
	obj, _ := v.AsObject()
	return obj, nil
}

var _ ports.StateStore = (*StateStore)(nil)
