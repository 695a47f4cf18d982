package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// PostgresStore persists attempts in the claim_submissions table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the table and index when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure claim_submissions schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Record(ctx context.Context, a Attempt) error {
	query := `
		INSERT INTO claim_submissions (
			id, session_id, receipt_type, file_names, sealed_fields,
			outcome, err_cd, err_msg, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID,
		a.SessionID,
		a.ReceiptType,
		pq.Array(nonNil(a.FileNames)),
		pq.Array(nonNil(a.SealedFields)),
		string(a.Outcome),
		a.ErrCd,
		a.ErrMsg,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record claim submission: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]Attempt, error) {
	query := `
		SELECT id, session_id, receipt_type, file_names, sealed_fields,
		       outcome, err_cd, err_msg, created_at
		FROM claim_submissions
		WHERE session_id = $1
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list claim submissions: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var outcome string
		if err := rows.Scan(
			&a.ID, &a.SessionID, &a.ReceiptType,
			pq.Array(&a.FileNames), pq.Array(&a.SealedFields),
			&outcome, &a.ErrCd, &a.ErrMsg, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan claim submission: %w", err)
		}
		a.Outcome = Outcome(outcome)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claim submissions: %w", err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
