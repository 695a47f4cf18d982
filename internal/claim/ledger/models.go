// Package ledger records claim submission attempts. Records hold outcome and
// bookkeeping only; no field values, sealed or otherwise, are ever stored.
package ledger

import (
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeSubmitted Outcome = "submitted"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// Attempt is one POST of a claim payload.
type Attempt struct {
	ID           uuid.UUID `json:"id"`
	SessionID    uuid.UUID `json:"session_id"`
	ReceiptType  string    `json:"receipt_type"`
	FileNames    []string  `json:"file_names"`
	SealedFields []string  `json:"sealed_fields"`
	Outcome      Outcome   `json:"outcome"`
	ErrCd        string    `json:"err_cd,omitempty"`
	ErrMsg       string    `json:"err_msg,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
