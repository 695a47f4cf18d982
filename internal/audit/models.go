package audit

import "time"

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out. Events never carry PII: sealed
// fields are reported by name only.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    Action            `json:"action"`
	SessionID string            `json:"session_id"`
	RequestID string            `json:"request_id,omitempty"`
	Device    string            `json:"device,omitempty"`
	Outcome   string            `json:"outcome,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

type Action string

const (
	// Session events
	ActionSessionCreated Action = "session_created"
	ActionWizardReset    Action = "wizard_reset"
	ActionReceiptSwitch  Action = "receipt_type_switched"

	// Secure field events
	ActionFieldSealed   Action = "secure_field_sealed"
	ActionSealFailed    Action = "secure_field_seal_failed"
	ActionEnvelopeTaken Action = "envelope_accepted"

	// Upload events
	ActionUploadCommitted Action = "upload_committed"
	ActionUploadFailed    Action = "upload_failed"
	ActionUploadRemoved   Action = "upload_removed"

	// Claim events
	ActionClaimSubmitted Action = "claim_submitted"
	ActionClaimRejected  Action = "claim_rejected"
	ActionClaimFailed    Action = "claim_failed"
)
