package handler

import (
	"time"

	"claimgate/internal/upload"
	"claimgate/internal/wizard"
)

type SessionResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SliceResponse struct {
	Slice  string       `json:"slice"`
	Values wizard.Slice `json:"values"`
}

type ReceiptTypeResponse struct {
	ReceiptType string `json:"receipt_type"`
	Reset       bool   `json:"reset"`
}

type ContractsResponse struct {
	Contracts []wizard.Contract `json:"contracts"`
}

type UploadResponse struct {
	Committed []upload.Committed `json:"committed"`
}

// UploadErrorResponse reports a batch that stopped at its first failure.
// Committed lists the files that did reach the backend.
type UploadErrorResponse struct {
	Error            string             `json:"error"`
	ErrorDescription string             `json:"error_description"`
	Cause            upload.Cause       `json:"cause"`
	File             string             `json:"file"`
	Committed        []upload.Committed `json:"committed"`
}

type RemoveUploadResponse struct {
	Removed upload.Entry `json:"removed"`
}
