package claim

import (
	"context"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"claimgate/internal/audit"
	"claimgate/internal/claim/ledger"
	"claimgate/internal/wizard"
	dErrors "claimgate/pkg/domain-errors"
)

// SubmitResult is the backend's verdict on an accepted claim.
type SubmitResult struct {
	ErrCd     string `json:"err_cd"`
	ErrMsg    string `json:"err_msg,omitempty"`
	FileCount int    `json:"file_count"`
}

// Submit posts the merged claim. Only an accepted claim resets the session;
// after a rejection or a transport failure the user can fix and retry.
func (s *Service) Submit(ctx context.Context, sessionID uuid.UUID) (SubmitResult, error) {
	sess := s.lookup(ctx, sessionID)
	sess.submitMu.Lock()
	defer sess.submitMu.Unlock()

	ctx, span := s.tracer.Start(ctx, "claim.submit", trace.WithAttributes(
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()

	snap := sess.store.Snapshot()
	if snap.ReceiptType == "" {
		return SubmitResult{}, dErrors.New(dErrors.CodeValidation, "choose who the claim is for first")
	}
	files := sess.pipeline.ImageNames()
	payload, sealed := buildPayload(snap, files)
	span.SetAttributes(
		attribute.Int("claim.files", len(files)),
		attribute.StringSlice("claim.sealed_fields", sealed),
	)

	attempt := ledger.Attempt{
		ID:           uuid.New(),
		SessionID:    sessionID,
		ReceiptType:  string(snap.ReceiptType),
		FileNames:    files,
		SealedFields: sealed,
		CreatedAt:    s.now(),
	}
	start := time.Now()
	res, err := s.portal.SubmitClaim(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		attempt.Outcome = ledger.OutcomeFailed
		s.finish(ctx, attempt, audit.ActionClaimFailed, start)
		s.logger.WarnContext(ctx, "claim submit failed", "session_id", sessionID.String(), "error", err)
		return SubmitResult{}, portalError(ctx, err, "could not reach the claim service, please try again")
	}

	attempt.ErrCd = res.ErrCd
	attempt.ErrMsg = res.ErrMsg
	if res.ErrCd != s.successCode {
		span.SetStatus(codes.Error, "claim rejected")
		attempt.Outcome = ledger.OutcomeRejected
		s.finish(ctx, attempt, audit.ActionClaimRejected, start)
		msg := res.ErrMsg
		if msg == "" {
			msg = "the claim was not accepted"
		}
		return SubmitResult{}, dErrors.New(dErrors.CodeRejected, msg)
	}

	attempt.Outcome = ledger.OutcomeSubmitted
	s.finish(ctx, attempt, audit.ActionClaimSubmitted, start)
	s.reset(ctx, sess)
	return SubmitResult{ErrCd: res.ErrCd, ErrMsg: res.ErrMsg, FileCount: len(files)}, nil
}

func (s *Service) finish(ctx context.Context, a ledger.Attempt, action audit.Action, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveSubmit(string(a.Outcome), start)
	}
	if s.attempts != nil {
		if err := s.attempts.Record(ctx, a); err != nil {
			s.logger.ErrorContext(ctx, "failed to record claim attempt", "attempt_id", a.ID.String(), "error", err)
		}
	}
	detail := map[string]string{"attempt_id": a.ID.String()}
	if a.ErrCd != "" {
		detail["err_cd"] = a.ErrCd
	}
	s.emit(ctx, a.SessionID, action, string(a.Outcome), detail)
}

// buildPayload merges the slices in order, later keys winning, and appends the
// derived fields. It also names the secure fields the payload carries.
func buildPayload(snap wizard.Snapshot, files []string) (map[string]any, []string) {
	payload := make(map[string]any)
	for _, name := range wizard.Slices {
		maps.Copy(payload, snap.Slices[name])
	}
	if files == nil {
		files = []string{}
	}
	payload["receiptType"] = string(snap.ReceiptType)
	payload["userName"] = snap.UserName
	payload["file_list"] = files

	var sealed []string
	for _, name := range SecureFieldNames() {
		if _, ok := payload[name]; ok {
			sealed = append(sealed, name)
		}
	}
	return payload, sealed
}
