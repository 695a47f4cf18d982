package claim

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"claimgate/internal/secureinput"
	"claimgate/internal/sessionstore"
	"claimgate/internal/upload"
	"claimgate/internal/wizard"
	"claimgate/pkg/platform/sentinel"
)

// uploadsKey holds the upload ledger next to the wizard keys so a restored
// session keeps its file list.
const uploadsKey = "uploads"

type session struct {
	id       uuid.UUID
	ns       sessionstore.Namespace
	store    *wizard.Store
	pipeline *upload.Pipeline

	mu     sync.Mutex
	inputs map[string]*secureinput.Input

	// submitMu keeps a second submit from racing the reset of the first.
	submitMu sync.Mutex
}

func (s *session) dropInputs(fields ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(fields) == 0 {
		clear(s.inputs)
		return
	}
	for _, f := range fields {
		delete(s.inputs, f)
	}
}

func (svc *Service) newSession(id uuid.UUID, ns sessionstore.Namespace, store *wizard.Store) *session {
	sess := &session{
		id:     id,
		ns:     ns,
		store:  store,
		inputs: make(map[string]*secureinput.Input),
	}
	ledger := upload.NewLedger(svc.uploadCategories...)
	opts := append([]upload.Option{
		upload.WithLogger(svc.logger),
		upload.WithOnChange(func(ctx context.Context, snapshot map[string][]upload.Entry) {
			svc.persistUploads(ctx, sess, snapshot)
		}),
	}, svc.uploadOpts...)
	sess.pipeline = upload.NewPipeline(svc.uploader, ledger, opts...)
	return sess
}

// lookup returns the live session, rebuilding it from the durable store on a
// registry miss. Concurrent misses for one id share a single restore.
func (svc *Service) lookup(ctx context.Context, id uuid.UUID) *session {
	key := id.String()
	if v, ok := svc.sessions.Get(key); ok {
		svc.sessions.SetDefault(key, v)
		return v.(*session)
	}
	v, _, _ := svc.restoring.Do(key, func() (any, error) {
		if v, ok := svc.sessions.Get(key); ok {
			return v, nil
		}
		ns := svc.store.Namespace(key)
		sess := svc.newSession(id, ns, wizard.Restore(ctx, ns, wizard.WithLogger(svc.logger)))
		svc.restoreUploads(ctx, sess)
		svc.sessions.SetDefault(key, sess)
		if svc.metrics != nil {
			svc.metrics.SessionsRestored.Inc()
		}
		svc.logger.InfoContext(ctx, "wizard session restored", "session_id", key)
		return sess, nil
	})
	return v.(*session)
}

// persistUploads runs under the pipeline lock, so the last write always holds
// the latest bookkeeping.
func (svc *Service) persistUploads(ctx context.Context, sess *session, snapshot map[string][]upload.Entry) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		svc.logger.WarnContext(ctx, "upload ledger persist: encode failed", "session_id", sess.id.String(), "error", err)
		return
	}
	if err := sess.ns.Set(ctx, uploadsKey, raw); err != nil {
		svc.logger.WarnContext(ctx, "upload ledger persist: write failed", "session_id", sess.id.String(), "error", err)
	}
}

func (svc *Service) restoreUploads(ctx context.Context, sess *session) {
	raw, err := sess.ns.Get(ctx, uploadsKey)
	if errors.Is(err, sentinel.ErrNotFound) {
		return
	}
	if err != nil {
		svc.logger.WarnContext(ctx, "upload ledger restore: read failed", "session_id", sess.id.String(), "error", err)
		return
	}
	var snapshot map[string][]upload.Entry
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		svc.logger.WarnContext(ctx, "upload ledger restore: evicting corrupt entry", "session_id", sess.id.String(), "error", err)
		if err := sess.ns.Delete(ctx, uploadsKey); err != nil {
			svc.logger.WarnContext(ctx, "upload ledger restore: delete failed", "session_id", sess.id.String(), "error", err)
		}
		return
	}
	sess.pipeline.Restore(snapshot)
}
