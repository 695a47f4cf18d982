// Package claim runs a claim wizard session end to end: it binds the form
// state, the keypad inputs for sensitive fields, the document uploads, and the
// final submission.
package claim

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"claimgate/internal/audit"
	"claimgate/internal/claim/ledger"
	"claimgate/internal/claim/metrics"
	"claimgate/internal/envelope"
	"claimgate/internal/portal"
	"claimgate/internal/secureinput"
	"claimgate/internal/sessionstore"
	"claimgate/internal/upload"
	"claimgate/internal/wizard"
	dErrors "claimgate/pkg/domain-errors"
	"claimgate/pkg/platform/sentinel"
)

const (
	DefaultSuccessCode = "0000"
	defaultSessionTTL  = 30 * time.Minute
)

// DefaultUploadCategories is the document order of the claim's file list.
var DefaultUploadCategories = []string{"diagnosis", "receipt", "detail", "etc"}

// Portal is the slice of the backend the orchestration talks to directly.
type Portal interface {
	ListContracts(ctx context.Context, receiptType string) ([]map[string]any, error)
	SubmitClaim(ctx context.Context, payload map[string]any) (portal.ClaimResult, error)
}

// AttemptRecorder persists submission attempts.
type AttemptRecorder interface {
	Record(ctx context.Context, a ledger.Attempt) error
}

// Auditor receives audit events. Emit must not block.
type Auditor interface {
	Emit(ctx context.Context, e audit.Event)
}

type Service struct {
	store    sessionstore.Store
	sealer   secureinput.Sealer
	uploader upload.Uploader
	portal   Portal

	attempts AttemptRecorder
	auditor  Auditor
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time

	successCode      string
	sessionTTL       time.Duration
	uploadCategories []string
	uploadOpts       []upload.Option

	sessions  *gocache.Cache
	restoring singleflight.Group
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithAttemptRecorder(r AttemptRecorder) Option {
	return func(s *Service) {
		s.attempts = r
	}
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithSuccessCode sets the errCd value the backend uses for an accepted claim.
func WithSuccessCode(code string) Option {
	return func(s *Service) {
		if code != "" {
			s.successCode = code
		}
	}
}

// WithSessionTTL sets how long an idle session stays in memory. Expired
// sessions are rebuilt from the session store on their next request.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

func WithUploadCategories(categories ...string) Option {
	return func(s *Service) {
		if len(categories) > 0 {
			s.uploadCategories = categories
		}
	}
}

// WithUploadOptions configures every session's upload pipeline.
func WithUploadOptions(opts ...upload.Option) Option {
	return func(s *Service) {
		s.uploadOpts = append(s.uploadOpts, opts...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store sessionstore.Store, sealer secureinput.Sealer, uploader upload.Uploader, p Portal, opts ...Option) *Service {
	s := &Service{
		store:            store,
		sealer:           sealer,
		uploader:         uploader,
		portal:           p,
		logger:           slog.Default(),
		tracer:           otel.Tracer("claimgate/claim"),
		now:              time.Now,
		successCode:      DefaultSuccessCode,
		sessionTTL:       defaultSessionTTL,
		uploadCategories: DefaultUploadCategories,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sessions = gocache.New(s.sessionTTL, s.sessionTTL/2)
	return s
}

// State is the render-safe view of a session. Sealed envelopes appear only as
// {"sealed": true}.
type State struct {
	SessionID  string                    `json:"session_id"`
	Wizard     wizard.Snapshot           `json:"wizard"`
	Inputs     []secureinput.View        `json:"inputs"`
	Uploads    map[string][]upload.Entry `json:"uploads"`
	ImageNames []string                  `json:"image_names"`
}

// CreateSession starts an empty wizard session.
func (s *Service) CreateSession(ctx context.Context) uuid.UUID {
	id := uuid.New()
	ns := s.store.Namespace(id.String())
	sess := s.newSession(id, ns, wizard.New(ns, wizard.WithLogger(s.logger)))
	s.sessions.SetDefault(id.String(), sess)
	if s.metrics != nil {
		s.metrics.SessionsCreated.Inc()
	}
	s.emit(ctx, id, audit.ActionSessionCreated, "", nil)
	return id
}

func (s *Service) State(ctx context.Context, sessionID uuid.UUID) (State, error) {
	sess := s.lookup(ctx, sessionID)
	snap := sess.store.Snapshot()
	for name, slice := range snap.Slices {
		snap.Slices[name] = redact(slice)
	}
	state := State{
		SessionID:  sessionID.String(),
		Wizard:     snap,
		Uploads:    sess.pipeline.Snapshot(),
		ImageNames: sess.pipeline.ImageNames(),
	}
	for _, name := range SecureFieldNames() {
		field := secureFields[name]
		in, err := s.input(sess, field)
		if err != nil {
			return State{}, err
		}
		view := in.View()
		_, stored := sess.store.Slice(field.Slice)[name]
		view.Sealed = view.Sealed || stored
		state.Inputs = append(state.Inputs, view)
	}
	return state, nil
}

// SaveSlice merges partial into the named slice. Secure fields can only be
// written through their keypad input or a sealed envelope.
func (s *Service) SaveSlice(ctx context.Context, sessionID uuid.UUID, name string, partial map[string]any) (wizard.Slice, error) {
	sliceName, err := wizard.ParseSliceName(name)
	if err != nil {
		return nil, err
	}
	for key := range partial {
		if _, secure := secureFields[key]; secure {
			return nil, dErrors.New(dErrors.CodeValidation, "field "+key+" only accepts sealed input")
		}
	}
	sess := s.lookup(ctx, sessionID)
	merged := sess.store.SaveSlice(ctx, sliceName, wizard.Slice(partial))
	s.deriveUserName(ctx, sess.store)
	return redact(merged), nil
}

// SetReceiptType records who the claim is for. Changing an existing choice
// clears the insured and accept answers together with their secure inputs.
func (s *Service) SetReceiptType(ctx context.Context, sessionID uuid.UUID, value string) (bool, error) {
	rt, err := wizard.ParseReceiptType(value)
	if err != nil {
		return false, err
	}
	sess := s.lookup(ctx, sessionID)
	reset := sess.store.SwitchReceiptType(ctx, rt)
	if reset {
		sess.dropInputs(fieldsInSlices(wizard.SliceInsured, wizard.SliceAccept)...)
		s.emit(ctx, sessionID, audit.ActionReceiptSwitch, "", map[string]string{"receipt_type": string(rt)})
	}
	s.deriveUserName(ctx, sess.store)
	return reset, nil
}

// ResetAll drops every answer, secure input and uploaded file of the session.
func (s *Service) ResetAll(ctx context.Context, sessionID uuid.UUID) {
	sess := s.lookup(ctx, sessionID)
	s.reset(ctx, sess)
	s.emit(ctx, sessionID, audit.ActionWizardReset, "", nil)
}

func (s *Service) reset(ctx context.Context, sess *session) {
	sess.store.ResetAll(ctx)
	sess.dropInputs()
	sess.pipeline.Reset()
}

// SubmitEnvelope stores an envelope sealed by the client for field.
func (s *Service) SubmitEnvelope(ctx context.Context, sessionID uuid.UUID, fieldName string, raw []byte) error {
	field, err := SecureFieldFor(fieldName)
	if err != nil {
		return err
	}
	env, err := envelope.Parse(raw)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "envelope is malformed")
	}
	sess := s.lookup(ctx, sessionID)
	sess.store.SaveSlice(ctx, field.Slice, wizard.Slice{field.Name: env})
	sess.dropInputs(field.Name)
	s.emit(ctx, sessionID, audit.ActionEnvelopeTaken, "", map[string]string{"field": field.Name})
	return nil
}

// Contracts returns the contracts eligible under the current receipt type,
// fetching them once per type.
func (s *Service) Contracts(ctx context.Context, sessionID uuid.UUID) ([]wizard.Contract, error) {
	sess := s.lookup(ctx, sessionID)
	if cached, ok := sess.store.ContractList(); ok {
		return cached, nil
	}
	rt := sess.store.ReceiptType()
	if rt == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "choose who the claim is for first")
	}
	raw, err := s.portal.ListContracts(ctx, string(rt))
	if err != nil {
		return nil, portalError(ctx, err, "could not load contracts, please try again")
	}
	contracts := make([]wizard.Contract, 0, len(raw))
	for _, c := range raw {
		contracts = append(contracts, wizard.Contract(c))
	}
	if sess.store.ReceiptType() != rt {
		return nil, dErrors.New(dErrors.CodeConflict, "receipt type changed while loading contracts, please retry")
	}
	sess.store.SetContractList(ctx, contracts)
	return contracts, nil
}

// Upload sends files into category one at a time.
func (s *Service) Upload(ctx context.Context, sessionID uuid.UUID, category string, files []upload.File, metadata upload.Metadata) (upload.Result, error) {
	sess := s.lookup(ctx, sessionID)
	result, err := sess.pipeline.Enqueue(ctx, category, files, metadata)
	if len(result.Committed) > 0 {
		for _, c := range result.Committed {
			s.emit(ctx, sessionID, audit.ActionUploadCommitted, "", map[string]string{"category": c.Category, "file": c.ServerFilename})
		}
	}
	if err == nil {
		return result, nil
	}
	var upErr *upload.Error
	if errors.As(err, &upErr) {
		s.emit(ctx, sessionID, audit.ActionUploadFailed, string(upErr.Cause), map[string]string{"category": category})
		return result, dErrors.Wrap(upErr, dErrors.CodeUploadFailed, upErr.Message())
	}
	return result, err
}

func (s *Service) RemoveUpload(ctx context.Context, sessionID uuid.UUID, category string, slot int) (upload.Entry, error) {
	sess := s.lookup(ctx, sessionID)
	entry, err := sess.pipeline.Remove(ctx, category, slot)
	if err != nil {
		return upload.Entry{}, err
	}
	s.emit(ctx, sessionID, audit.ActionUploadRemoved, "", map[string]string{"category": category, "file": entry.ServerFilename})
	return entry, nil
}

// deriveUserName keeps userName pointed at the person the claim is filed for.
func (s *Service) deriveUserName(ctx context.Context, store *wizard.Store) {
	var source wizard.SliceName
	switch store.ReceiptType() {
	case wizard.ReceiptMinorChild:
		source = wizard.SliceInsured
	case wizard.ReceiptSelf:
		source = wizard.SliceClaim
	default:
		return
	}
	name, _ := store.Slice(source)["name"].(string)
	store.SetUserName(ctx, name)
}

func (s *Service) emit(ctx context.Context, sessionID uuid.UUID, action audit.Action, outcome string, detail map[string]string) {
	if s.auditor == nil {
		return
	}
	s.auditor.Emit(ctx, audit.Event{
		Timestamp: s.now(),
		Action:    action,
		SessionID: sessionID.String(),
		Outcome:   outcome,
		Detail:    detail,
	})
}

// redact replaces secure field values with a marker.
func redact(slice wizard.Slice) wizard.Slice {
	out := maps.Clone(slice)
	if out == nil {
		out = wizard.Slice{}
	}
	for key := range out {
		if _, secure := secureFields[key]; secure {
			out[key] = map[string]any{"sealed": true}
		}
	}
	return out
}

// portalError turns a backend failure into a retry-oriented domain error.
func portalError(ctx context.Context, err error, message string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, message)
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "nothing was found")
	default:
		return dErrors.Wrap(err, dErrors.CodeNetwork, message)
	}
}
