package claim

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"claimgate/internal/audit"
	"claimgate/internal/claim/ledger"
	"claimgate/internal/claim/metrics"
	"claimgate/internal/envelope"
	"claimgate/internal/pii"
	"claimgate/internal/portal"
	"claimgate/internal/secureinput"
	"claimgate/internal/sessionstore"
	"claimgate/internal/upload"
	"claimgate/internal/wizard"
	dErrors "claimgate/pkg/domain-errors"
)

var testKey *rsa.PrivateKey

func init() {
	var err error
	testKey, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
}

type keySource struct {
	mu  sync.Mutex
	key *rsa.PublicKey
}

func (k *keySource) Get(context.Context) (*rsa.PublicKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.key == nil {
		return nil, errors.New("no key loaded")
	}
	return k.key, nil
}

type fakePortal struct {
	mu            sync.Mutex
	contracts     []map[string]any
	contractCalls int
	result        portal.ClaimResult
	err           error
	payloads      []map[string]any
}

func (p *fakePortal) ListContracts(_ context.Context, receiptType string) ([]map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contractCalls++
	return p.contracts, p.err
}

func (p *fakePortal) SubmitClaim(_ context.Context, payload map[string]any) (portal.ClaimResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return p.result, p.err
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAuditor) Emit(_ context.Context, e audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *recordingAuditor) actions() []audit.Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]audit.Action, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Action)
	}
	return out
}

// validSuffix returns a suffix that passes the checksum for front.
func validSuffix(t *testing.T, front string) string {
	t.Helper()
	digit, ok := pii.CheckDigit(front + "123456")
	require.True(t, ok)
	return "123456" + strconv.Itoa(digit)
}

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	store    *sessionstore.MemoryStore
	keys     *keySource
	portal   *fakePortal
	auditor  *recordingAuditor
	attempts *ledger.InMemoryStore
	metrics  *metrics.Metrics
	uploaded []string
	service  *Service
	session  uuid.UUID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = sessionstore.NewMemory(time.Hour)
	s.keys = &keySource{key: &testKey.PublicKey}
	s.portal = &fakePortal{result: portal.ClaimResult{ErrCd: DefaultSuccessCode}}
	s.auditor = &recordingAuditor{}
	s.attempts = ledger.NewInMemory()
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.uploaded = nil
	s.service = s.newService()
	s.session = s.service.CreateSession(s.ctx)
}

func (s *ServiceSuite) newService() *Service {
	return s.newServiceWith(envelope.NewSealer(s.keys))
}

func (s *ServiceSuite) newServiceWith(sealer secureinput.Sealer) *Service {
	uploader := upload.UploaderFunc(func(_ context.Context, _ []byte, f upload.File) (string, error) {
		if f.Name == "broken.pdf" {
			return "", errors.New("connection reset")
		}
		s.uploaded = append(s.uploaded, f.Name)
		return "srv-" + f.Name, nil
	})
	return NewService(s.store, sealer, uploader, s.portal,
		WithAuditor(s.auditor),
		WithAttemptRecorder(s.attempts),
		WithMetrics(s.metrics),
		WithUploadCategories("diagnosis", "receipt"),
	)
}

func (s *ServiceSuite) typeDigits(field, digits string) {
	_, err := s.service.InputAction(s.ctx, s.session, field, KeyOpen, "")
	s.Require().NoError(err)
	for _, d := range digits {
		_, err := s.service.InputAction(s.ctx, s.session, field, KeyPress, string(d))
		s.Require().NoError(err)
	}
}

func (s *ServiceSuite) sealResidentNumber() string {
	_, err := s.service.SaveSlice(s.ctx, s.session, "insured", map[string]any{"residentFront": "900101", "name": "Kim"})
	s.Require().NoError(err)
	suffix := validSuffix(s.T(), "900101")
	s.typeDigits(FieldResidentNumber, suffix)
	view, err := s.service.InputAction(s.ctx, s.session, FieldResidentNumber, KeyConfirm, "")
	s.Require().NoError(err)
	s.Equal(secureinput.StateClosed, view.State)
	return suffix
}

func (s *ServiceSuite) TestConfirmSealsIntoSlice() {
	suffix := s.sealResidentNumber()

	sess := s.service.lookup(s.ctx, s.session)
	stored, ok := sess.store.Slice(wizard.SliceInsured)[FieldResidentNumber].(envelope.Envelope)
	s.Require().True(ok)
	plain, err := envelope.Open(stored, testKey)
	s.Require().NoError(err)
	s.Equal(suffix, plain)

	state, err := s.service.State(s.ctx, s.session)
	s.Require().NoError(err)
	s.Equal(map[string]any{"sealed": true}, state.Wizard.Slices[wizard.SliceInsured][FieldResidentNumber])
	s.Contains(s.auditor.actions(), audit.ActionFieldSealed)
}

func (s *ServiceSuite) TestConfirmRequiresResidentFront() {
	s.typeDigits(FieldResidentNumber, "1234567")
	view, err := s.service.InputAction(s.ctx, s.session, FieldResidentNumber, KeyConfirm, "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(secureinput.StateEditing, view.State)
}

func (s *ServiceSuite) TestConfirmWithoutKey() {
	s.keys.mu.Lock()
	s.keys.key = nil
	s.keys.mu.Unlock()

	s.typeDigits(FieldAccountNumber, "110234567890")
	_, err := s.service.InputAction(s.ctx, s.session, FieldAccountNumber, KeyConfirm, "")
	s.True(dErrors.HasCode(err, dErrors.CodeKeyUnavailable))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.SealFailures.WithLabelValues(FieldAccountNumber, "key_unavailable")))
	s.Contains(s.auditor.actions(), audit.ActionSealFailed)

	sess := s.service.lookup(s.ctx, s.session)
	s.Empty(sess.store.Slice(wizard.SliceAccept))
}

func (s *ServiceSuite) TestKeypadErrors() {
	_, err := s.service.InputAction(s.ctx, s.session, FieldAccountNumber, KeyPress, "1")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = s.service.InputAction(s.ctx, s.session, "cardNumber", KeyOpen, "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.typeDigits(FieldAccountNumber, "")
	_, err = s.service.InputAction(s.ctx, s.session, FieldAccountNumber, KeyPress, "12")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestSaveSliceRejectsSecureFields() {
	_, err := s.service.SaveSlice(s.ctx, s.session, "accept", map[string]any{FieldAccountNumber: "110234567890"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.SaveSlice(s.ctx, s.session, "payment", map[string]any{"bank": "x"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestUserNameFollowsReceiptType() {
	_, err := s.service.SaveSlice(s.ctx, s.session, "claim", map[string]any{"name": "Parent"})
	s.Require().NoError(err)
	_, err = s.service.SetReceiptType(s.ctx, s.session, "self")
	s.Require().NoError(err)
	sess := s.service.lookup(s.ctx, s.session)
	s.Equal("Parent", sess.store.UserName())

	reset, err := s.service.SetReceiptType(s.ctx, s.session, "minorChild")
	s.Require().NoError(err)
	s.True(reset)
	_, err = s.service.SaveSlice(s.ctx, s.session, "insured", map[string]any{"name": "Child"})
	s.Require().NoError(err)
	s.Equal("Child", sess.store.UserName())

	_, err = s.service.SetReceiptType(s.ctx, s.session, "grandparent")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestSwitchDropsBoundInputs() {
	_, err := s.service.SetReceiptType(s.ctx, s.session, "self")
	s.Require().NoError(err)
	s.typeDigits(FieldAccountNumber, "110234567890")
	_, err = s.service.InputAction(s.ctx, s.session, FieldAccountNumber, KeyConfirm, "")
	s.Require().NoError(err)

	reset, err := s.service.SetReceiptType(s.ctx, s.session, "minorChild")
	s.Require().NoError(err)
	s.True(reset)

	view, err := s.service.InputView(s.ctx, s.session, FieldAccountNumber)
	s.Require().NoError(err)
	s.False(view.Sealed)
	s.Equal(0, view.Length)
	s.Contains(s.auditor.actions(), audit.ActionReceiptSwitch)
}

// gatedSealer parks every Seal call until release is closed.
type gatedSealer struct {
	inner   secureinput.Sealer
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSealer) Seal(ctx context.Context, plaintext string) (envelope.Envelope, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.inner.Seal(ctx, plaintext)
}

func (s *ServiceSuite) TestConfirmInFlightDuringResetIsDiscarded() {
	resets := map[string]func(){
		"receipt type switch": func() {
			reset, err := s.service.SetReceiptType(s.ctx, s.session, "minorChild")
			s.Require().NoError(err)
			s.True(reset)
		},
		"reset all": func() {
			s.service.ResetAll(s.ctx, s.session)
		},
	}
	for name, interrupt := range resets {
		s.Run(name, func() {
			gate := &gatedSealer{
				inner:   envelope.NewSealer(s.keys),
				entered: make(chan struct{}),
				release: make(chan struct{}),
			}
			s.service = s.newServiceWith(gate)
			s.session = s.service.CreateSession(s.ctx)
			_, err := s.service.SetReceiptType(s.ctx, s.session, "self")
			s.Require().NoError(err)
			s.typeDigits(FieldAccountNumber, "110234567890")

			confirmed := make(chan error, 1)
			go func() {
				_, err := s.service.InputAction(s.ctx, s.session, FieldAccountNumber, KeyConfirm, "")
				confirmed <- err
			}()
			<-gate.entered
			interrupt()
			close(gate.release)

			err = <-confirmed
			s.True(dErrors.HasCode(err, dErrors.CodeConflict), "got %v", err)
			sess := s.service.lookup(s.ctx, s.session)
			s.NotContains(sess.store.Slice(wizard.SliceAccept), FieldAccountNumber)
			s.NotContains(s.auditor.actions(), audit.ActionFieldSealed)

			view, err := s.service.InputView(s.ctx, s.session, FieldAccountNumber)
			s.Require().NoError(err)
			s.Equal(secureinput.StateClosed, view.State)
			s.False(view.Sealed)
		})
	}
}

func (s *ServiceSuite) TestSubmitEnvelope() {
	env, err := envelope.Seal("110234567890", &testKey.PublicKey)
	s.Require().NoError(err)
	raw, err := json.Marshal(env)
	s.Require().NoError(err)

	s.Require().NoError(s.service.SubmitEnvelope(s.ctx, s.session, FieldAccountNumber, raw))
	view, err := s.service.InputView(s.ctx, s.session, FieldAccountNumber)
	s.Require().NoError(err)
	s.False(view.Sealed)

	state, err := s.service.State(s.ctx, s.session)
	s.Require().NoError(err)
	for _, in := range state.Inputs {
		if in.Field == FieldAccountNumber {
			s.True(in.Sealed)
		}
	}

	err = s.service.SubmitEnvelope(s.ctx, s.session, FieldAccountNumber, []byte(`{"encryptedKey":"a","encryptedData":"b","iv":"c"}`))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestContractsAreFetchedOncePerType() {
	_, err := s.service.Contracts(s.ctx, s.session)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	s.portal.contracts = []map[string]any{{"contractNo": "C-1"}}
	_, err = s.service.SetReceiptType(s.ctx, s.session, "self")
	s.Require().NoError(err)

	for range 2 {
		contracts, err := s.service.Contracts(s.ctx, s.session)
		s.Require().NoError(err)
		s.Equal([]wizard.Contract{{"contractNo": "C-1"}}, contracts)
	}
	s.Equal(1, s.portal.contractCalls)

	_, err = s.service.SetReceiptType(s.ctx, s.session, "minorChild")
	s.Require().NoError(err)
	_, err = s.service.Contracts(s.ctx, s.session)
	s.Require().NoError(err)
	s.Equal(2, s.portal.contractCalls)
}

func (s *ServiceSuite) TestSubmitMergesAndResets() {
	_, err := s.service.SetReceiptType(s.ctx, s.session, "self")
	s.Require().NoError(err)
	_, err = s.service.SaveSlice(s.ctx, s.session, "claim", map[string]any{"name": "Kim", "phone": "010"})
	s.Require().NoError(err)
	s.sealResidentNumber()
	_, err = s.service.SaveSlice(s.ctx, s.session, "accept", map[string]any{"phone": "011"})
	s.Require().NoError(err)
	_, err = s.service.Upload(s.ctx, s.session, "receipt", []upload.File{{Name: "r.jpg"}}, nil)
	s.Require().NoError(err)
	_, err = s.service.Upload(s.ctx, s.session, "diagnosis", []upload.File{{Name: "d.jpg"}}, nil)
	s.Require().NoError(err)

	res, err := s.service.Submit(s.ctx, s.session)
	s.Require().NoError(err)
	s.Equal(2, res.FileCount)

	s.Require().Len(s.portal.payloads, 1)
	payload := s.portal.payloads[0]
	s.Equal("011", payload["phone"])
	s.Equal("self", payload["receiptType"])
	s.Equal("Kim", payload["userName"])
	s.Equal([]string{"srv-d.jpg", "srv-r.jpg"}, payload["file_list"])
	s.IsType(envelope.Envelope{}, payload[FieldResidentNumber])

	attempts, err := s.attempts.ListBySession(s.ctx, s.session)
	s.Require().NoError(err)
	s.Require().Len(attempts, 1)
	s.Equal(ledger.OutcomeSubmitted, attempts[0].Outcome)
	s.Equal([]string{FieldResidentNumber}, attempts[0].SealedFields)

	state, err := s.service.State(s.ctx, s.session)
	s.Require().NoError(err)
	s.Empty(state.Wizard.ReceiptType)
	s.Empty(state.ImageNames)
	s.Empty(state.Wizard.Slices[wizard.SliceInsured])
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Submissions.WithLabelValues("submitted")))
}

func (s *ServiceSuite) TestSubmitRejectedKeepsSession() {
	s.portal.result = portal.ClaimResult{ErrCd: "E101", ErrMsg: "contract is not active"}
	_, err := s.service.SetReceiptType(s.ctx, s.session, "self")
	s.Require().NoError(err)

	_, err = s.service.Submit(s.ctx, s.session)
	s.True(dErrors.HasCode(err, dErrors.CodeRejected))
	de, _ := dErrors.As(err)
	s.Equal("contract is not active", de.Message)

	sess := s.service.lookup(s.ctx, s.session)
	s.Equal(wizard.ReceiptSelf, sess.store.ReceiptType())
	s.Contains(s.auditor.actions(), audit.ActionClaimRejected)
}

func (s *ServiceSuite) TestSubmitTransportFailure() {
	s.portal.err = &portal.NetworkError{Op: "submit claim", URL: "http://backend", Err: errors.New("refused")}
	_, err := s.service.SetReceiptType(s.ctx, s.session, "self")
	s.Require().NoError(err)

	_, err = s.service.Submit(s.ctx, s.session)
	s.True(dErrors.HasCode(err, dErrors.CodeNetwork))
	attempts, _ := s.attempts.ListBySession(s.ctx, s.session)
	s.Require().Len(attempts, 1)
	s.Equal(ledger.OutcomeFailed, attempts[0].Outcome)
}

func (s *ServiceSuite) TestSubmitRequiresReceiptType() {
	_, err := s.service.Submit(s.ctx, s.session)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Empty(s.portal.payloads)
}

func (s *ServiceSuite) TestUploadFailureKeepsCommittedFiles() {
	res, err := s.service.Upload(s.ctx, s.session, "diagnosis",
		[]upload.File{{Name: "a.pdf"}, {Name: "broken.pdf"}, {Name: "c.pdf"}}, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeUploadFailed))
	var upErr *upload.Error
	s.Require().ErrorAs(err, &upErr)
	s.Equal([]string{"srv-a.pdf"}, upErr.Committed)
	s.Len(res.Committed, 1)
	s.Equal([]string{"a.pdf"}, s.uploaded)
	s.Contains(s.auditor.actions(), audit.ActionUploadFailed)

	_, err = s.service.RemoveUpload(s.ctx, s.session, "diagnosis", 0)
	s.Require().NoError(err)
	_, err = s.service.RemoveUpload(s.ctx, s.session, "diagnosis", 0)
	s.Error(err)
}

func (s *ServiceSuite) TestSessionRestoredFromStore() {
	_, err := s.service.SetReceiptType(s.ctx, s.session, "self")
	s.Require().NoError(err)
	_, err = s.service.SaveSlice(s.ctx, s.session, "claim", map[string]any{"name": "Kim"})
	s.Require().NoError(err)
	_, err = s.service.Upload(s.ctx, s.session, "receipt", []upload.File{{Name: "r.jpg"}}, nil)
	s.Require().NoError(err)

	restarted := s.newService()
	state, err := restarted.State(s.ctx, s.session)
	s.Require().NoError(err)
	s.Equal(wizard.ReceiptSelf, state.Wizard.ReceiptType)
	s.Equal("Kim", state.Wizard.UserName)
	s.Equal([]string{"srv-r.jpg"}, state.ImageNames)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.SessionsRestored))
}

func (s *ServiceSuite) TestResetAll() {
	_, err := s.service.SetReceiptType(s.ctx, s.session, "self")
	s.Require().NoError(err)
	_, err = s.service.Upload(s.ctx, s.session, "receipt", []upload.File{{Name: "r.jpg"}}, nil)
	s.Require().NoError(err)

	s.service.ResetAll(s.ctx, s.session)
	state, err := s.service.State(s.ctx, s.session)
	s.Require().NoError(err)
	s.Empty(state.Wizard.ReceiptType)
	s.Empty(state.ImageNames)
	s.Contains(s.auditor.actions(), audit.ActionWizardReset)
}

func TestBuildPayloadLaterSlicesWin(t *testing.T) {
	snap := wizard.Snapshot{
		Slices: map[wizard.SliceName]wizard.Slice{
			wizard.SliceClaim:   {"a": 1, "b": 1},
			wizard.SliceInsured: {"b": 2},
			wizard.SliceType:    {"c": 3},
			wizard.SliceAccept:  {"a": 4},
		},
		ReceiptType: wizard.ReceiptSelf,
	}
	payload, sealed := buildPayload(snap, nil)
	assert.Equal(t, 4, payload["a"])
	assert.Equal(t, 2, payload["b"])
	assert.Equal(t, []string{}, payload["file_list"])
	assert.Empty(t, sealed)
}

func TestRestoreKeepsEarlyAnswersOfALongSession(t *testing.T) {
	ctx := context.Background()
	store := sessionstore.NewMemory(300 * time.Millisecond)
	keys := &keySource{key: &testKey.PublicKey}
	uploader := upload.UploaderFunc(func(context.Context, []byte, upload.File) (string, error) {
		return "", errors.New("unused")
	})
	newService := func() *Service {
		return NewService(store, envelope.NewSealer(keys), uploader, &fakePortal{})
	}

	live := newService()
	id := live.CreateSession(ctx)
	_, err := live.SaveSlice(ctx, id, "claim", map[string]any{"name": "kim", "accidentDate": "2026-01-01"})
	require.NoError(t, err)
	_, err = live.SetReceiptType(ctx, id, "self")
	require.NoError(t, err)
	for range 5 {
		time.Sleep(100 * time.Millisecond)
		_, err = live.SaveSlice(ctx, id, "accept", map[string]any{"bank": "03"})
		require.NoError(t, err)
	}

	state, err := newService().State(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, wizard.ReceiptSelf, state.Wizard.ReceiptType)
	assert.Equal(t, wizard.Slice{"name": "kim", "accidentDate": "2026-01-01"}, state.Wizard.Slices[wizard.SliceClaim])
	assert.Equal(t, wizard.Slice{"bank": "03"}, state.Wizard.Slices[wizard.SliceAccept])
	assert.Equal(t, "kim", state.Wizard.UserName)
}
