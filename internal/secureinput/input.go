// Package secureinput buffers keypad digits for a sensitive field and only
// commits them, sealed, on explicit confirmation.
package secureinput

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"claimgate/internal/envelope"
	"claimgate/internal/pii"
	dErrors "claimgate/pkg/domain-errors"
	"claimgate/pkg/platform/sentinel"
)

// State of the input. Confirmed and Cancelled are transitions back to Closed;
// LastOutcome reports which one happened.
type State string

const (
	StateClosed  State = "closed"
	StateEditing State = "editing"
)

type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeCancelled Outcome = "cancelled"
)

var (
	ErrNotEditing = fmt.Errorf("%w: input is not being edited", sentinel.ErrInvalidState)
	ErrInvalidKey = dErrors.New(dErrors.CodeInvalidInput, "only digits can be entered")
	ErrEmpty      = dErrors.New(dErrors.CodeValidation, "value is required")
)

// Sealer encrypts a confirmed draft.
type Sealer interface {
	Seal(ctx context.Context, plaintext string) (envelope.Envelope, error)
}

// Validator rejects a draft before it is sealed.
type Validator func(draft string) error

// Commit is handed to the OnCommit hook after a successful confirm. Envelope
// is nil for non-sensitive kinds.
type Commit struct {
	Field    string
	Value    string
	Envelope *envelope.Envelope
}

// View is a render-safe snapshot of the input.
type View struct {
	Field       string   `json:"field"`
	Kind        pii.Kind `json:"kind"`
	State       State    `json:"state"`
	Display     string   `json:"display"`
	Length      int      `json:"length"`
	MaxLength   int      `json:"max_length"`
	Sealed      bool     `json:"sealed"`
	LastOutcome Outcome  `json:"last_outcome,omitempty"`
}

type Input struct {
	field       string
	kind        pii.Kind
	rule        pii.Rule
	sealer      Sealer
	validate    Validator
	onCommit    func(ctx context.Context, c Commit) error
	placeholder string
	logger      *slog.Logger

	mu      sync.Mutex
	state   State
	draft   []byte
	value   string
	sealed  *envelope.Envelope
	outcome Outcome
}

type Option func(*Input)

// WithMaxLength overrides the kind's default cap.
func WithMaxLength(n int) Option {
	return func(in *Input) {
		if n > 0 {
			in.rule.MaxLen = n
		}
	}
}

func WithValidator(v Validator) Option {
	return func(in *Input) {
		in.validate = v
	}
}

// WithOnCommit registers the hook run after a successful confirm. The hook runs
// while the input is locked and must not call back into it. A hook error
// aborts the commit.
func WithOnCommit(fn func(ctx context.Context, c Commit) error) Option {
	return func(in *Input) {
		in.onCommit = fn
	}
}

func WithPlaceholder(p string) Option {
	return func(in *Input) {
		in.placeholder = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(in *Input) {
		in.logger = logger
	}
}

// New creates a closed, empty input. Sensitive kinds require a sealer.
func New(field string, kind pii.Kind, sealer Sealer, opts ...Option) (*Input, error) {
	rule, err := pii.RuleFor(kind)
	if err != nil {
		return nil, err
	}
	if rule.Sensitive && sealer == nil {
		return nil, fmt.Errorf("field %s: sensitive kind %s needs a sealer", field, kind)
	}
	in := &Input{
		field:  field,
		kind:   kind,
		rule:   rule,
		sealer: sealer,
		logger: slog.Default(),
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in, nil
}

// Open starts a fresh draft. Opening an input already being edited keeps its draft.
func (in *Input) Open() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state == StateEditing {
		return
	}
	in.state = StateEditing
	in.draft = in.draft[:0]
}

// Press appends a digit. Presses beyond the cap are ignored.
func (in *Input) Press(key byte) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state != StateEditing {
		return ErrNotEditing
	}
	if key < '0' || key > '9' {
		return ErrInvalidKey
	}
	if len(in.draft) >= in.rule.MaxLen {
		return nil
	}
	in.draft = append(in.draft, key)
	return nil
}

func (in *Input) Backspace() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state != StateEditing {
		return ErrNotEditing
	}
	if len(in.draft) > 0 {
		in.draft = in.draft[:len(in.draft)-1]
	}
	return nil
}

func (in *Input) Clear() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state != StateEditing {
		return ErrNotEditing
	}
	in.draft = in.draft[:0]
	return nil
}

// Confirm validates the draft, seals it once for sensitive kinds, commits and
// closes. Any failure leaves the input in Editing with the draft intact and the
// previous value untouched.
func (in *Input) Confirm(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state != StateEditing {
		return ErrNotEditing
	}
	draft := string(in.draft)
	if draft == "" {
		return ErrEmpty
	}
	if in.validate != nil {
		if err := in.validate(draft); err != nil {
			return err
		}
	}

	var sealed *envelope.Envelope
	if in.rule.Sensitive {
		env, err := in.sealer.Seal(ctx, draft)
		if err != nil {
			var encErr *envelope.Error
			if errors.As(err, &encErr) {
				in.logger.ErrorContext(ctx, "secure input seal failed", append([]any{"field", in.field, "error", err}, encErr.LogAttrs()...)...)
			} else {
				in.logger.ErrorContext(ctx, "secure input seal failed", "field", in.field, "error", err)
			}
			return err
		}
		sealed = &env
	}

	if in.onCommit != nil {
		if err := in.onCommit(ctx, Commit{Field: in.field, Value: draft, Envelope: sealed}); err != nil {
			return err
		}
	}

	in.value = draft
	in.sealed = sealed
	in.draft = in.draft[:0]
	in.state = StateClosed
	in.outcome = OutcomeConfirmed
	return nil
}

// Cancel discards the draft. The committed value is unchanged.
func (in *Input) Cancel() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state != StateEditing {
		return
	}
	in.draft = in.draft[:0]
	in.state = StateClosed
	in.outcome = OutcomeCancelled
}

// Display renders the draft while editing, otherwise the masked committed value.
func (in *Input) Display() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.displayLocked()
}

func (in *Input) displayLocked() string {
	if in.state == StateEditing {
		return in.rule.MaskEditing(string(in.draft))
	}
	if in.value == "" {
		return in.placeholder
	}
	return in.rule.MaskSummary(in.value)
}

// Value is the last confirmed plaintext.
func (in *Input) Value() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.value
}

// Envelope is the sealed form of the last confirmed value, if any.
func (in *Input) Envelope() (envelope.Envelope, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.sealed == nil {
		return envelope.Envelope{}, false
	}
	return *in.sealed, true
}

func (in *Input) State() State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

func (in *Input) LastOutcome() Outcome {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.outcome
}

func (in *Input) Field() string {
	return in.field
}

func (in *Input) View() View {
	in.mu.Lock()
	defer in.mu.Unlock()
	length := len(in.value)
	if in.state == StateEditing {
		length = len(in.draft)
	}
	return View{
		Field:       in.field,
		Kind:        in.kind,
		State:       in.state,
		Display:     in.displayLocked(),
		Length:      length,
		MaxLength:   in.rule.MaxLen,
		Sealed:      in.sealed != nil,
		LastOutcome: in.outcome,
	}
}
