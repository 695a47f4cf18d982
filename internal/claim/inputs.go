package claim

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"claimgate/internal/audit"
	"claimgate/internal/envelope"
	"claimgate/internal/secureinput"
	"claimgate/internal/wizard"
	dErrors "claimgate/pkg/domain-errors"
	"claimgate/pkg/platform/sentinel"
)

// KeyAction is one keypad interaction.
type KeyAction string

const (
	KeyOpen      KeyAction = "open"
	KeyPress     KeyAction = "press"
	KeyBackspace KeyAction = "backspace"
	KeyClear     KeyAction = "clear"
	KeyConfirm   KeyAction = "confirm"
	KeyCancel    KeyAction = "cancel"
)

func ParseKeyAction(s string) (KeyAction, error) {
	switch a := KeyAction(s); a {
	case KeyOpen, KeyPress, KeyBackspace, KeyClear, KeyConfirm, KeyCancel:
		return a, nil
	}
	return "", dErrors.New(dErrors.CodeNotFound, "unknown keypad action: "+s)
}

// InputView returns the masked view of a secure input.
func (s *Service) InputView(ctx context.Context, sessionID uuid.UUID, fieldName string) (secureinput.View, error) {
	field, err := SecureFieldFor(fieldName)
	if err != nil {
		return secureinput.View{}, err
	}
	sess := s.lookup(ctx, sessionID)
	in, err := s.input(sess, field)
	if err != nil {
		return secureinput.View{}, err
	}
	return in.View(), nil
}

// InputAction applies one keypad action to a secure input. key is only read
// for KeyPress and must be a single digit.
func (s *Service) InputAction(ctx context.Context, sessionID uuid.UUID, fieldName string, action KeyAction, key string) (secureinput.View, error) {
	field, err := SecureFieldFor(fieldName)
	if err != nil {
		return secureinput.View{}, err
	}
	sess := s.lookup(ctx, sessionID)
	in, err := s.input(sess, field)
	if err != nil {
		return secureinput.View{}, err
	}

	switch action {
	case KeyOpen:
		in.Open()
	case KeyPress:
		if len(key) != 1 {
			err = secureinput.ErrInvalidKey
			break
		}
		err = in.Press(key[0])
	case KeyBackspace:
		err = in.Backspace()
	case KeyClear:
		err = in.Clear()
	case KeyConfirm:
		err = in.Confirm(ctx)
		if err != nil {
			err = s.confirmError(ctx, sessionID, field, err)
		}
	case KeyCancel:
		in.Cancel()
	default:
		err = dErrors.New(dErrors.CodeNotFound, "unknown keypad action: "+string(action))
	}
	if errors.Is(err, sentinel.ErrInvalidState) {
		err = dErrors.Wrap(err, dErrors.CodeConflict, "open the input first")
	}
	return in.View(), err
}

func (s *Service) input(sess *session, field SecureField) (*secureinput.Input, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if in, ok := sess.inputs[field.Name]; ok {
		return in, nil
	}
	opts := []secureinput.Option{
		secureinput.WithPlaceholder(field.Placeholder),
		secureinput.WithLogger(s.logger),
		secureinput.WithOnCommit(s.commitHook(sess, field, sess.store.Generation())),
	}
	if field.validator != nil {
		opts = append(opts, secureinput.WithValidator(field.validator(sess.store)))
	}
	in, err := secureinput.New(field.Name, field.Kind, s.sealer, opts...)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "secure input unavailable")
	}
	sess.inputs[field.Name] = in
	return in, nil
}

// commitHook stores the sealed envelope in the field's slice. The plaintext
// never leaves the input. gen is the store generation the input was created
// in; an envelope sealed before a receipt-type switch or reset is refused.
func (s *Service) commitHook(sess *session, field SecureField, gen uint64) func(context.Context, secureinput.Commit) error {
	return func(ctx context.Context, c secureinput.Commit) error {
		if c.Envelope == nil {
			return dErrors.New(dErrors.CodeInternal, "secure field committed without an envelope")
		}
		if _, err := sess.store.SaveSliceIf(ctx, gen, field.Slice, wizard.Slice{field.Name: *c.Envelope}); err != nil {
			s.logger.WarnContext(ctx, "discarding envelope sealed before a reset",
				"session_id", sess.id.String(), "field", field.Name)
			return err
		}
		s.emit(ctx, sess.id, audit.ActionFieldSealed, "", map[string]string{"field": field.Name})
		return nil
	}
}

// confirmError maps seal failures to client codes. Validation errors pass
// through unchanged.
func (s *Service) confirmError(ctx context.Context, sessionID uuid.UUID, field SecureField, err error) error {
	var reason string
	switch {
	case errors.Is(err, envelope.ErrKeyUnavailable):
		reason = "key_unavailable"
		err = dErrors.Wrap(err, dErrors.CodeKeyUnavailable, "invalid session, please retry")
	case errors.Is(err, envelope.ErrEncryption):
		reason = "encryption"
		err = dErrors.Wrap(err, dErrors.CodeEncryptionFailed, "could not protect the value, please try again")
	default:
		return err
	}
	if s.metrics != nil {
		s.metrics.SealFailures.WithLabelValues(field.Name, reason).Inc()
	}
	s.emit(ctx, sessionID, audit.ActionSealFailed, reason, map[string]string{"field": field.Name})
	return err
}
