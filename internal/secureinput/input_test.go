package secureinput

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"claimgate/internal/envelope"
	"claimgate/internal/pii"
	dErrors "claimgate/pkg/domain-errors"
	"claimgate/pkg/platform/sentinel"
)

type recordingSealer struct {
	calls []string
	err   error
}

func (r *recordingSealer) Seal(_ context.Context, plaintext string) (envelope.Envelope, error) {
	r.calls = append(r.calls, plaintext)
	if r.err != nil {
		return envelope.Envelope{}, r.err
	}
	return envelope.Envelope{EncryptedKey: "k", EncryptedData: "d", IV: "i"}, nil
}

type InputSuite struct {
	suite.Suite
	sealer *recordingSealer
}

func TestInputSuite(t *testing.T) {
	suite.Run(t, new(InputSuite))
}

func (s *InputSuite) SetupTest() {
	s.sealer = &recordingSealer{}
}

func (s *InputSuite) newInput(kind pii.Kind, opts ...Option) *Input {
	in, err := New("residentNumber", kind, s.sealer, opts...)
	s.Require().NoError(err)
	return in
}

func (s *InputSuite) typeDigits(in *Input, digits string) {
	for i := 0; i < len(digits); i++ {
		s.Require().NoError(in.Press(digits[i]))
	}
}

func (s *InputSuite) TestConfirmSealsDraftExactlyOnce() {
	var commits []Commit
	in := s.newInput(pii.KindRRNSuffix, WithOnCommit(func(_ context.Context, c Commit) error {
		commits = append(commits, c)
		return nil
	}))

	in.Open()
	s.typeDigits(in, "1234563")
	s.Require().NoError(in.Confirm(context.Background()))

	s.Equal([]string{"1234563"}, s.sealer.calls)
	s.Equal("1234563", in.Value())
	s.Equal(StateClosed, in.State())
	s.Equal(OutcomeConfirmed, in.LastOutcome())
	s.Require().Len(commits, 1)
	s.Equal("residentNumber", commits[0].Field)
	s.NotNil(commits[0].Envelope)

	env, ok := in.Envelope()
	s.True(ok)
	s.Equal("k", env.EncryptedKey)
}

func (s *InputSuite) TestCancelRevertsToLastConfirmed() {
	in := s.newInput(pii.KindRRNSuffix)
	in.Open()
	s.typeDigits(in, "1111111")
	s.Require().NoError(in.Confirm(context.Background()))

	in.Open()
	s.typeDigits(in, "22")
	in.Cancel()

	s.Equal("1111111", in.Value())
	s.Equal(OutcomeCancelled, in.LastOutcome())
	s.Len(s.sealer.calls, 1, "cancel must never seal")
	s.Equal("1******", in.Display())
}

func (s *InputSuite) TestCancelBeforeAnyConfirmLeavesEmpty() {
	in := s.newInput(pii.KindRRNSuffix, WithPlaceholder("back 7 digits"))
	in.Open()
	s.typeDigits(in, "12345")
	in.Cancel()

	s.Empty(in.Value())
	s.Equal("back 7 digits", in.Display())
	_, ok := in.Envelope()
	s.False(ok)
	s.Empty(s.sealer.calls)
}

func (s *InputSuite) TestEditingDisplayRevealsPrefixAndLastDigit() {
	in := s.newInput(pii.KindRRNSuffix)
	in.Open()
	s.typeDigits(in, "1")
	s.Equal("1", in.Display())
	s.typeDigits(in, "23")
	s.Equal("1*3", in.Display())
	s.typeDigits(in, "4567")
	s.Equal("1*****7", in.Display())

	s.Require().NoError(in.Backspace())
	s.Equal("1****6", in.Display())
	s.Require().NoError(in.Clear())
	s.Equal("", in.Display())
}

func (s *InputSuite) TestDraftIsCapped() {
	in := s.newInput(pii.KindRRNSuffix)
	in.Open()
	s.typeDigits(in, "123456789")
	s.Equal(7, in.View().Length)

	capped := s.newInput(pii.KindAccount, WithMaxLength(4))
	capped.Open()
	s.typeDigits(capped, "123456")
	s.Equal(4, capped.View().Length)
}

func (s *InputSuite) TestRejectsNonDigits() {
	in := s.newInput(pii.KindRRNSuffix)
	in.Open()
	err := in.Press('a')
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	s.Equal(0, in.View().Length)
}

func (s *InputSuite) TestKeysRequireEditing() {
	in := s.newInput(pii.KindRRNSuffix)
	s.ErrorIs(in.Press('1'), sentinel.ErrInvalidState)
	s.ErrorIs(in.Backspace(), sentinel.ErrInvalidState)
	s.ErrorIs(in.Clear(), sentinel.ErrInvalidState)
	s.ErrorIs(in.Confirm(context.Background()), sentinel.ErrInvalidState)
}

func (s *InputSuite) TestValidatorFailureKeepsEditing() {
	rejected := dErrors.New(dErrors.CodeValidation, "bad number")
	in := s.newInput(pii.KindRRNSuffix, WithValidator(func(string) error { return rejected }))
	in.Open()
	s.typeDigits(in, "1234567")

	err := in.Confirm(context.Background())
	s.ErrorIs(err, rejected)
	s.Equal(StateEditing, in.State())
	s.Empty(in.Value())
	s.Empty(s.sealer.calls, "invalid drafts are never sealed")
}

func (s *InputSuite) TestSealFailureCommitsNothing() {
	s.sealer.err = &envelope.Error{Op: "seal", Err: envelope.ErrKeyUnavailable}
	committed := false
	in := s.newInput(pii.KindRRNSuffix, WithOnCommit(func(context.Context, Commit) error {
		committed = true
		return nil
	}))
	in.Open()
	s.typeDigits(in, "1234567")

	err := in.Confirm(context.Background())
	s.ErrorIs(err, envelope.ErrKeyUnavailable)
	s.False(committed)
	s.Equal(StateEditing, in.State())
	s.Empty(in.Value())
	s.Equal(7, in.View().Length, "draft survives for retry")
}

func (s *InputSuite) TestHookFailureCommitsNothing() {
	in := s.newInput(pii.KindRRNSuffix, WithOnCommit(func(context.Context, Commit) error {
		return errors.New("store down")
	}))
	in.Open()
	s.typeDigits(in, "1234567")

	s.Error(in.Confirm(context.Background()))
	s.Empty(in.Value())
	_, ok := in.Envelope()
	s.False(ok)
}

func (s *InputSuite) TestEmptyDraftIsRejected() {
	in := s.newInput(pii.KindRRNSuffix)
	in.Open()
	s.ErrorIs(in.Confirm(context.Background()), ErrEmpty)
}

func TestPlainKindIsNotSealed(t *testing.T) {
	in, err := New("phoneTail", pii.KindPlain, nil)
	require.NoError(t, err)
	in.Open()
	require.NoError(t, in.Press('4'))
	require.NoError(t, in.Press('2'))
	require.NoError(t, in.Confirm(context.Background()))

	assert.Equal(t, "42", in.Value())
	_, ok := in.Envelope()
	assert.False(t, ok)
	assert.Equal(t, "**", in.Display())
}

func TestSensitiveKindNeedsSealer(t *testing.T) {
	_, err := New("accountNumber", pii.KindAccount, nil)
	assert.Error(t, err)

	_, err = New("x", pii.Kind("bogus"), nil)
	assert.Error(t, err)
}
