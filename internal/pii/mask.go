package pii

import (
	"fmt"
	"strings"
)

// MaskChar replaces hidden digits.
const MaskChar = '*'

// Kind selects the masking and length rule for a secure field.
type Kind string

const (
	KindRRNSuffix Kind = "rrn_suffix"
	KindRRNFull   Kind = "rrn_full"
	KindAccount   Kind = "account"
	KindPlain     Kind = "plain"
)

// Rule describes how a field is capped and rendered.
type Rule struct {
	// VisiblePrefix leading characters are always rendered in plaintext.
	VisiblePrefix int
	// MaxLen caps the draft.
	MaxLen int
	// Sensitive fields are sealed on confirm.
	Sensitive bool
}

var rules = map[Kind]Rule{
	KindRRNSuffix: {VisiblePrefix: 1, MaxLen: 7, Sensitive: true},
	KindRRNFull:   {VisiblePrefix: 6, MaxLen: RRNLength, Sensitive: true},
	KindAccount:   {VisiblePrefix: 3, MaxLen: 14, Sensitive: true},
	KindPlain:     {VisiblePrefix: 0, MaxLen: 20},
}

// RuleFor returns the rule for kind.
func RuleFor(kind Kind) (Rule, error) {
	r, ok := rules[kind]
	if !ok {
		return Rule{}, fmt.Errorf("unknown field kind %q", kind)
	}
	return r, nil
}

// MaskEditing renders a draft while it is being typed: the visible prefix and
// the most recent digit stay readable, everything else is masked.
func (r Rule) MaskEditing(draft string) string {
	last := len(draft) - 1
	var b strings.Builder
	b.Grow(len(draft))
	for i := 0; i < len(draft); i++ {
		if i < r.VisiblePrefix || i == last {
			b.WriteByte(draft[i])
			continue
		}
		b.WriteByte(MaskChar)
	}
	return b.String()
}

// MaskSummary renders a confirmed value: only the visible prefix is readable.
func (r Rule) MaskSummary(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		if i < r.VisiblePrefix {
			b.WriteByte(value[i])
			continue
		}
		b.WriteByte(MaskChar)
	}
	return b.String()
}
