package claim

import (
	"sort"

	"claimgate/internal/pii"
	"claimgate/internal/secureinput"
	"claimgate/internal/wizard"
	dErrors "claimgate/pkg/domain-errors"
)

// SecureField binds a keypad input to the slice its sealed envelope lands in.
type SecureField struct {
	Name        string
	Kind        pii.Kind
	Slice       wizard.SliceName
	Placeholder string
	// validator builds the pre-seal check from the session's current answers.
	validator func(store *wizard.Store) secureinput.Validator
}

const (
	FieldResidentNumber = "residentNumber"
	FieldAccountNumber  = "accountNumber"

	// residentFrontKey holds the plain birth-date half the suffix is checked against.
	residentFrontKey = "residentFront"
)

var secureFields = map[string]SecureField{
	FieldResidentNumber: {
		Name:        FieldResidentNumber,
		Kind:        pii.KindRRNSuffix,
		Slice:       wizard.SliceInsured,
		Placeholder: "Enter the last 7 digits",
		validator:   residentNumberValidator,
	},
	FieldAccountNumber: {
		Name:        FieldAccountNumber,
		Kind:        pii.KindAccount,
		Slice:       wizard.SliceAccept,
		Placeholder: "Enter your account number",
	},
}

// SecureFieldFor returns the field registered under name.
func SecureFieldFor(name string) (SecureField, error) {
	f, ok := secureFields[name]
	if !ok {
		return SecureField{}, dErrors.New(dErrors.CodeNotFound, "unknown secure field: "+name)
	}
	return f, nil
}

// SecureFieldNames lists the registered fields in a stable order.
func SecureFieldNames() []string {
	names := make([]string, 0, len(secureFields))
	for name := range secureFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func fieldsInSlices(slices ...wizard.SliceName) []string {
	var out []string
	for _, name := range SecureFieldNames() {
		for _, s := range slices {
			if secureFields[name].Slice == s {
				out = append(out, name)
			}
		}
	}
	return out
}

func residentNumberValidator(store *wizard.Store) secureinput.Validator {
	return func(draft string) error {
		front, _ := store.Slice(wizard.SliceInsured)[residentFrontKey].(string)
		if front == "" {
			return dErrors.New(dErrors.CodeValidation, "enter the first 6 digits of the resident number first")
		}
		return pii.ValidateRRN(front, draft)
	}
}
