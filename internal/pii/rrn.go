// Package pii validates and masks resident registration numbers and account
// numbers before they are sealed.
package pii

import (
	dErrors "claimgate/pkg/domain-errors"
)

// RRNLength is the digit count of a full resident registration number.
const RRNLength = 13

var rrnWeights = [12]int{2, 3, 4, 5, 6, 7, 8, 9, 2, 3, 4, 5}

// Validate reports whether s is a 13-digit resident registration number whose
// last digit matches the weighted checksum of the first twelve. Any other
// length or any non-digit character yields false.
func Validate(s string) bool {
	if len(s) != RRNLength {
		return false
	}
	if !isDigits(s) {
		return false
	}
	check, ok := CheckDigit(s[:12])
	if !ok {
		return false
	}
	return check == int(s[12]-'0')
}

// CheckDigit computes (11 - sum%11) % 10 over twelve digits.
func CheckDigit(first12 string) (int, bool) {
	if len(first12) != 12 || !isDigits(first12) {
		return 0, false
	}
	sum := 0
	for i, w := range rrnWeights {
		sum += int(first12[i]-'0') * w
	}
	return (11 - sum%11) % 10, true
}

// ValidateRRN joins the birth-date front (6 digits) and the suffix (7 digits)
// and returns a validation error when the number is structurally invalid.
func ValidateRRN(front, suffix string) error {
	if len(front) != 6 || !isDigits(front) {
		return dErrors.New(dErrors.CodeValidation, "resident number front must be 6 digits")
	}
	if len(suffix) != 7 || !isDigits(suffix) {
		return dErrors.New(dErrors.CodeValidation, "resident number suffix must be 7 digits")
	}
	if !Validate(front + suffix) {
		return dErrors.New(dErrors.CodeValidation, "resident number checksum mismatch")
	}
	return nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
