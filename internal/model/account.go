package model

import (
	"errors"
	"fmt"
	"regexp"
)

const (
	minAccountIDLen = 2
	maxAccountIDLen = 64
)

// accountIDPattern follows the NEAR account id rules: lowercase alphanumeric
// parts separated by '-', '_' or '.', with no leading, trailing or repeated
// separators.
var accountIDPattern = regexp.MustCompile(`^(([a-z\d]+[\-_])*[a-z\d]+\.)*([a-z\d]+[\-_])*[a-z\d]+$`)

// ErrInvalidAccountID is returned when an account id fails validation.
var ErrInvalidAccountID = errors.New("invalid account id")

// AccountID identifies an on-chain account (operator, performer, attestation center).
type AccountID string

// Validate checks the account id against the naming rules.
func (a AccountID) Validate() error {
	n := len(a)
	if n < minAccountIDLen || n > maxAccountIDLen {
		return fmt.Errorf("%w: %q must be %d-%d characters", ErrInvalidAccountID, string(a), minAccountIDLen, maxAccountIDLen)
	}
	if !accountIDPattern.MatchString(string(a)) {
		return fmt.Errorf("%w: %q", ErrInvalidAccountID, string(a))
	}
	return nil
}

func (a AccountID) String() string {
	return string(a)
}

// ParseAccountID validates s and returns it as an AccountID.
func ParseAccountID(s string) (AccountID, error) {
	a := AccountID(s)
	if err := a.Validate(); err != nil {
		return "", err
	}
	return a, nil
}
