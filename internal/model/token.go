package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cosmossdk.io/math"
)

const nearDecimals = 24

var (
	oneMilliNEAR = math.NewUintFromString("1000000000000000000000")
	tenMilliNEAR = oneMilliNEAR.MulUint64(10)
	oneNEAR      = oneMilliNEAR.MulUint64(1000)
	maxMilliNEAR = oneMilliNEAR.MulUint64(999)
)

// ErrInvalidToken is returned when a token amount cannot be parsed.
var ErrInvalidToken = errors.New("invalid token amount")

// Token is an amount of NEAR held as an unsigned yoctoNEAR integer.
// The zero value is a valid zero amount.
type Token struct {
	yocto math.Uint
}

// NewToken returns an amount of the given yoctoNEAR.
func NewToken(yocto uint64) Token {
	return Token{yocto: math.NewUint(yocto)}
}

// NEAR returns an amount of whole NEAR.
func NEAR(n uint64) Token {
	return Token{yocto: oneNEAR.MulUint64(n)}
}

// ParseToken parses either a bare yoctoNEAR integer ("1000") or a decimal
// NEAR amount with a unit suffix ("1.5 NEAR").
func ParseToken(s string) (Token, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Token{}, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	upper := strings.ToUpper(s)
	if !strings.HasSuffix(upper, "NEAR") {
		u, err := math.ParseUint(s)
		if err != nil {
			return Token{}, fmt.Errorf("%w: %q", ErrInvalidToken, s)
		}
		return Token{yocto: u}, nil
	}

	num := strings.TrimSpace(s[:len(s)-len("NEAR")])
	whole, frac, _ := strings.Cut(num, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > nearDecimals {
		return Token{}, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidToken, s, nearDecimals)
	}
	frac += strings.Repeat("0", nearDecimals-len(frac))
	u, err := math.ParseUint(strings.TrimLeft(whole+frac, "0") + "0")
	if err != nil {
		return Token{}, fmt.Errorf("%w: %q", ErrInvalidToken, s)
	}
	// The trailing "0" guards the all-zero case and is divided back out.
	return Token{yocto: u.QuoUint64(10)}, nil
}

// Yocto returns the amount in yoctoNEAR.
func (t Token) Yocto() math.Uint {
	if t.yocto == (math.Uint{}) {
		return math.ZeroUint()
	}
	return t.yocto
}

// IsZero reports whether the amount is zero.
func (t Token) IsZero() bool {
	return t.Yocto().IsZero()
}

// Add returns t + o.
func (t Token) Add(o Token) Token {
	return Token{yocto: t.Yocto().Add(o.Yocto())}
}

// Equal reports whether both amounts are the same.
func (t Token) Equal(o Token) bool {
	return t.Yocto().Equal(o.Yocto())
}

// String renders the amount in NEAR the way wallets do: "0 NEAR",
// "<0.001 NEAR", "0.123 NEAR" up to 0.999 NEAR, and two decimals otherwise.
// Fractions are rounded up.
func (t Token) String() string {
	y := t.Yocto()
	switch {
	case y.IsZero():
		return "0 NEAR"
	case y.LT(oneMilliNEAR):
		return "<0.001 NEAR"
	case y.LTE(maxMilliNEAR):
		milli := y.Add(oneMilliNEAR).Sub(math.OneUint()).Quo(oneMilliNEAR)
		return fmt.Sprintf("0.%03d NEAR", milli.Uint64())
	default:
		cents := y.Add(tenMilliNEAR).Sub(math.OneUint()).Quo(tenMilliNEAR)
		return fmt.Sprintf("%s.%02d NEAR", cents.QuoUint64(100).String(), cents.Mod(math.NewUint(100)).Uint64())
	}
}

// MarshalJSON encodes the amount as a decimal yoctoNEAR string.
func (t Token) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Yocto().String())
}

// UnmarshalJSON accepts a decimal yoctoNEAR string or a "<n> NEAR" string.
func (t *Token) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: must be a string", ErrInvalidToken)
	}
	parsed, err := ParseToken(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
