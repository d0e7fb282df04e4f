package model

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// YieldIDSize is the byte length of a correlation token.
const YieldIDSize = 32

// ErrInvalidYieldID is returned when bytes or text cannot be converted to a YieldID.
var ErrInvalidYieldID = errors.New("invalid yield id")

// YieldID is the opaque correlation token naming one suspension point.
// Only the host creates them; everyone else reads and republishes them.
type YieldID [YieldIDSize]byte

// YieldIDFromBytes converts raw register contents into a YieldID.
func YieldIDFromBytes(b []byte) (YieldID, error) {
	var id YieldID
	if len(b) != YieldIDSize {
		return id, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidYieldID, len(b), YieldIDSize)
	}
	copy(id[:], b)
	return id, nil
}

// ParseYieldID decodes a hex-encoded YieldID.
func ParseYieldID(s string) (YieldID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return YieldID{}, fmt.Errorf("%w: %v", ErrInvalidYieldID, err)
	}
	return YieldIDFromBytes(b)
}

// IsZero reports whether the id is all zero bytes.
func (y YieldID) IsZero() bool {
	return y == YieldID{}
}

func (y YieldID) String() string {
	return hex.EncodeToString(y[:])
}

// MarshalText encodes the id as lowercase hex.
func (y YieldID) MarshalText() ([]byte, error) {
	return []byte(y.String()), nil
}

// UnmarshalText decodes a hex-encoded id.
func (y *YieldID) UnmarshalText(b []byte) error {
	id, err := ParseYieldID(string(b))
	if err != nil {
		return err
	}
	*y = id
	return nil
}
