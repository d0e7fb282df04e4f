package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const timeOutErrorTag = "TimeOutError"

// ErrInvalidResponse is returned when a terminal result cannot be decoded.
var ErrInvalidResponse = errors.New("invalid response")

// Response is the terminal result of a suspended request: either the answer
// delivered by a worker or a timeout. Once produced it never changes.
type Response struct {
	answer   string
	timedOut bool
}

// Answer builds the delivered-answer variant.
func Answer(text string) Response {
	return Response{answer: text}
}

// TimeOutError builds the timeout variant.
func TimeOutError() Response {
	return Response{timedOut: true}
}

// IsTimeout reports whether the request expired without an answer.
func (r Response) IsTimeout() bool {
	return r.timedOut
}

// Answer returns the delivered text and whether the response carries one.
func (r Response) Answer() (string, bool) {
	if r.timedOut {
		return "", false
	}
	return r.answer, true
}

func (r Response) String() string {
	if r.timedOut {
		return timeOutErrorTag
	}
	return fmt.Sprintf("Answer(%q)", r.answer)
}

// MarshalJSON encodes {"Answer":"<text>"} or "TimeOutError".
func (r Response) MarshalJSON() ([]byte, error) {
	if r.timedOut {
		return json.Marshal(timeOutErrorTag)
	}
	return json.Marshal(map[string]string{"Answer": r.answer})
}

// UnmarshalJSON decodes either tagged form.
func (r *Response) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var tag string
		if err := json.Unmarshal(b, &tag); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		if tag != timeOutErrorTag {
			return fmt.Errorf("%w: unknown variant %q", ErrInvalidResponse, tag)
		}
		*r = TimeOutError()
		return nil
	}

	var obj map[string]string
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	text, ok := obj["Answer"]
	if !ok || len(obj) != 1 {
		return fmt.Errorf("%w: expected a single Answer field", ErrInvalidResponse)
	}
	*r = Answer(text)
	return nil
}
