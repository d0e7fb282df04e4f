package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Event envelope constants for the NEP-297 log format.
const (
	EventLogPrefix   = "EVENT_JSON:"
	EventStandard    = "nep297"
	EventVersion     = "1.0.0"
	EventTaskRequest = "task-request"
)

// ErrNotEvent is returned when a log line does not carry an event.
var ErrNotEvent = errors.New("log line is not an event")

// EventEnvelope is the NEP-297 wrapper around event data.
type EventEnvelope struct {
	Standard string          `json:"standard"`
	Version  string          `json:"version"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data"`
}

// TaskRequestEvent announces a pending request and the token that answers it.
// It is broadcast once per suspension and never stored in contract state.
type TaskRequestEvent struct {
	ModelName string  `json:"model_name"`
	Prompt    string  `json:"prompt"`
	YieldID   YieldID `json:"yield_id"`
}

// LogLine renders the event as an EVENT_JSON log line.
func (e TaskRequestEvent) LogLine() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal event data: %w", err)
	}
	env, err := json.Marshal(EventEnvelope{
		Standard: EventStandard,
		Version:  EventVersion,
		Event:    EventTaskRequest,
		Data:     data,
	})
	if err != nil {
		return "", fmt.Errorf("marshal event envelope: %w", err)
	}
	return EventLogPrefix + string(env), nil
}

// ParseEventLog extracts the envelope from an EVENT_JSON log line.
func ParseEventLog(line string) (EventEnvelope, error) {
	raw, ok := strings.CutPrefix(line, EventLogPrefix)
	if !ok {
		return EventEnvelope{}, ErrNotEvent
	}
	var env EventEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return EventEnvelope{}, fmt.Errorf("decode event envelope: %w", err)
	}
	if env.Standard == "" || env.Event == "" {
		return EventEnvelope{}, fmt.Errorf("decode event envelope: missing standard or event")
	}
	return env, nil
}

// DecodeTaskRequest decodes the data of a task-request envelope.
func (e EventEnvelope) DecodeTaskRequest() (TaskRequestEvent, error) {
	if e.Event != EventTaskRequest {
		return TaskRequestEvent{}, fmt.Errorf("unexpected event %q", e.Event)
	}
	var ev TaskRequestEvent
	if err := json.Unmarshal(e.Data, &ev); err != nil {
		return TaskRequestEvent{}, fmt.Errorf("decode task-request data: %w", err)
	}
	return ev, nil
}
