package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/h4shk4t/validAI-Contract/internal/model"
)

// ErrStreamClosed is returned when the coordinator ends the event stream.
var ErrStreamClosed = errors.New("event stream closed by server")

const maxEventSize = 1 << 20

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	Type string
	Data string
}

// SubscribeTasks follows the task-request stream and calls fn for each
// announced request. It returns when ctx is done, the server closes the
// stream, or fn returns an error. Malformed events are skipped.
func (c *Client) SubscribeTasks(ctx context.Context, fn func(model.TaskRequestEvent) error) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/events?event="+model.EventTaskRequest, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream is long-lived; a client-wide timeout would cut it.
	hc := *c.http
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	err = readSSE(resp, func(ev sseEvent) error {
		switch ev.Type {
		case "done":
			return ErrStreamClosed
		case model.EventTaskRequest:
		default:
			return nil
		}
		var env model.EventEnvelope
		if err := json.Unmarshal([]byte(ev.Data), &env); err != nil {
			return nil
		}
		task, err := env.DecodeTaskRequest()
		if err != nil {
			return nil
		}
		return fn(task)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		return ErrStreamClosed
	}
	return err
}

// readSSE parses named events and data lines from the response body.
func readSSE(resp *http.Response, fn func(sseEvent) error) error {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxEventSize)

	var currentType string
	var currentData []string
	for scanner.Scan() {
		line := scanner.Text()
		if et, ok := strings.CutPrefix(line, "event: "); ok {
			currentType = et
		} else if data, ok := strings.CutPrefix(line, "data: "); ok {
			currentData = append(currentData, data)
		} else if line == "" && len(currentData) > 0 {
			ev := sseEvent{Type: currentType, Data: strings.Join(currentData, "\n")}
			currentType = ""
			currentData = nil
			if err := fn(ev); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}
