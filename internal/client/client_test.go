package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/h4shk4t/validAI-Contract/internal/api"
	"github.com/h4shk4t/validAI-Contract/internal/client"
	"github.com/h4shk4t/validAI-Contract/internal/contract"
	"github.com/h4shk4t/validAI-Contract/internal/host"
	"github.com/h4shk4t/validAI-Contract/internal/model"
	"github.com/h4shk4t/validAI-Contract/internal/store"
)

const (
	center   = model.AccountID("attestation-center.testnet")
	operator = model.AccountID("operator.testnet")
)

type harness struct {
	rt     *host.Runtime
	client *client.Client
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	rt := host.NewRuntime(s, logger, host.WithYieldTimeout(timeout))
	t.Cleanup(rt.Close)
	svc := contract.NewService(rt, logger)
	srv := api.NewServer(":0", svc, s, logger, api.Options{})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &harness{
		rt:     rt,
		client: client.New(ts.URL+"/", client.WithAccount(center), client.WithHTTPClient(ts.Client())),
	}
}

func task(proof string) model.BeforeTask {
	return model.BeforeTask{
		TaskDefinitionID: 1,
		Performer:        operator,
		Attestation:      model.Attestation{ProofOfTask: proof, IsApproved: true},
	}
}

func TestInitAndState(t *testing.T) {
	h := newHarness(t, time.Minute)
	ctx := context.Background()

	if _, err := h.client.State(ctx); !client.IsStatus(err, http.StatusPreconditionFailed) {
		t.Fatalf("State before init error = %v, want 412", err)
	}
	if _, err := h.client.Init(ctx, center); err != nil {
		t.Fatalf("Init: %v", err)
	}
	_, err := h.client.Init(ctx, center)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict || apiErr.Message == "" {
		t.Errorf("second Init error = %v, want 409 with message", err)
	}

	st, err := h.client.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.AttestationCenter != center || st.RequestID != 0 {
		t.Errorf("state = %+v", st)
	}
}

func TestSubmitRespondAndLookup(t *testing.T) {
	h := newHarness(t, time.Minute)
	ctx := context.Background()
	if _, err := h.client.Init(ctx, center); err != nil {
		t.Fatalf("Init: %v", err)
	}

	sub, err := h.client.SubmitTask(ctx, task(`{"model_name":"llama3.2","prompt":"hi"}`), false)
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	if sub.RequestID != 1 || sub.YieldID.IsZero() || sub.Result != nil {
		t.Fatalf("submission = %+v", sub)
	}

	if _, err := h.client.Respond(ctx, sub.YieldID, "hello"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if _, err := h.client.Respond(ctx, sub.YieldID, "again"); !client.IsStatus(err, http.StatusConflict) {
		t.Errorf("second Respond error = %v, want 409", err)
	}

	h.rt.Wait()
	rec, err := h.client.Request(ctx, sub.YieldID)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if rec.Status != model.YieldResolved {
		t.Errorf("status = %q, want %q", rec.Status, model.YieldResolved)
	}
	var res model.Response
	if err := json.Unmarshal(rec.Result, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if answer, ok := res.Answer(); !ok || answer != "hello" {
		t.Errorf("result = %v, want Answer(hello)", res)
	}
}

func TestSubmitWaitTimesOut(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := h.client.Init(ctx, center); err != nil {
		t.Fatalf("Init: %v", err)
	}

	sub, err := h.client.SubmitTask(ctx, task("proof"), true)
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	if sub.Result == nil || !sub.Result.IsTimeout() {
		t.Errorf("result = %v, want TimeOutError", sub.Result)
	}
}

func TestRegisterRewardAndBalance(t *testing.T) {
	h := newHarness(t, time.Minute)
	ctx := context.Background()
	if _, err := h.client.Init(ctx, center); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if _, err := h.client.Model(ctx, "llama3.2"); !client.IsStatus(err, http.StatusNotFound) {
		t.Errorf("Model before register error = %v, want 404", err)
	}
	if _, err := h.client.RegisterModel(ctx, operator, "llama3.2", model.NEAR(2)); err != nil {
		t.Fatalf("RegisterModel: %v", err)
	}
	got, err := h.client.Model(ctx, "llama3.2")
	if err != nil || got != operator {
		t.Fatalf("Model = %q, %v", got, err)
	}

	res, err := h.client.CompleteTask(ctx, model.AfterTask{
		TaskDefinitionID: 1,
		ModelInfo:        model.ModelInfo{ModelName: "llama3.2", Reward: model.NEAR(2)},
	})
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if len(res.Transfers) != 1 {
		t.Fatalf("transfers = %+v, want 1", res.Transfers)
	}

	bal, err := h.client.Balance(ctx, operator)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !bal.Balance.Equal(model.NEAR(2)) || bal.Display != "2.00 NEAR" {
		t.Errorf("balance = %+v", bal)
	}
}

func TestSubscribeTasksDeliversEvents(t *testing.T) {
	h := newHarness(t, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := h.client.Init(ctx, center); err != nil {
		t.Fatalf("Init: %v", err)
	}

	got := make(chan model.TaskRequestEvent, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.client.SubscribeTasks(ctx, func(ev model.TaskRequestEvent) error {
			got <- ev
			return errors.New("stop")
		})
	}()

	waitSubscribed(t, h.rt)
	sub, err := h.client.SubmitTask(ctx, task(`{"model_name":"llama3.2","prompt":"2+2?"}`), false)
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	select {
	case ev := <-got:
		if ev.YieldID != sub.YieldID || ev.ModelName != "llama3.2" || ev.Prompt != "2+2?" {
			t.Errorf("event = %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("no event received")
	}
	if err := <-errCh; err == nil || err.Error() != "stop" {
		t.Errorf("SubscribeTasks error = %v, want handler error", err)
	}
}

func TestSubscribeTasksEndsWithContext(t *testing.T) {
	h := newHarness(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.client.SubscribeTasks(ctx, func(model.TaskRequestEvent) error { return nil })
	}()
	waitSubscribed(t, h.rt)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SubscribeTasks did not return after cancel")
	}
}

func TestSubscribeTasksStreamClosed(t *testing.T) {
	h := newHarness(t, time.Minute)
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.client.SubscribeTasks(context.Background(), func(model.TaskRequestEvent) error { return nil })
	}()
	waitSubscribed(t, h.rt)
	h.rt.Broker().Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, client.ErrStreamClosed) {
			t.Errorf("error = %v, want ErrStreamClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SubscribeTasks did not return after broker close")
	}
}

func waitSubscribed(t *testing.T, rt *host.Runtime) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if rt.Broker().Subscribers(model.EventTaskRequest) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("event stream never subscribed")
}
