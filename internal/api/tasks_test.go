package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/h4shk4t/validAI-Contract/internal/model"
)

const beforeBody = `{
	"task_definition_id": 1,
	"performer_addr": "worker.testnet",
	"proof_of_task": "{\"model_name\":\"llama3.2\",\"prompt\":\"What is 6*7?\"}",
	"is_approved": true,
	"tp_signature": "AQID",
	"ta_signature": ["1", "2"],
	"operator_ids": ["7"]
}`

func submit(t *testing.T, baseURL string) submissionResponse {
	t.Helper()
	var sub submissionResponse
	if status := postJSON(t, baseURL+"/v1/tasks/before", beforeBody, &sub); status != http.StatusAccepted {
		t.Fatalf("submit status = %d, want 202", status)
	}
	return sub
}

func TestInitTwiceConflicts(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	status := postJSON(t, ts.URL+"/v1/init", `{"attestation_center":"other.testnet"}`, nil)
	if status != http.StatusConflict {
		t.Errorf("status = %d, want 409", status)
	}
}

func TestCallsBeforeInit(t *testing.T) {
	srv := newTestServerWith(t, testConfig{skipInit: true})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	if status := postJSON(t, ts.URL+"/v1/tasks/before", beforeBody, nil); status != http.StatusPreconditionFailed {
		t.Errorf("submit before init status = %d, want 412", status)
	}

	var callResp callResponse
	if status := postJSON(t, ts.URL+"/v1/init", `{"attestation_center":"center.testnet"}`, &callResp); status != http.StatusOK {
		t.Fatalf("init status = %d, want 200", status)
	}
	if callResp.ReceiptID == "" {
		t.Error("init returned no receipt id")
	}

	var st struct {
		AttestationCenter string `json:"attestation_center"`
		RequestID         uint64 `json:"request_id"`
	}
	if status := getJSON(t, ts.URL+"/v1/state", &st); status != http.StatusOK {
		t.Fatalf("state status = %d", status)
	}
	if st.AttestationCenter != "center.testnet" || st.RequestID != 0 {
		t.Errorf("state = %+v", st)
	}
}

func TestBeforeTaskSubmission(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sub := submit(t, ts.URL)
	if sub.RequestID != 1 {
		t.Errorf("request_id = %d, want 1", sub.RequestID)
	}
	if sub.YieldID.IsZero() {
		t.Error("yield_id is zero")
	}
	if len(sub.Logs) != 1 || !strings.HasPrefix(sub.Logs[0], model.EventLogPrefix) {
		t.Errorf("logs = %v", sub.Logs)
	}

	sub2 := submit(t, ts.URL)
	if sub2.RequestID != 2 || sub2.YieldID == sub.YieldID {
		t.Errorf("second submission = %+v", sub2)
	}
}

func TestBeforeTaskInvalidInput(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json"},
		{"bad performer", `{"performer_addr":"Bad Account"}`},
		{"bad signature word", `{"ta_signature":["x","1"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status := postJSON(t, ts.URL+"/v1/tasks/before", tt.body, nil); status != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", status)
			}
		})
	}
}

func TestBeforeTaskInvalidCaller(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/tasks/before", strings.NewReader(beforeBody))
	req.Header.Set(callerHeader, "NOT VALID")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestEndToEndAnswer(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	type waitResult struct {
		resp   submissionResponse
		status int
		err    error
	}
	done := make(chan waitResult, 1)
	go func() {
		var res waitResult
		resp, err := http.Post(ts.URL+"/v1/tasks/before?wait=true", "application/json", strings.NewReader(beforeBody))
		if err != nil {
			res.err = err
			done <- res
			return
		}
		defer resp.Body.Close()
		res.status = resp.StatusCode
		res.err = json.NewDecoder(resp.Body).Decode(&res.resp)
		done <- res
	}()

	// Wait until the submission is pending.
	var yieldID model.YieldID
	deadline := time.Now().Add(5 * time.Second)
	for {
		yields, _, err := srv.store.ListYields(context.Background(), model.YieldPending, 1, 0)
		if err != nil {
			t.Fatalf("ListYields: %v", err)
		}
		if len(yields) == 1 {
			yieldID = yields[0].ID
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("submission never became pending")
		}
		time.Sleep(10 * time.Millisecond)
	}

	body := fmt.Sprintf(`{"yield_id":%q,"response":"42"}`, yieldID.String())
	if status := postJSON(t, ts.URL+"/v1/respond", body, nil); status != http.StatusOK {
		t.Fatalf("respond status = %d, want 200", status)
	}

	select {
	case got := <-done:
		if got.err != nil {
			t.Fatalf("waiting submission: %v", got.err)
		}
		if got.status != http.StatusOK {
			t.Fatalf("wait status = %d, want 200", got.status)
		}
		if got.resp.Result == nil {
			t.Fatal("result missing")
		}
		if text, ok := got.resp.Result.Answer(); !ok || text != "42" {
			t.Errorf("result = %s, want Answer(\"42\")", got.resp.Result)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiting submission did not finish")
	}

	var rec model.Yield
	if status := getJSON(t, ts.URL+"/v1/requests/"+yieldID.String(), &rec); status != http.StatusOK {
		t.Fatalf("get request status = %d", status)
	}
	if rec.Status != model.YieldResolved || string(rec.Result) != `{"Answer":"42"}` {
		t.Errorf("record = %s %s", rec.Status, rec.Result)
	}
}

func TestEndToEndTimeout(t *testing.T) {
	srv := newTestServerWith(t, testConfig{timeout: 50 * time.Millisecond})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var resp submissionResponse
	if status := postJSON(t, ts.URL+"/v1/tasks/before?wait=true", beforeBody, &resp); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if resp.Result == nil || !resp.Result.IsTimeout() {
		t.Fatalf("result = %v, want TimeOutError", resp.Result)
	}

	raw, _ := json.Marshal(resp.Result)
	if string(raw) != `"TimeOutError"` {
		t.Errorf("result JSON = %s", raw)
	}
}

func TestAfterTaskSubmission(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	reg := `{"model_account":"owner.testnet","model_name":"my_model","reward":"1 NEAR"}`
	var regResp callResponse
	if status := postJSON(t, ts.URL+"/v1/models", reg, &regResp); status != http.StatusOK {
		t.Fatalf("register status = %d", status)
	}
	if len(regResp.Logs) != 1 || regResp.Logs[0] != "Model registered for my_model with reward 1.00 NEAR" {
		t.Errorf("register logs = %q", regResp.Logs)
	}

	after := `{"task_definition_id":1,"model_info":{"model_name":"my_model","reward":"1000000000000000000000000"},"proof_of_task":"p","is_approved":true}`
	var out callResponse
	if status := postJSON(t, ts.URL+"/v1/tasks/after", after, &out); status != http.StatusOK {
		t.Fatalf("after status = %d", status)
	}
	if len(out.Transfers) != 1 || out.Transfers[0].Recipient != "owner.testnet" {
		t.Fatalf("transfers = %+v", out.Transfers)
	}
	if !out.Transfers[0].Amount.Equal(model.NEAR(1)) {
		t.Errorf("amount = %s", out.Transfers[0].Amount)
	}

	var bal balanceResponse
	if status := getJSON(t, ts.URL+"/v1/accounts/owner.testnet/balance", &bal); status != http.StatusOK {
		t.Fatalf("balance status = %d", status)
	}
	if !bal.Balance.Equal(model.NEAR(1)) || bal.Display != "1.00 NEAR" {
		t.Errorf("balance = %+v", bal)
	}

	var tr transfersResponse
	if status := getJSON(t, ts.URL+"/v1/accounts/owner.testnet/transfers", &tr); status != http.StatusOK {
		t.Fatalf("transfers status = %d", status)
	}
	if len(tr.Transfers) != 1 || tr.Transfers[0].ReceiptID != out.ReceiptID {
		t.Errorf("transfers = %+v", tr.Transfers)
	}
}

func TestAfterTaskUnregisteredModel(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	after := `{"model_info":{"model_name":"ghost","reward":"5"}}`
	var out callResponse
	if status := postJSON(t, ts.URL+"/v1/tasks/after", after, &out); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if len(out.Transfers) != 0 {
		t.Errorf("transfers = %+v, want none", out.Transfers)
	}
	if len(out.Logs) != 1 || out.Logs[0] != "No model registered for ghost" {
		t.Errorf("logs = %q", out.Logs)
	}
}

func TestAfterTaskMissingModelName(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	if status := postJSON(t, ts.URL+"/v1/tasks/after", `{"model_info":{"reward":"5"}}`, nil); status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}
