package contract

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/h4shk4t/validAI-Contract/internal/host"
	"github.com/h4shk4t/validAI-Contract/internal/model"
)

// fakeEnv is a minimal in-memory host whose register contents can be forced.
type fakeEnv struct {
	storage   map[string][]byte
	logs      []string
	register  []byte
	noReg     bool
	created   int
	returned  bool
	transfers []model.Transfer
}

func newFakeEnv(t *testing.T) *fakeEnv {
	t.Helper()
	env := &fakeEnv{storage: make(map[string][]byte)}
	if err := New(env, "center.testnet"); err != nil {
		t.Fatalf("New: %v", err)
	}
	return env
}

func (f *fakeEnv) Method() string                  { return "test" }
func (f *fakeEnv) Predecessor() model.AccountID    { return "center.testnet" }
func (f *fakeEnv) BlockTime() time.Time            { return time.Unix(0, 0) }
func (f *fakeEnv) Log(line string)                 { f.logs = append(f.logs, line) }
func (f *fakeEnv) PromiseReturn(host.PromiseIndex) { f.returned = true }

func (f *fakeEnv) StorageRead(key string) ([]byte, bool) {
	v, ok := f.storage[key]
	return v, ok
}

func (f *fakeEnv) StorageWrite(key string, value []byte) {
	f.storage[key] = value
}

func (f *fakeEnv) PromiseYieldCreate(string, []byte, uint64) host.PromiseIndex {
	f.created++
	return host.PromiseIndex(f.created - 1)
}

func (f *fakeEnv) ReadRegister(uint64) ([]byte, bool) {
	if f.noReg {
		return nil, false
	}
	return f.register, true
}

func (f *fakeEnv) PromiseYieldResume(model.YieldID, []byte) bool { return false }

func (f *fakeEnv) Transfer(to model.AccountID, amount model.Token) {
	f.transfers = append(f.transfers, model.Transfer{Recipient: to, Amount: amount})
}

func TestBeforeTaskSubmissionRegisterFailures(t *testing.T) {
	tests := []struct {
		name     string
		register []byte
		noReg    bool
		wantErr  error
	}{
		{"register empty", nil, true, ErrRegisterRead},
		{"short register", make([]byte, 16), false, ErrTokenConversion},
		{"long register", make([]byte, 33), false, ErrTokenConversion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newFakeEnv(t)
			env.register = tt.register
			env.noReg = tt.noReg

			_, err := BeforeTaskSubmission(env, model.BeforeTask{})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if len(env.logs) != 0 {
				t.Errorf("event emitted on failure: %v", env.logs)
			}
			if env.returned {
				t.Error("promise returned on failure")
			}

			var st State
			if err := json.Unmarshal(env.storage[StateKey], &st); err != nil {
				t.Fatalf("decode state: %v", err)
			}
			if st.RequestID != 0 {
				t.Errorf("RequestID = %d, want the counter left unsaved", st.RequestID)
			}
		})
	}
}

func TestBeforeTaskSubmissionWithValidRegister(t *testing.T) {
	env := newFakeEnv(t)
	env.register = make([]byte, model.YieldIDSize)
	env.register[0] = 7

	n, err := BeforeTaskSubmission(env, model.BeforeTask{})
	if err != nil {
		t.Fatalf("BeforeTaskSubmission: %v", err)
	}
	if n != 1 || env.created != 1 || !env.returned {
		t.Errorf("n=%d created=%d returned=%v", n, env.created, env.returned)
	}
	if len(env.logs) != 1 {
		t.Fatalf("logs = %v", env.logs)
	}
}

func TestReturnExternalResponse(t *testing.T) {
	env := newFakeEnv(t)
	args := []byte(`{"request_id":3}`)

	tests := []struct {
		name   string
		result host.PromiseResult
		want   string
	}{
		{"answer", host.PromiseResult{Value: []byte(`"42"`)}, `{"Answer":"42"}`},
		{"empty answer", host.PromiseResult{Value: []byte(`""`)}, `{"Answer":""}`},
		{"timeout", host.PromiseResult{Err: host.ErrYieldTimeout}, `"TimeOutError"`},
		{"undecodable payload", host.PromiseResult{Value: []byte(`{"x":1}`)}, `"TimeOutError"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ReturnExternalResponse(env, args, tt.result)
			if err != nil {
				t.Fatalf("ReturnExternalResponse: %v", err)
			}
			got, _ := json.Marshal(resp)
			if string(got) != tt.want {
				t.Errorf("result = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReturnExternalResponseBadArgs(t *testing.T) {
	env := newFakeEnv(t)
	if _, err := ReturnExternalResponse(env, []byte("nope"), host.PromiseResult{}); err == nil {
		t.Error("expected error for malformed callback args")
	}
}
