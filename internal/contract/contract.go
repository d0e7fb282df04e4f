package contract

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/h4shk4t/validAI-Contract/internal/host"
	"github.com/h4shk4t/validAI-Contract/internal/model"
)

const (
	// StateKey is the storage key holding the serialized contract state.
	StateKey = "STATE"

	// YieldRegister is the register the host writes new yield ids into.
	YieldRegister uint64 = 0

	// MethodReturnExternalResponse is the callback a yield resumes into.
	MethodReturnExternalResponse = "return_external_response"
)

// Entry point names, used as receipt methods.
const (
	MethodNew                  = "new"
	MethodBeforeTaskSubmission = "before_task_submission"
	MethodAfterTaskSubmission  = "after_task_submission"
	MethodRespond              = "respond"
	MethodRegisterModel        = "register_model"
	MethodGetModel             = "get_model"
	MethodGetState             = "get_state"
)

var (
	ErrNotInitialized     = errors.New("contract is not initialized")
	ErrAlreadyInitialized = errors.New("contract is already initialized")
	ErrRegisterRead       = errors.New("read_register failed")
	ErrTokenConversion    = errors.New("conversion to yield id failed")
	ErrModelNotFound      = errors.New("model not registered")
	ErrInvalidModelName   = errors.New("model name must not be empty")
)

// State is the single state root of the contract.
type State struct {
	AttestationCenter model.AccountID            `json:"attestation_center"`
	RequestID         uint64                     `json:"request_id"`
	Models            map[string]model.AccountID `json:"models"`
}

// callbackArgs is the payload a yield carries to its callback.
type callbackArgs struct {
	RequestID uint64 `json:"request_id"`
}

func load(env host.Env) (*State, error) {
	raw, ok := env.StorageRead(StateKey)
	if !ok {
		return nil, ErrNotInitialized
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode contract state: %w", err)
	}
	if st.Models == nil {
		st.Models = make(map[string]model.AccountID)
	}
	return &st, nil
}

func save(env host.Env, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode contract state: %w", err)
	}
	env.StorageWrite(StateKey, raw)
	return nil
}

// New initializes the contract with the account allowed to submit tasks.
func New(env host.Env, attestationCenter model.AccountID) error {
	if _, ok := env.StorageRead(StateKey); ok {
		return ErrAlreadyInitialized
	}
	if err := attestationCenter.Validate(); err != nil {
		return err
	}
	return save(env, &State{
		AttestationCenter: attestationCenter,
		Models:            make(map[string]model.AccountID),
	})
}

// BeforeTaskSubmission opens a request: it bumps the request counter, parks
// the call behind a new yield, announces the yield id in a task-request
// event and returns the yield as the call result. It returns the new counter
// value. Any failure here must abort the whole call.
func BeforeTaskSubmission(env host.Env, task model.BeforeTask) (uint64, error) {
	st, err := load(env)
	if err != nil {
		return 0, err
	}
	st.RequestID++

	args, err := json.Marshal(callbackArgs{RequestID: st.RequestID})
	if err != nil {
		return 0, fmt.Errorf("encode callback args: %w", err)
	}
	p := env.PromiseYieldCreate(MethodReturnExternalResponse, args, YieldRegister)

	raw, ok := env.ReadRegister(YieldRegister)
	if !ok {
		return 0, ErrRegisterRead
	}
	yieldID, err := model.YieldIDFromBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTokenConversion, err)
	}

	desc := model.DescribeTask(task.ProofOfTask)
	line, err := model.TaskRequestEvent{
		ModelName: desc.ModelName,
		Prompt:    desc.Prompt,
		YieldID:   yieldID,
	}.LogLine()
	if err != nil {
		return 0, err
	}
	env.Log(line)

	if err := save(env, st); err != nil {
		return 0, err
	}
	env.PromiseReturn(p)
	return st.RequestID, nil
}

// Respond resumes the yield with the given answer. Anyone holding the yield
// id may answer it; the host rejects unknown, answered and expired ids.
func Respond(env host.Env, yieldID model.YieldID, response string) error {
	st, err := load(env)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if !env.PromiseYieldResume(yieldID, payload) {
		return fmt.Errorf("%w: %s", host.ErrResumeRejected, yieldID)
	}
	return save(env, st)
}

// ReturnExternalResponse is the yield callback. A delivered string becomes
// the answer; a timeout or an undecodable payload becomes TimeOutError.
func ReturnExternalResponse(env host.Env, args []byte, result host.PromiseResult) (model.Response, error) {
	if _, err := load(env); err != nil {
		return model.Response{}, err
	}
	var a callbackArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return model.Response{}, fmt.Errorf("decode callback args: %w", err)
	}

	if result.Err != nil {
		return model.TimeOutError(), nil
	}
	var answer string
	if err := json.Unmarshal(result.Value, &answer); err != nil {
		return model.TimeOutError(), nil
	}
	return model.Answer(answer), nil
}

// RegisterModel maps a model name to its operator account. The last
// registration of a name wins. The reward is only logged.
func RegisterModel(env host.Env, modelAccount model.AccountID, modelName string, reward model.Token) error {
	st, err := load(env)
	if err != nil {
		return err
	}
	if modelName == "" {
		return ErrInvalidModelName
	}
	if err := modelAccount.Validate(); err != nil {
		return err
	}
	st.Models[modelName] = modelAccount
	env.Log(fmt.Sprintf("Model registered for %s with reward %s", modelName, reward))
	return save(env, st)
}

// AfterTaskSubmission pays the operator of the model that served a task.
// An unregistered model is logged and skipped.
func AfterTaskSubmission(env host.Env, task model.AfterTask) error {
	st, err := load(env)
	if err != nil {
		return err
	}
	info := task.ModelInfo

	account, ok := st.Models[info.ModelName]
	if !ok {
		env.Log(fmt.Sprintf("No model registered for %s", info.ModelName))
		return save(env, st)
	}

	env.Log(fmt.Sprintf("Running inference on model: %s by %s", info.ModelName, account))
	env.Log(fmt.Sprintf("Rewarding performer: %s with %s for using model: %s", account, info.Reward, info.ModelName))
	env.Transfer(account, info.Reward)
	return save(env, st)
}

// GetModel returns the operator registered for a model name. Lookup is
// exact and case-sensitive.
func GetModel(env host.Env, modelName string) (model.AccountID, error) {
	st, err := load(env)
	if err != nil {
		return "", err
	}
	account, ok := st.Models[modelName]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrModelNotFound, modelName)
	}
	return account, nil
}

// GetState returns a copy of the contract state.
func GetState(env host.Env) (State, error) {
	st, err := load(env)
	if err != nil {
		return State{}, err
	}
	return *st, nil
}
