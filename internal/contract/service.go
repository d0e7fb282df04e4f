package contract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/h4shk4t/validAI-Contract/internal/host"
	"github.com/h4shk4t/validAI-Contract/internal/model"
)

// Submission is the committed result of BeforeTaskSubmission.
type Submission struct {
	RequestID uint64
	YieldID   model.YieldID
	ReceiptID string
	Logs      []string
	Promise   *host.Promise
}

// Service runs the contract entry points on a host runtime.
type Service struct {
	rt     *host.Runtime
	logger *slog.Logger
}

// NewService binds the contract callback to rt.
func NewService(rt *host.Runtime, logger *slog.Logger) *Service {
	rt.RegisterCallback(MethodReturnExternalResponse, func(env host.Env, args []byte, res host.PromiseResult) (any, error) {
		return ReturnExternalResponse(env, args, res)
	})
	return &Service{rt: rt, logger: logger}
}

// Runtime returns the underlying host runtime.
func (s *Service) Runtime() *host.Runtime {
	return s.rt
}

// Init runs the initializer.
func (s *Service) Init(ctx context.Context, caller, attestationCenter model.AccountID) (*host.Outcome, error) {
	out, err := s.rt.Call(ctx, MethodNew, caller, func(env host.Env) (any, error) {
		return nil, New(env, attestationCenter)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("contract initialized", "attestation_center", attestationCenter, "receipt_id", out.ReceiptID)
	return out, nil
}

// BeforeTaskSubmission opens a request and returns its yield.
func (s *Service) BeforeTaskSubmission(ctx context.Context, caller model.AccountID, task model.BeforeTask) (*Submission, error) {
	out, err := s.rt.Call(ctx, MethodBeforeTaskSubmission, caller, func(env host.Env) (any, error) {
		return BeforeTaskSubmission(env, task)
	})
	if err != nil {
		return nil, err
	}
	if out.Promise == nil {
		return nil, fmt.Errorf("%s returned no yield", MethodBeforeTaskSubmission)
	}

	sub := &Submission{
		RequestID: out.Value.(uint64),
		YieldID:   out.Promise.YieldID(),
		ReceiptID: out.ReceiptID,
		Logs:      out.Logs,
		Promise:   out.Promise,
	}
	s.logger.Info("task submitted",
		"request_id", sub.RequestID,
		"yield_id", sub.YieldID.String(),
		"task_definition_id", task.TaskDefinitionID,
		"performer", task.Performer,
	)
	return sub, nil
}

// Respond resumes a pending request with an answer.
func (s *Service) Respond(ctx context.Context, caller model.AccountID, yieldID model.YieldID, response string) (*host.Outcome, error) {
	out, err := s.rt.Call(ctx, MethodRespond, caller, func(env host.Env) (any, error) {
		return nil, Respond(env, yieldID, response)
	})
	if err != nil {
		s.logger.Warn("respond rejected", "yield_id", yieldID.String(), "caller", caller, "error", err)
		return nil, err
	}
	s.logger.Info("request answered", "yield_id", yieldID.String(), "caller", caller)
	return out, nil
}

// RegisterModel maps a model name to an operator account.
func (s *Service) RegisterModel(ctx context.Context, caller, modelAccount model.AccountID, modelName string, reward model.Token) (*host.Outcome, error) {
	return s.rt.Call(ctx, MethodRegisterModel, caller, func(env host.Env) (any, error) {
		return nil, RegisterModel(env, modelAccount, modelName, reward)
	})
}

// AfterTaskSubmission pays the operator of the model that served a task.
func (s *Service) AfterTaskSubmission(ctx context.Context, caller model.AccountID, task model.AfterTask) (*host.Outcome, error) {
	out, err := s.rt.Call(ctx, MethodAfterTaskSubmission, caller, func(env host.Env) (any, error) {
		return nil, AfterTaskSubmission(env, task)
	})
	if err != nil {
		return nil, err
	}
	if len(out.Transfers) == 0 {
		s.logger.Info("no reward paid", "model_name", task.ModelInfo.ModelName)
	}
	return out, nil
}

// Model returns the operator registered for modelName.
func (s *Service) Model(ctx context.Context, modelName string) (model.AccountID, error) {
	v, err := s.rt.View(ctx, MethodGetModel, func(env host.Env) (any, error) {
		return GetModel(env, modelName)
	})
	if err != nil {
		return "", err
	}
	return v.(model.AccountID), nil
}

// State returns the current contract state.
func (s *Service) State(ctx context.Context) (State, error) {
	v, err := s.rt.View(ctx, MethodGetState, func(env host.Env) (any, error) {
		return GetState(env)
	})
	if err != nil {
		return State{}, err
	}
	return v.(State), nil
}

// Await blocks until the request behind p reaches its terminal value.
func Await(ctx context.Context, p *host.Promise) (model.Response, error) {
	raw, err := p.Wait(ctx)
	if err != nil {
		return model.Response{}, err
	}
	var resp model.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return model.Response{}, err
	}
	return resp, nil
}
