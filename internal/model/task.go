package model

import (
	"encoding/json"
	"strings"

	"cosmossdk.io/math"
)

// Placeholders emitted when the proof of task does not describe the work.
const (
	DefaultModelName = "model_name"
	DefaultPrompt    = "prompt"
)

// Attestation carries the attestation-center fields shared by both task
// hooks. They are accepted as-is and not verified here.
type Attestation struct {
	ProofOfTask string       `json:"proof_of_task"`
	IsApproved  bool         `json:"is_approved"`
	TPSignature []byte       `json:"tp_signature"`
	TASignature [2]math.Uint `json:"ta_signature"`
	OperatorIDs []math.Uint  `json:"operator_ids"`
}

// BeforeTask is the input of the task-submission hook that opens a request.
type BeforeTask struct {
	TaskDefinitionID uint16    `json:"task_definition_id"`
	Performer        AccountID `json:"performer_addr"`
	Attestation
}

// ModelInfo names the model that served a task and the reward owed for it.
type ModelInfo struct {
	ModelName string `json:"model_name"`
	Reward    Token  `json:"reward"`
}

// AfterTask is the input of the task-submission hook that pays the operator.
type AfterTask struct {
	TaskDefinitionID uint16    `json:"task_definition_id"`
	ModelInfo        ModelInfo `json:"model_info"`
	Attestation
}

// TaskDescriptor is the optional JSON form of a proof of task that tells the
// worker which model to run and on what prompt.
type TaskDescriptor struct {
	ModelName string `json:"model_name"`
	Prompt    string `json:"prompt"`
}

// DescribeTask extracts the model and prompt from a proof of task. Proofs that
// are not a JSON descriptor yield the placeholder values.
func DescribeTask(proofOfTask string) TaskDescriptor {
	d := TaskDescriptor{ModelName: DefaultModelName, Prompt: DefaultPrompt}

	trimmed := strings.TrimSpace(proofOfTask)
	if !strings.HasPrefix(trimmed, "{") {
		return d
	}
	var parsed TaskDescriptor
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return d
	}
	if parsed.ModelName != "" {
		d.ModelName = parsed.ModelName
	}
	if parsed.Prompt != "" {
		d.Prompt = parsed.Prompt
	}
	return d
}
