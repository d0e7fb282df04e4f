// Package client is a typed HTTP client for the coordinator API. The CLI and
// the off-chain worker use it to submit tasks, answer pending requests and
// follow the task-request stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/h4shk4t/validAI-Contract/internal/model"
)

// CallerHeader names the account a call is made on behalf of.
const CallerHeader = "X-Near-Account"

const maxErrorBody = 4 << 10

// APIError is a non-2xx response from the coordinator.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coordinator returned %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// CallResult is the outcome of a state-changing call.
type CallResult struct {
	ReceiptID string           `json:"receipt_id"`
	Logs      []string         `json:"logs"`
	Transfers []model.Transfer `json:"transfers,omitempty"`
}

// Submission is the outcome of opening a request.
type Submission struct {
	RequestID uint64          `json:"request_id"`
	YieldID   model.YieldID   `json:"yield_id"`
	ReceiptID string          `json:"receipt_id"`
	Logs      []string        `json:"logs,omitempty"`
	Result    *model.Response `json:"result,omitempty"`
}

// State is the contract state as exposed by GET /v1/state.
type State struct {
	AttestationCenter model.AccountID            `json:"attestation_center"`
	RequestID         uint64                     `json:"request_id"`
	Models            map[string]model.AccountID `json:"models"`
}

// Balance is an account balance on the host ledger.
type Balance struct {
	Account model.AccountID `json:"account"`
	Balance model.Token     `json:"balance"`
	Display string          `json:"display"`
}

// Client talks to a coordinator over HTTP.
type Client struct {
	baseURL string
	account model.AccountID
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAccount sends every call on behalf of account.
func WithAccount(account model.AccountID) Option {
	return func(c *Client) { c.account = account }
}

// New creates a client for the coordinator at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init initializes the contract with its attestation center.
func (c *Client) Init(ctx context.Context, attestationCenter model.AccountID) (*CallResult, error) {
	var out CallResult
	body := map[string]model.AccountID{"attestation_center": attestationCenter}
	if err := c.do(ctx, http.MethodPost, "/v1/init", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitTask opens a request. With wait set the call blocks until the request
// reaches its terminal value, which is returned in Result.
func (c *Client) SubmitTask(ctx context.Context, task model.BeforeTask, wait bool) (*Submission, error) {
	path := "/v1/tasks/before"
	if wait {
		path += "?wait=true"
	}
	var out Submission
	if err := c.do(ctx, http.MethodPost, path, task, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteTask runs the after-task hook that rewards the model operator.
func (c *Client) CompleteTask(ctx context.Context, task model.AfterTask) (*CallResult, error) {
	var out CallResult
	if err := c.do(ctx, http.MethodPost, "/v1/tasks/after", task, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RegisterModel maps modelName to the operator account.
func (c *Client) RegisterModel(ctx context.Context, account model.AccountID, modelName string, reward model.Token) (*CallResult, error) {
	body := struct {
		ModelAccount model.AccountID `json:"model_account"`
		ModelName    string          `json:"model_name"`
		Reward       model.Token     `json:"reward"`
	}{account, modelName, reward}

	var out CallResult
	if err := c.do(ctx, http.MethodPost, "/v1/models", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Model returns the operator registered for modelName.
func (c *Client) Model(ctx context.Context, modelName string) (model.AccountID, error) {
	var out struct {
		ModelAccount model.AccountID `json:"model_account"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/models/"+url.PathEscape(modelName), nil, &out); err != nil {
		return "", err
	}
	return out.ModelAccount, nil
}

// Respond answers the pending request identified by yieldID.
func (c *Client) Respond(ctx context.Context, yieldID model.YieldID, response string) (*CallResult, error) {
	body := struct {
		YieldID  model.YieldID `json:"yield_id"`
		Response string        `json:"response"`
	}{yieldID, response}

	var out CallResult
	if err := c.do(ctx, http.MethodPost, "/v1/respond", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Request returns the record of the request suspended on yieldID.
func (c *Client) Request(ctx context.Context, yieldID model.YieldID) (*model.Yield, error) {
	var out model.Yield
	if err := c.do(ctx, http.MethodGet, "/v1/requests/"+yieldID.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Balance returns the ledger balance of account.
func (c *Client) Balance(ctx context.Context, account model.AccountID) (*Balance, error) {
	var out Balance
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(account.String())+"/balance", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// State returns the contract state.
func (c *Client) State(ctx context.Context) (*State, error) {
	var out State
	if err := c.do(ctx, http.MethodGet, "/v1/state", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.account != "" {
		req.Header.Set(CallerHeader, c.account.String())
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
