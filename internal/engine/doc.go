// Package engine provides the off-chain worker. It follows the coordinator's
// task-request stream, resolves an inference backend for each announced
// model, runs the prompt under a per-job deadline and answers the pending
// request through respond. A job that fails or overruns its deadline sends
// nothing; the request then resolves to TimeOutError on the coordinator.
package engine
