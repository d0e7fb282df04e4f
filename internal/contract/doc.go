// Package contract implements the AVS coordinator entry points: opening an
// inference request behind a yield, answering it, finalizing the terminal
// response, and the model registry with its reward path.
package contract
