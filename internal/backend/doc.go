// Package backend defines the interface off-chain inference providers
// implement, and the registry the worker uses to pick a provider for the
// model named in a task-request event.
package backend
