package client

import "errors"

// Sentinel errors surfaced by ModelClient and FuturesClient. Callers
// classify with errors.Is.
var (
	// ErrInvalidURL means the server URL could not be parsed or uses
	// an unsupported scheme.
	ErrInvalidURL = errors.New("invalid server url")

	// ErrTimeout means the server or model did not become ready in time.
	ErrTimeout = errors.New("timed out waiting for server")

	// ErrModelUnavailable means the repository reports the model in a
	// non-ready terminal state.
	ErrModelUnavailable = errors.New("model is unavailable")

	// ErrModelDoesntSupportBatching means InferBatch was called on a
	// model bound with batching disabled.
	ErrModelDoesntSupportBatching = errors.New("model does not support batching")

	// ErrInference wraps an error reported by the server during an
	// infer call.
	ErrInference = errors.New("inference failed")

	// ErrClientClosed means a call was submitted after Close.
	ErrClientClosed = errors.New("client is closed")
)
