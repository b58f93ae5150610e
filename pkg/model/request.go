package model

import (
	"context"

	"github.com/modelbind/modelbind/pkg/tensor"
)

// Request is one inference request: named input tensors plus optional
// string parameters carried through from the wire.
type Request struct {
	ID         string
	Inputs     map[string]*tensor.Tensor
	Parameters map[string]string
}

// Response holds the named output tensors for one request.
type Response struct {
	Outputs map[string]*tensor.Tensor
}

// InferFunc is the computation bound to a model name. It receives a
// list of requests and must return exactly one response per request,
// in order.
type InferFunc func(ctx context.Context, requests []*Request) ([]*Response, error)
