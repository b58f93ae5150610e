package model

import (
	"context"
	"fmt"

	"github.com/modelbind/modelbind/pkg/tensor"
)

// BatchFunc computes a whole batch at once: every input tensor is the
// concatenation of the corresponding per-request tensors along axis 0,
// and every output must carry the same total batch size.
type BatchFunc func(ctx context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error)

// Batch adapts a BatchFunc to the InferFunc contract: it stacks the
// inputs of all requests along the batch axis, runs the function once,
// and splits the outputs back per request.
func Batch(fn BatchFunc) InferFunc {
	return func(ctx context.Context, requests []*Request) ([]*Response, error) {
		if len(requests) == 0 {
			return nil, nil
		}
		if len(requests) == 1 {
			outputs, err := fn(ctx, requests[0].Inputs)
			if err != nil {
				return nil, err
			}
			return []*Response{{Outputs: outputs}}, nil
		}

		sizes := make([]int64, len(requests))
		stacked := make(map[string]*tensor.Tensor)
		for name := range requests[0].Inputs {
			parts := make([]*tensor.Tensor, len(requests))
			for i, req := range requests {
				t, ok := req.Inputs[name]
				if !ok {
					return nil, fmt.Errorf("request %d is missing input %q", i, name)
				}
				b, err := t.Shape().BatchSize()
				if err != nil {
					return nil, fmt.Errorf("request %d input %q: %w", i, name, err)
				}
				if sizes[i] == 0 {
					sizes[i] = b
				} else if sizes[i] != b {
					return nil, fmt.Errorf("request %d: input %q batch size %d differs from %d", i, name, b, sizes[i])
				}
				parts[i] = t
			}
			t, err := tensor.Concat(parts)
			if err != nil {
				return nil, fmt.Errorf("stacking input %q: %w", name, err)
			}
			stacked[name] = t
		}

		outputs, err := fn(ctx, stacked)
		if err != nil {
			return nil, err
		}

		total := int64(0)
		for _, n := range sizes {
			total += n
		}
		responses := make([]*Response, len(requests))
		for i := range responses {
			responses[i] = &Response{Outputs: make(map[string]*tensor.Tensor)}
		}
		for name, out := range outputs {
			b, err := out.Shape().BatchSize()
			if err != nil {
				return nil, fmt.Errorf("output %q: %w", name, err)
			}
			if b != total {
				return nil, fmt.Errorf("output %q has batch size %d, inputs total %d", name, b, total)
			}
			parts, err := tensor.SplitN(out, sizes)
			if err != nil {
				return nil, fmt.Errorf("splitting output %q: %w", name, err)
			}
			for i, part := range parts {
				responses[i].Outputs[name] = part
			}
		}
		return responses, nil
	}
}
