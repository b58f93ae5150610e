// Package model defines what it means to be a bound model: named and
// typed input/output tensor specs, the per-model configuration, the
// request/response contract of the inference function, and the batch
// adapter that lets a whole-batch function serve per-request calls.
package model

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/modelbind/modelbind/pkg/tensor"
)

// DynamicDim marks a dimension whose size is only known at request time.
const DynamicDim = int64(-1)

// TensorSpec declares one input or output of a model. Dims exclude the
// batch dimension when the model supports batching (Config.MaxBatchSize
// greater than 0); a DynamicDim entry matches any size.
type TensorSpec struct {
	Name     string
	DataType tensor.DataType
	Dims     []int64
}

// Validate checks the spec itself.
func (s TensorSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("tensor spec has empty name")
	}
	for i, dim := range s.Dims {
		if dim <= 0 && dim != DynamicDim {
			return fmt.Errorf("tensor spec %q: invalid dimension %d at axis %d", s.Name, dim, i)
		}
	}
	return nil
}

// Matches validates a runtime tensor against the spec. With batched set,
// the tensor carries one extra leading batch dimension.
func (s TensorSpec) Matches(t *tensor.Tensor, batched bool) error {
	if t.DataType() != s.DataType {
		return status.Errorf(codes.InvalidArgument,
			"tensor %q: data type %s does not match spec %s", s.Name, t.DataType(), s.DataType)
	}

	shape := t.Shape()
	if batched {
		if len(shape) == 0 {
			return status.Errorf(codes.InvalidArgument,
				"tensor %q: batched model requires a batch dimension, got scalar", s.Name)
		}
		shape = shape[1:]
	}
	if len(shape) != len(s.Dims) {
		return status.Errorf(codes.InvalidArgument,
			"tensor %q: shape %v does not match spec dims %v", s.Name, t.Shape(), s.Dims)
	}
	for i, dim := range s.Dims {
		if dim == DynamicDim {
			continue
		}
		if shape[i] != dim {
			return status.Errorf(codes.InvalidArgument,
				"tensor %q: dimension %d at axis %d does not match spec %v", s.Name, shape[i], i, s.Dims)
		}
	}
	return nil
}

// Config is per-model serving configuration. MaxBatchSize 0 disables
// batching: request tensors then carry no batch dimension.
type Config struct {
	MaxBatchSize int
}

// SupportsBatching reports whether inputs carry a batch dimension.
func (c Config) SupportsBatching() bool {
	return c.MaxBatchSize > 0
}

// ValidateInputs checks a full set of named inputs against the specs
// and the batch limit: every spec satisfied, no unexpected names, and
// all batch dimensions equal.
func ValidateInputs(specs []TensorSpec, cfg Config, inputs map[string]*tensor.Tensor) error {
	if len(inputs) != len(specs) {
		return status.Errorf(codes.InvalidArgument,
			"expected %d inputs, got %d", len(specs), len(inputs))
	}

	batched := cfg.SupportsBatching()
	batchSize := int64(-1)
	for _, spec := range specs {
		t, ok := inputs[spec.Name]
		if !ok {
			return status.Errorf(codes.InvalidArgument, "missing input %q", spec.Name)
		}
		if err := spec.Matches(t, batched); err != nil {
			return err
		}
		if batched {
			b, err := t.Shape().BatchSize()
			if err != nil {
				return status.Errorf(codes.InvalidArgument, "input %q: %v", spec.Name, err)
			}
			if batchSize == -1 {
				batchSize = b
			} else if b != batchSize {
				return status.Errorf(codes.InvalidArgument,
					"input %q: batch size %d differs from %d", spec.Name, b, batchSize)
			}
		}
	}

	if batched && batchSize > int64(cfg.MaxBatchSize) {
		return status.Errorf(codes.InvalidArgument,
			"batch size %d exceeds maximum %d", batchSize, cfg.MaxBatchSize)
	}
	return nil
}
