package tensor

import "fmt"

// Tensor is a typed, shaped numeric array with flat row-major storage.
// The backing slice type is selected by the data type tag.
type Tensor struct {
	dtype DataType
	shape Shape
	data  any
}

// New creates a tensor from a flat backing slice. The slice type must
// match the data type and its length must match the shape.
func New(dtype DataType, shape Shape, data any) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("creating tensor: %w", err)
	}
	n := shape.NumElements()
	length, err := sliceLen(dtype, data)
	if err != nil {
		return nil, err
	}
	if int64(length) != n {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)", length, shape, n)
	}
	return &Tensor{dtype: dtype, shape: shape.Clone(), data: data}, nil
}

func sliceLen(dtype DataType, data any) (int, error) {
	switch dtype {
	case Float64:
		v, ok := data.([]float64)
		if !ok {
			return 0, fmt.Errorf("expected []float64 backing slice for %s tensor, got %T", dtype, data)
		}
		return len(v), nil
	case Float32:
		v, ok := data.([]float32)
		if !ok {
			return 0, fmt.Errorf("expected []float32 backing slice for %s tensor, got %T", dtype, data)
		}
		return len(v), nil
	case Int64:
		v, ok := data.([]int64)
		if !ok {
			return 0, fmt.Errorf("expected []int64 backing slice for %s tensor, got %T", dtype, data)
		}
		return len(v), nil
	case Int32:
		v, ok := data.([]int32)
		if !ok {
			return 0, fmt.Errorf("expected []int32 backing slice for %s tensor, got %T", dtype, data)
		}
		return len(v), nil
	case Uint8:
		v, ok := data.([]uint8)
		if !ok {
			return 0, fmt.Errorf("expected []uint8 backing slice for %s tensor, got %T", dtype, data)
		}
		return len(v), nil
	case Bool:
		v, ok := data.([]bool)
		if !ok {
			return 0, fmt.Errorf("expected []bool backing slice for %s tensor, got %T", dtype, data)
		}
		return len(v), nil
	default:
		return 0, fmt.Errorf("unsupported data type %d", int(dtype))
	}
}

// NewFloat64 creates a float64 tensor.
func NewFloat64(shape Shape, data []float64) (*Tensor, error) {
	return New(Float64, shape, data)
}

// NewFloat32 creates a float32 tensor.
func NewFloat32(shape Shape, data []float32) (*Tensor, error) {
	return New(Float32, shape, data)
}

// NewInt64 creates an int64 tensor.
func NewInt64(shape Shape, data []int64) (*Tensor, error) {
	return New(Int64, shape, data)
}

// NewInt32 creates an int32 tensor.
func NewInt32(shape Shape, data []int32) (*Tensor, error) {
	return New(Int32, shape, data)
}

// Zeros creates a zero-filled tensor of the given type and shape.
func Zeros(dtype DataType, shape Shape) (*Tensor, error) {
	n := shape.NumElements()
	var data any
	switch dtype {
	case Float64:
		data = make([]float64, n)
	case Float32:
		data = make([]float32, n)
	case Int64:
		data = make([]int64, n)
	case Int32:
		data = make([]int32, n)
	case Uint8:
		data = make([]uint8, n)
	case Bool:
		data = make([]bool, n)
	default:
		return nil, fmt.Errorf("unsupported data type %d", int(dtype))
	}
	return New(dtype, shape, data)
}

// Full creates a float64 tensor filled with the given value.
func Full(shape Shape, value float64) (*Tensor, error) {
	data := make([]float64, shape.NumElements())
	for i := range data {
		data[i] = value
	}
	return New(Float64, shape, data)
}

// Arange creates a 1D float64 tensor [0, 1, ..., n-1].
func Arange(n int64) (*Tensor, error) {
	if n <= 0 {
		return nil, fmt.Errorf("arange length must be > 0, got %d", n)
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}
	return New(Float64, Shape{n}, data)
}

// DataType returns the element type tag.
func (t *Tensor) DataType() DataType {
	return t.dtype
}

// Shape returns the tensor shape. The caller must not mutate it.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// NumElements returns the total element count.
func (t *Tensor) NumElements() int64 {
	return t.shape.NumElements()
}

// Float64s returns the backing slice of a float64 tensor.
func (t *Tensor) Float64s() ([]float64, error) {
	v, ok := t.data.([]float64)
	if !ok {
		return nil, fmt.Errorf("tensor is %s, not float64", t.dtype)
	}
	return v, nil
}

// Float32s returns the backing slice of a float32 tensor.
func (t *Tensor) Float32s() ([]float32, error) {
	v, ok := t.data.([]float32)
	if !ok {
		return nil, fmt.Errorf("tensor is %s, not float32", t.dtype)
	}
	return v, nil
}

// Int64s returns the backing slice of an int64 tensor.
func (t *Tensor) Int64s() ([]int64, error) {
	v, ok := t.data.([]int64)
	if !ok {
		return nil, fmt.Errorf("tensor is %s, not int64", t.dtype)
	}
	return v, nil
}

// Int32s returns the backing slice of an int32 tensor.
func (t *Tensor) Int32s() ([]int32, error) {
	v, ok := t.data.([]int32)
	if !ok {
		return nil, fmt.Errorf("tensor is %s, not int32", t.dtype)
	}
	return v, nil
}

// Data returns the backing slice as an untyped value.
func (t *Tensor) Data() any {
	return t.data
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	clone := &Tensor{dtype: t.dtype, shape: t.shape.Clone()}
	switch v := t.data.(type) {
	case []float64:
		clone.data = append([]float64(nil), v...)
	case []float32:
		clone.data = append([]float32(nil), v...)
	case []int64:
		clone.data = append([]int64(nil), v...)
	case []int32:
		clone.data = append([]int32(nil), v...)
	case []uint8:
		clone.data = append([]uint8(nil), v...)
	case []bool:
		clone.data = append([]bool(nil), v...)
	}
	return clone
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%s, shape=%v)", t.dtype, t.shape)
}
