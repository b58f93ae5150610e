package tensor

import "fmt"

// Shape holds the dimensions of a tensor. Dimensions are int64 because
// they travel on the wire; -1 never appears in a concrete shape (it is
// only valid in a spec, see pkg/model).
type Shape []int64

// NumElements returns the total element count. A scalar (empty shape)
// has one element.
func (s Shape) NumElements() int64 {
	n := int64(1)
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that all dimensions are positive.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension %d at axis %d (must be > 0)", dim, i)
		}
	}
	return nil
}

// Equal reports whether two shapes are identical.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// BatchSize returns the leading dimension, or an error for scalars.
func (s Shape) BatchSize() (int64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("scalar shape has no batch dimension")
	}
	return s[0], nil
}
