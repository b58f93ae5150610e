package tensor

import "fmt"

// Concat concatenates tensors along axis 0. All tensors must share the
// data type and the trailing dimensions (everything after the leading
// axis). Used to stack per-request batches into one batch.
func Concat(tensors []*Tensor) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("concat of zero tensors")
	}
	first := tensors[0]
	if len(first.shape) == 0 {
		return nil, fmt.Errorf("cannot concat scalar tensors")
	}
	trailing := first.shape[1:]
	total := int64(0)
	for i, t := range tensors {
		if t.dtype != first.dtype {
			return nil, fmt.Errorf("concat dtype mismatch: tensor 0 is %s, tensor %d is %s", first.dtype, i, t.dtype)
		}
		if len(t.shape) == 0 || !t.shape[1:].Equal(trailing) {
			return nil, fmt.Errorf("concat shape mismatch: tensor 0 is %v, tensor %d is %v", first.shape, i, t.shape)
		}
		total += t.shape[0]
	}

	outShape := append(Shape{total}, trailing...)
	out, err := Zeros(first.dtype, outShape)
	if err != nil {
		return nil, err
	}
	offset := 0
	for _, t := range tensors {
		offset += copyFlat(out.data, offset, t.data)
	}
	return out, nil
}

// SplitN splits a tensor along axis 0 into parts with the given leading
// dimensions. The sizes must sum to the tensor's leading dimension.
// Inverse of Concat.
func SplitN(t *Tensor, sizes []int64) ([]*Tensor, error) {
	if len(t.shape) == 0 {
		return nil, fmt.Errorf("cannot split scalar tensor")
	}
	total := int64(0)
	for i, n := range sizes {
		if n <= 0 {
			return nil, fmt.Errorf("invalid split size %d at index %d", n, i)
		}
		total += n
	}
	if total != t.shape[0] {
		return nil, fmt.Errorf("split sizes sum to %d, tensor has leading dimension %d", total, t.shape[0])
	}

	rowSize := int64(1)
	for _, dim := range t.shape[1:] {
		rowSize *= dim
	}

	parts := make([]*Tensor, len(sizes))
	offset := int64(0)
	for i, n := range sizes {
		shape := append(Shape{n}, t.shape[1:]...)
		part, err := Zeros(t.dtype, shape)
		if err != nil {
			return nil, err
		}
		copyFlatRange(part.data, t.data, offset*rowSize, n*rowSize)
		parts[i] = part
		offset += n
	}
	return parts, nil
}

// copyFlat copies src entirely into dst starting at offset and returns
// the number of elements copied.
func copyFlat(dst any, offset int, src any) int {
	switch d := dst.(type) {
	case []float64:
		return copy(d[offset:], src.([]float64))
	case []float32:
		return copy(d[offset:], src.([]float32))
	case []int64:
		return copy(d[offset:], src.([]int64))
	case []int32:
		return copy(d[offset:], src.([]int32))
	case []uint8:
		return copy(d[offset:], src.([]uint8))
	case []bool:
		return copy(d[offset:], src.([]bool))
	default:
		panic(fmt.Sprintf("unsupported backing slice %T", dst))
	}
}

// copyFlatRange copies n elements from src starting at from into dst.
func copyFlatRange(dst any, src any, from, n int64) {
	switch d := dst.(type) {
	case []float64:
		copy(d, src.([]float64)[from:from+n])
	case []float32:
		copy(d, src.([]float32)[from:from+n])
	case []int64:
		copy(d, src.([]int64)[from:from+n])
	case []int32:
		copy(d, src.([]int32)[from:from+n])
	case []uint8:
		copy(d, src.([]uint8)[from:from+n])
	case []bool:
		copy(d, src.([]bool)[from:from+n])
	default:
		panic(fmt.Sprintf("unsupported backing slice %T", dst))
	}
}
