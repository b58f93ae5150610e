package v2

import (
	"encoding/json"
	"fmt"

	"github.com/modelbind/modelbind/pkg/tensor"
)

// EncodeTensor converts a runtime tensor to its wire form.
func EncodeTensor(name string, t *tensor.Tensor) (Tensor, error) {
	var payload any
	switch t.DataType() {
	case tensor.Uint8:
		// encoding/json emits []uint8 as base64; widen to keep the
		// wire format a plain number array.
		raw := t.Data().([]uint8)
		widened := make([]int16, len(raw))
		for i, v := range raw {
			widened[i] = int16(v)
		}
		payload = widened
	default:
		payload = t.Data()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Tensor{}, fmt.Errorf("encoding tensor %q data: %w", name, err)
	}
	return Tensor{
		Name:     name,
		Datatype: t.DataType().WireName(),
		Shape:    t.Shape().Clone(),
		Data:     data,
	}, nil
}

// DecodeTensor converts a wire tensor back to a runtime tensor,
// checking the data type, shape, and element count.
func DecodeTensor(wt Tensor) (*tensor.Tensor, error) {
	dtype, err := tensor.ParseWireName(wt.Datatype)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", wt.Name, err)
	}

	var data any
	switch dtype {
	case tensor.Float64:
		v := []float64{}
		err = json.Unmarshal(wt.Data, &v)
		data = v
	case tensor.Float32:
		v := []float32{}
		err = json.Unmarshal(wt.Data, &v)
		data = v
	case tensor.Int64:
		v := []int64{}
		err = json.Unmarshal(wt.Data, &v)
		data = v
	case tensor.Int32:
		v := []int32{}
		err = json.Unmarshal(wt.Data, &v)
		data = v
	case tensor.Uint8:
		widened := []int16{}
		err = json.Unmarshal(wt.Data, &widened)
		if err == nil {
			v := make([]uint8, len(widened))
			for i, w := range widened {
				if w < 0 || w > 255 {
					return nil, fmt.Errorf("tensor %q: value %d out of range for uint8", wt.Name, w)
				}
				v[i] = uint8(w)
			}
			data = v
		}
	case tensor.Bool:
		v := []bool{}
		err = json.Unmarshal(wt.Data, &v)
		data = v
	}
	if err != nil {
		return nil, fmt.Errorf("decoding tensor %q data: %w", wt.Name, err)
	}

	t, err := tensor.New(dtype, tensor.Shape(wt.Shape), data)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", wt.Name, err)
	}
	return t, nil
}
