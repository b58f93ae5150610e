// Package tensor provides the named-array data model used on the wire
// and inside bound models: a runtime data type tag, a shape, and flat
// row-major storage.
package tensor

import "fmt"

// DataType is runtime type information for a tensor.
type DataType int

// Supported data types.
const (
	Float64 DataType = iota
	Float32
	Int64
	Int32
	Uint8
	Bool
)

// Size returns the byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case Float64, Int64:
		return 8
	case Float32, Int32:
		return 4
	case Uint8, Bool:
		return 1
	default:
		panic(fmt.Sprintf("unknown data type %d", int(dt)))
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float64:
		return "float64"
	case Float32:
		return "float32"
	case Int64:
		return "int64"
	case Int32:
		return "int32"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// WireName returns the data type name used in the inference protocol
// ("FP64", "FP32", "INT64", "INT32", "UINT8", "BOOL").
func (dt DataType) WireName() string {
	switch dt {
	case Float64:
		return "FP64"
	case Float32:
		return "FP32"
	case Int64:
		return "INT64"
	case Int32:
		return "INT32"
	case Uint8:
		return "UINT8"
	case Bool:
		return "BOOL"
	default:
		return "UNKNOWN"
	}
}

// ParseWireName maps a protocol data type name back to a DataType.
func ParseWireName(s string) (DataType, error) {
	switch s {
	case "FP64":
		return Float64, nil
	case "FP32":
		return Float32, nil
	case "INT64":
		return Int64, nil
	case "INT32":
		return Int32, nil
	case "UINT8":
		return Uint8, nil
	case "BOOL":
		return Bool, nil
	default:
		return 0, fmt.Errorf("unsupported data type %q", s)
	}
}
