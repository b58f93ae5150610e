// Package v2 defines the JSON wire types for the inference protocol
// spoken between pkg/serving and pkg/client: health, model metadata,
// repository index, and the infer request/response with named, typed,
// shaped tensors.
package v2

import "encoding/json"

// Tensor is a named tensor on the wire. Data is the flat row-major
// element list as a JSON array.
type Tensor struct {
	Name     string          `json:"name"`
	Datatype string          `json:"datatype"`
	Shape    []int64         `json:"shape"`
	Data     json.RawMessage `json:"data"`
}

// RequestedOutput names an output the client wants returned. An empty
// list means all outputs.
type RequestedOutput struct {
	Name string `json:"name"`
}

// InferRequest is the body of POST /v2/models/{name}/infer.
type InferRequest struct {
	ID         string            `json:"id,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Inputs     []Tensor          `json:"inputs"`
	Outputs    []RequestedOutput `json:"outputs,omitempty"`
}

// InferResponse is the body returned from an infer call.
type InferResponse struct {
	ModelName    string   `json:"model_name"`
	ModelVersion string   `json:"model_version,omitempty"`
	ID           string   `json:"id,omitempty"`
	Outputs      []Tensor `json:"outputs"`
}

// TensorMetadata describes one input or output of a model. Shape
// excludes the batch dimension; -1 marks a dynamic dimension.
type TensorMetadata struct {
	Name     string  `json:"name"`
	Datatype string  `json:"datatype"`
	Shape    []int64 `json:"shape"`
}

// ModelMetadata is the body of GET /v2/models/{name}.
type ModelMetadata struct {
	Name         string           `json:"name"`
	Versions     []string         `json:"versions,omitempty"`
	Platform     string           `json:"platform"`
	Inputs       []TensorMetadata `json:"inputs"`
	Outputs      []TensorMetadata `json:"outputs"`
	MaxBatchSize int              `json:"max_batch_size"`
}

// RepositoryModel is one entry of GET /v2/repository/index.
type RepositoryModel struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	State   string `json:"state"`
	Reason  string `json:"reason,omitempty"`
}

// Error is the body returned with non-2xx statuses.
type Error struct {
	Error string `json:"error"`
}

// Platform identifies models bound through this library in metadata
// responses.
const Platform = "modelbind_go"
