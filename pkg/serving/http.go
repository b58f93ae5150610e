package serving

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"

	apiv2 "github.com/modelbind/modelbind/api/v2"
	"github.com/modelbind/modelbind/pkg/model"
	"github.com/modelbind/modelbind/pkg/tensor"
)

// ServeHTTP routes the v2 endpoint surface:
//
//	GET  /v2/health/live
//	GET  /v2/health/ready
//	GET  /v2/models/{name}
//	GET  /v2/models/{name}/ready
//	POST /v2/models/{name}/infer
//	GET  /v2/repository/index
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tokens := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(tokens) == 0 || tokens[0] != "v2" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	tokens = tokens[1:]

	switch {
	case len(tokens) == 2 && tokens[0] == "health":
		s.serveHealth(w, r, tokens[1])
	case len(tokens) == 2 && tokens[0] == "repository" && tokens[1] == "index":
		s.serveRepositoryIndex(w, r)
	case len(tokens) == 2 && tokens[0] == "models":
		s.serveModelMetadata(w, r, tokens[1])
	case len(tokens) == 3 && tokens[0] == "models" && tokens[2] == "ready":
		s.serveModelReady(w, r, tokens[1])
	case len(tokens) == 3 && tokens[0] == "models" && tokens[2] == "infer":
		s.serveInfer(w, r, tokens[1])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request, probe string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	switch probe {
	case "live":
		w.WriteHeader(http.StatusOK)
	case "ready":
		if !s.ready() {
			writeError(w, http.StatusServiceUnavailable, "server not ready")
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) serveRepositoryIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	bindings := s.listBindings()
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].name < bindings[j].name })

	index := make([]apiv2.RepositoryModel, 0, len(bindings))
	for _, b := range bindings {
		index = append(index, apiv2.RepositoryModel{
			Name:    b.name,
			Version: "1",
			State:   string(b.state),
			Reason:  b.reason,
		})
	}
	writeJSON(w, http.StatusOK, index)
}

func (s *Server) serveModelMetadata(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	b, ok := s.getBinding(name)
	if !ok || b.state == ModelUnavailable {
		writeError(w, http.StatusNotFound, fmt.Sprintf("model %q not found", name))
		return
	}
	writeJSON(w, http.StatusOK, apiv2.ModelMetadata{
		Name:         b.name,
		Versions:     []string{"1"},
		Platform:     apiv2.Platform,
		Inputs:       specsToMetadata(b.inputs),
		Outputs:      specsToMetadata(b.outputs),
		MaxBatchSize: b.cfg.MaxBatchSize,
	})
}

func (s *Server) serveModelReady(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	b, ok := s.getBinding(name)
	if !ok || b.state == ModelUnavailable {
		writeError(w, http.StatusNotFound, fmt.Sprintf("model %q not found", name))
		return
	}
	if b.state != ModelReady {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("model %q is %s", name, b.state))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) serveInfer(w http.ResponseWriter, r *http.Request, name string) {
	ctx := r.Context()
	log := klog.FromContext(ctx)

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	b, ok := s.getBinding(name)
	if !ok || b.state == ModelUnavailable {
		writeError(w, http.StatusNotFound, fmt.Sprintf("model %q not found", name))
		return
	}
	if b.state != ModelReady {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("model %q is %s", name, b.state))
		return
	}

	var wireReq apiv2.InferRequest
	if err := json.NewDecoder(r.Body).Decode(&wireReq); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decoding request: %v", err))
		return
	}

	inputs := make(map[string]*tensor.Tensor, len(wireReq.Inputs))
	for _, wt := range wireReq.Inputs {
		if _, dup := inputs[wt.Name]; dup {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("duplicate input %q", wt.Name))
			return
		}
		t, err := apiv2.DecodeTensor(wt)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		inputs[wt.Name] = t
	}
	if err := model.ValidateInputs(b.inputs, b.cfg, inputs); err != nil {
		writeStatusError(w, err)
		return
	}

	id := wireReq.ID
	if id == "" {
		id = uuid.NewString()
	}
	req := &model.Request{
		ID:         id,
		Inputs:     inputs,
		Parameters: wireReq.Parameters,
	}

	startedAt := time.Now()
	responses, err := b.inferFn(ctx, []*model.Request{req})
	if err != nil {
		log.Error(err, "inference failed", "model", name, "id", id)
		writeStatusError(w, err)
		return
	}
	if len(responses) != 1 {
		writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("model %q returned %d responses for 1 request", name, len(responses)))
		return
	}
	log.V(2).Info("inference complete", "model", name, "id", id, "duration", time.Since(startedAt))

	outputs := responses[0].Outputs
	wireResp := apiv2.InferResponse{
		ModelName:    name,
		ModelVersion: "1",
		ID:           id,
	}
	for _, spec := range b.outputs {
		if len(wireReq.Outputs) > 0 && !outputRequested(wireReq.Outputs, spec.Name) {
			continue
		}
		out, ok := outputs[spec.Name]
		if !ok {
			writeError(w, http.StatusInternalServerError,
				fmt.Sprintf("model %q did not produce output %q", name, spec.Name))
			return
		}
		if err := spec.Matches(out, b.cfg.SupportsBatching()); err != nil {
			writeError(w, http.StatusInternalServerError,
				fmt.Sprintf("model %q output: %v", name, err))
			return
		}
		wt, err := apiv2.EncodeTensor(spec.Name, out)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		wireResp.Outputs = append(wireResp.Outputs, wt)
	}
	writeJSON(w, http.StatusOK, wireResp)
}

func outputRequested(requested []apiv2.RequestedOutput, name string) bool {
	for _, r := range requested {
		if r.Name == name {
			return true
		}
	}
	return false
}

func specsToMetadata(specs []model.TensorSpec) []apiv2.TensorMetadata {
	out := make([]apiv2.TensorMetadata, len(specs))
	for i, spec := range specs {
		dims := make([]int64, len(spec.Dims))
		copy(dims, spec.Dims)
		out[i] = apiv2.TensorMetadata{
			Name:     spec.Name,
			Datatype: spec.DataType.WireName(),
			Shape:    dims,
		}
	}
	return out
}

// writeStatusError maps grpc status codes carried by validation and
// model errors onto HTTP statuses.
func writeStatusError(w http.ResponseWriter, err error) {
	switch status.Code(err) {
	case codes.InvalidArgument:
		writeError(w, http.StatusBadRequest, err.Error())
	case codes.NotFound:
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.Background().Error(err, "encoding response")
	}
}

func writeError(w http.ResponseWriter, statusCode int, msg string) {
	writeJSON(w, statusCode, apiv2.Error{Error: msg})
}
