package serving

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	apiv2 "github.com/modelbind/modelbind/api/v2"
	"github.com/modelbind/modelbind/pkg/model"
	"github.com/modelbind/modelbind/pkg/tensor"
)

func linearSpecs() (inputs, outputs []model.TensorSpec) {
	inputs = []model.TensorSpec{
		{Name: "u", DataType: tensor.Float64, Dims: []int64{10}},
		{Name: "v", DataType: tensor.Float64, Dims: []int64{10}},
	}
	outputs = []model.TensorSpec{
		{Name: "lin", DataType: tensor.Float64, Dims: []int64{10}},
	}
	return inputs, outputs
}

// linearInfer computes lin = 2*u + v + beta with beta[i] = i.
func linearInfer(_ context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	u, err := inputs["u"].Float64s()
	if err != nil {
		return nil, err
	}
	v, err := inputs["v"].Float64s()
	if err != nil {
		return nil, err
	}
	lin := make([]float64, len(u))
	for i := range u {
		lin[i] = 2*u[i] + v[i] + float64(i%10)
	}
	out, err := tensor.NewFloat64(inputs["u"].Shape().Clone(), lin)
	if err != nil {
		return nil, err
	}
	return map[string]*tensor.Tensor{"lin": out}, nil
}

// startLinearServer binds the linear model and starts a server on a
// free port. Returns the base URL.
func startLinearServer(t *testing.T) (*Server, string) {
	t.Helper()

	s := New(Config{HTTPAddress: "127.0.0.1", HTTPPort: 0, ShutdownTimeout: time.Second})
	inputs, outputs := linearSpecs()
	if err := s.Bind("Linear", model.Batch(linearInfer), inputs, outputs, model.Config{MaxBatchSize: 8}); err != nil {
		t.Fatalf("Bind error: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Stop(); err != nil {
			t.Errorf("Stop error: %v", err)
		}
	})
	return s, "http://" + s.Addr()
}

func wireOnes(t *testing.T, name string, batch int64) apiv2.Tensor {
	t.Helper()
	ones, err := tensor.Full(tensor.Shape{batch, 10}, 1)
	if err != nil {
		t.Fatalf("Full error: %v", err)
	}
	wt, err := apiv2.EncodeTensor(name, ones)
	if err != nil {
		t.Fatalf("EncodeTensor error: %v", err)
	}
	return wt
}

func postInfer(t *testing.T, baseURL, modelName string, req apiv2.InferRequest) *http.Response {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	resp, err := http.Post(fmt.Sprintf("%s/v2/models/%s/infer", baseURL, modelName), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST infer: %v", err)
	}
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	_, baseURL := startLinearServer(t)

	for _, probe := range []string{"live", "ready"} {
		resp, err := http.Get(baseURL + "/v2/health/" + probe)
		if err != nil {
			t.Fatalf("GET health/%s: %v", probe, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("health/%s status = %d, want 200", probe, resp.StatusCode)
		}
	}
}

func TestModelMetadata(t *testing.T) {
	_, baseURL := startLinearServer(t)

	resp, err := http.Get(baseURL + "/v2/models/Linear")
	if err != nil {
		t.Fatalf("GET metadata: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metadata status = %d, want 200", resp.StatusCode)
	}

	var meta apiv2.ModelMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		t.Fatalf("decoding metadata: %v", err)
	}
	if meta.Name != "Linear" || meta.MaxBatchSize != 8 {
		t.Errorf("metadata = %+v", meta)
	}
	if len(meta.Inputs) != 2 || len(meta.Outputs) != 1 {
		t.Fatalf("metadata specs = %d inputs, %d outputs", len(meta.Inputs), len(meta.Outputs))
	}
	if meta.Inputs[0].Datatype != "FP64" || meta.Outputs[0].Name != "lin" {
		t.Errorf("metadata specs = %+v / %+v", meta.Inputs, meta.Outputs)
	}

	resp2, err := http.Get(baseURL + "/v2/models/NoSuchModel")
	if err != nil {
		t.Fatalf("GET metadata: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("unknown model metadata status = %d, want 404", resp2.StatusCode)
	}
}

func TestInferLinearIdentity(t *testing.T) {
	_, baseURL := startLinearServer(t)

	resp := postInfer(t, baseURL, "Linear", apiv2.InferRequest{
		ID:     "req-1",
		Inputs: []apiv2.Tensor{wireOnes(t, "u", 2), wireOnes(t, "v", 2)},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("infer status = %d, want 200", resp.StatusCode)
	}

	var wireResp apiv2.InferResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if wireResp.ModelName != "Linear" || wireResp.ID != "req-1" {
		t.Errorf("response header = %+v", wireResp)
	}
	if len(wireResp.Outputs) != 1 || wireResp.Outputs[0].Name != "lin" {
		t.Fatalf("outputs = %+v", wireResp.Outputs)
	}

	lin, err := apiv2.DecodeTensor(wireResp.Outputs[0])
	if err != nil {
		t.Fatalf("decoding lin: %v", err)
	}
	if !lin.Shape().Equal(tensor.Shape{2, 10}) {
		t.Fatalf("lin shape = %v, want [2 10]", lin.Shape())
	}
	values, _ := lin.Float64s()
	for row := 0; row < 2; row++ {
		for i := 0; i < 10; i++ {
			want := float64(3 + i)
			if values[row*10+i] != want {
				t.Errorf("lin[%d][%d] = %v, want %v", row, i, values[row*10+i], want)
			}
		}
	}
}

func TestInferGeneratesRequestID(t *testing.T) {
	_, baseURL := startLinearServer(t)

	resp := postInfer(t, baseURL, "Linear", apiv2.InferRequest{
		Inputs: []apiv2.Tensor{wireOnes(t, "u", 1), wireOnes(t, "v", 1)},
	})
	defer resp.Body.Close()

	var wireResp apiv2.InferResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if wireResp.ID == "" {
		t.Error("expected a generated request id")
	}
}

func TestInferRejectsBadInputs(t *testing.T) {
	_, baseURL := startLinearServer(t)

	// dtype mismatch
	f32, err := tensor.NewFloat32(tensor.Shape{1, 10}, make([]float32, 10))
	if err != nil {
		t.Fatalf("NewFloat32 error: %v", err)
	}
	wrongType, err := apiv2.EncodeTensor("u", f32)
	if err != nil {
		t.Fatalf("EncodeTensor error: %v", err)
	}
	resp := postInfer(t, baseURL, "Linear", apiv2.InferRequest{
		Inputs: []apiv2.Tensor{wrongType, wireOnes(t, "v", 1)},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("dtype mismatch status = %d, want 400", resp.StatusCode)
	}

	// batch size over the configured maximum
	resp = postInfer(t, baseURL, "Linear", apiv2.InferRequest{
		Inputs: []apiv2.Tensor{wireOnes(t, "u", 9), wireOnes(t, "v", 9)},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("oversized batch status = %d, want 400", resp.StatusCode)
	}

	// missing input
	resp = postInfer(t, baseURL, "Linear", apiv2.InferRequest{
		Inputs: []apiv2.Tensor{wireOnes(t, "u", 1)},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing input status = %d, want 400", resp.StatusCode)
	}

	// unknown model
	resp = postInfer(t, baseURL, "NoSuchModel", apiv2.InferRequest{
		Inputs: []apiv2.Tensor{wireOnes(t, "u", 1), wireOnes(t, "v", 1)},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown model status = %d, want 404", resp.StatusCode)
	}
}

func TestInferFunctionErrorIs500(t *testing.T) {
	s := New(Config{HTTPAddress: "127.0.0.1", HTTPPort: 0, ShutdownTimeout: time.Second})
	inputs, outputs := linearSpecs()
	failing := func(context.Context, []*model.Request) ([]*model.Response, error) {
		return nil, fmt.Errorf("model exploded")
	}
	if err := s.Bind("Broken", failing, inputs, outputs, model.Config{MaxBatchSize: 8}); err != nil {
		t.Fatalf("Bind error: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	defer s.Stop()

	resp := postInfer(t, "http://"+s.Addr(), "Broken", apiv2.InferRequest{
		Inputs: []apiv2.Tensor{wireOnes(t, "u", 1), wireOnes(t, "v", 1)},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("infer failure status = %d, want 500", resp.StatusCode)
	}
	var errBody apiv2.Error
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if errBody.Error == "" {
		t.Error("expected an error message in the body")
	}
}

func TestRepositoryIndexAndUnbind(t *testing.T) {
	s, baseURL := startLinearServer(t)

	readIndex := func() []apiv2.RepositoryModel {
		resp, err := http.Get(baseURL + "/v2/repository/index")
		if err != nil {
			t.Fatalf("GET index: %v", err)
		}
		defer resp.Body.Close()
		var index []apiv2.RepositoryModel
		if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
			t.Fatalf("decoding index: %v", err)
		}
		return index
	}

	index := readIndex()
	if len(index) != 1 || index[0].Name != "Linear" || index[0].State != string(ModelReady) {
		t.Fatalf("index = %+v", index)
	}

	if err := s.Unbind("Linear"); err != nil {
		t.Fatalf("Unbind error: %v", err)
	}

	index = readIndex()
	if index[0].State != string(ModelUnavailable) {
		t.Errorf("state after unbind = %s, want UNAVAILABLE", index[0].State)
	}

	resp := postInfer(t, baseURL, "Linear", apiv2.InferRequest{
		Inputs: []apiv2.Tensor{wireOnes(t, "u", 1), wireOnes(t, "v", 1)},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("infer after unbind status = %d, want 404", resp.StatusCode)
	}

	// An unbound model looks absent on the ready endpoint too, so
	// clients fall through to the repository index for the state.
	readyResp, err := http.Get(baseURL + "/v2/models/Linear/ready")
	if err != nil {
		t.Fatalf("GET model ready: %v", err)
	}
	readyResp.Body.Close()
	if readyResp.StatusCode != http.StatusNotFound {
		t.Errorf("ready after unbind status = %d, want 404", readyResp.StatusCode)
	}
}

func TestBindValidation(t *testing.T) {
	s := New(DefaultConfig())
	inputs, outputs := linearSpecs()
	infer := model.Batch(linearInfer)

	if err := s.Bind("", infer, inputs, outputs, model.Config{}); err == nil {
		t.Error("expected error for empty name")
	}
	if err := s.Bind("Linear", nil, inputs, outputs, model.Config{}); err == nil {
		t.Error("expected error for nil infer function")
	}
	if err := s.Bind("Linear", infer, nil, outputs, model.Config{}); err == nil {
		t.Error("expected error for empty input specs")
	}
	if err := s.Bind("Linear", infer, inputs, outputs, model.Config{MaxBatchSize: -1}); err == nil {
		t.Error("expected error for negative max batch size")
	}
	if err := s.Bind("Linear", infer, inputs, outputs, model.Config{MaxBatchSize: 8}); err != nil {
		t.Fatalf("Bind error: %v", err)
	}
	if err := s.Bind("Linear", infer, inputs, outputs, model.Config{MaxBatchSize: 8}); err == nil {
		t.Error("expected error for duplicate model name")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(Config{HTTPAddress: "127.0.0.1", HTTPPort: 0, ShutdownTimeout: time.Second})
	inputs, outputs := linearSpecs()
	if err := s.Bind("Linear", model.Batch(linearInfer), inputs, outputs, model.Config{MaxBatchSize: 8}); err != nil {
		t.Fatalf("Bind error: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop error: %v", err)
	}
}
