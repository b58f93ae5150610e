package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelbind/modelbind/pkg/model"
	"github.com/modelbind/modelbind/pkg/serving"
	"github.com/modelbind/modelbind/pkg/tensor"
)

// linearBatch computes lin = 2*u + v + beta with beta[i] = i over a
// stacked (batch, 10) input.
func linearBatch(_ context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
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

// startLinearServer serves the Linear model on a free port and returns
// its base URL.
func startLinearServer(t *testing.T, maxBatchSize int) string {
	t.Helper()

	s := serving.New(serving.Config{HTTPAddress: "127.0.0.1", HTTPPort: 0, ShutdownTimeout: time.Second})
	inputs, outputs := linearSpecs()
	require.NoError(t, s.Bind("Linear", model.Batch(linearBatch), inputs, outputs, model.Config{MaxBatchSize: maxBatchSize}))
	require.NoError(t, s.Run(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })
	return "http://" + s.Addr()
}

func ones(t *testing.T, shape tensor.Shape) *tensor.Tensor {
	t.Helper()
	full, err := tensor.Full(shape, 1)
	require.NoError(t, err)
	return full
}

func TestNewRejectsInvalidURL(t *testing.T) {
	for _, url := range []string{"", "grpc://localhost:8001", "http://"} {
		_, err := New(url, "Linear")
		assert.ErrorIs(t, err, ErrInvalidURL, "url %q", url)
	}
}

func TestNewAcceptsBareHostPort(t *testing.T) {
	c, err := New("localhost:8000", "Linear")
	require.NoError(t, err)
	assert.Equal(t, "Linear", c.ModelName())
}

func TestNonLazyInit(t *testing.T) {
	baseURL := startLinearServer(t, 8)

	c, err := New(baseURL, "Linear",
		WithLazyInit(false),
		WithInitTimeout(5*time.Second),
		WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	meta, err := c.Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Linear", meta.Name)
	assert.Equal(t, 8, meta.MaxBatchSize)
}

func TestNonLazyInitTimesOutOnDeadServer(t *testing.T) {
	_, err := New("127.0.0.1:1", "Linear",
		WithLazyInit(false),
		WithInitTimeout(200*time.Millisecond),
		WithPollInterval(20*time.Millisecond))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWaitForModelUnavailable(t *testing.T) {
	s := serving.New(serving.Config{HTTPAddress: "127.0.0.1", HTTPPort: 0, ShutdownTimeout: time.Second})
	inputs, outputs := linearSpecs()
	require.NoError(t, s.Bind("Linear", model.Batch(linearBatch), inputs, outputs, model.Config{MaxBatchSize: 8}))
	require.NoError(t, s.Run(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })
	require.NoError(t, s.Unbind("Linear"))

	c, err := New("http://"+s.Addr(), "Linear", WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = c.WaitForModel(ctx)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestInferBatchRoundTrip(t *testing.T) {
	baseURL := startLinearServer(t, 8)

	c, err := New(baseURL, "Linear")
	require.NoError(t, err)

	outputs, err := c.InferBatch(context.Background(), map[string]*tensor.Tensor{
		"u": ones(t, tensor.Shape{2, 10}),
		"v": ones(t, tensor.Shape{2, 10}),
	})
	require.NoError(t, err)

	lin := outputs["lin"]
	require.NotNil(t, lin)
	assert.True(t, lin.Shape().Equal(tensor.Shape{2, 10}), "shape %v", lin.Shape())

	values, err := lin.Float64s()
	require.NoError(t, err)
	for row := 0; row < 2; row++ {
		for i := 0; i < 10; i++ {
			assert.Equal(t, float64(3+i), values[row*10+i], "row %d element %d", row, i)
		}
	}
}

func TestInferSingleSample(t *testing.T) {
	baseURL := startLinearServer(t, 8)

	c, err := New(baseURL, "Linear")
	require.NoError(t, err)

	outputs, err := c.Infer(context.Background(), map[string]*tensor.Tensor{
		"u": ones(t, tensor.Shape{10}),
		"v": ones(t, tensor.Shape{10}),
	})
	require.NoError(t, err)

	lin := outputs["lin"]
	require.NotNil(t, lin)
	assert.True(t, lin.Shape().Equal(tensor.Shape{10}), "shape %v", lin.Shape())

	values, err := lin.Float64s()
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		assert.Equal(t, float64(3+i), values[i])
	}
}

func TestInferBatchRequiresBatchingModel(t *testing.T) {
	// MaxBatchSize 0 binds the model without a batch dimension.
	s := serving.New(serving.Config{HTTPAddress: "127.0.0.1", HTTPPort: 0, ShutdownTimeout: time.Second})
	inputs, outputs := linearSpecs()
	unbatched := func(ctx context.Context, requests []*model.Request) ([]*model.Response, error) {
		responses := make([]*model.Response, len(requests))
		for i, req := range requests {
			out, err := linearBatch(ctx, req.Inputs)
			if err != nil {
				return nil, err
			}
			responses[i] = &model.Response{Outputs: out}
		}
		return responses, nil
	}
	require.NoError(t, s.Bind("Linear", unbatched, inputs, outputs, model.Config{MaxBatchSize: 0}))
	require.NoError(t, s.Run(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })

	c, err := New("http://"+s.Addr(), "Linear")
	require.NoError(t, err)

	_, err = c.InferBatch(context.Background(), map[string]*tensor.Tensor{
		"u": ones(t, tensor.Shape{2, 10}),
		"v": ones(t, tensor.Shape{2, 10}),
	})
	assert.ErrorIs(t, err, ErrModelDoesntSupportBatching)

	outputs2, err := c.Infer(context.Background(), map[string]*tensor.Tensor{
		"u": ones(t, tensor.Shape{10}),
		"v": ones(t, tensor.Shape{10}),
	})
	require.NoError(t, err)
	assert.True(t, outputs2["lin"].Shape().Equal(tensor.Shape{10}))
}

func TestInferServerErrorWrapsErrInference(t *testing.T) {
	baseURL := startLinearServer(t, 8)

	c, err := New(baseURL, "Linear")
	require.NoError(t, err)

	// Batch size 9 exceeds the bound maximum of 8.
	_, err = c.InferBatch(context.Background(), map[string]*tensor.Tensor{
		"u": ones(t, tensor.Shape{9, 10}),
		"v": ones(t, tensor.Shape{9, 10}),
	})
	assert.ErrorIs(t, err, ErrInference)
}
