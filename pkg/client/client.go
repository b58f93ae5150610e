// Package client provides HTTP clients for models bound through
// pkg/serving: a blocking ModelClient and a worker-pool FuturesClient.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	apiv2 "github.com/modelbind/modelbind/api/v2"
	"github.com/modelbind/modelbind/pkg/tensor"
)

// ModelClient talks to one model on one server. Safe for concurrent
// use. Create with New; a client holds no connection state beyond the
// underlying http.Client, so Close is not required.
type ModelClient struct {
	baseURL    string
	modelName  string
	httpClient *http.Client
	opts       options

	mu   sync.Mutex
	meta *apiv2.ModelMetadata
}

// New creates a client for the named model. The URL may be
// "http://host:port" or bare "host:port" (http assumed). With lazy
// init disabled the constructor waits for the model to become ready
// and fetches its metadata, bounded by the init timeout.
func New(serverURL, modelName string, opts ...Option) (*ModelClient, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	base, err := normalizeURL(serverURL)
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name must not be empty")
	}

	c := &ModelClient{
		baseURL:    base,
		modelName:  modelName,
		httpClient: o.httpClient,
		opts:       o,
	}

	if !o.lazyInit {
		ctx, cancel := context.WithTimeout(context.Background(), o.initTimeout)
		defer cancel()
		if err := c.WaitForModel(ctx); err != nil {
			return nil, err
		}
		if _, err := c.Metadata(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func normalizeURL(serverURL string) (string, error) {
	if serverURL == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if !strings.Contains(serverURL, "://") {
		serverURL = "http://" + serverURL
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidURL, serverURL)
	}
	return "http://" + u.Host, nil
}

// ModelName returns the model this client is bound to.
func (c *ModelClient) ModelName() string {
	return c.modelName
}

// WaitForModel polls server liveness, server readiness, and model
// readiness until the model is ready or the context expires. If the
// repository index reports the model unavailable, it fails fast with
// ErrModelUnavailable.
func (c *ModelClient) WaitForModel(ctx context.Context) error {
	log := klog.FromContext(ctx)

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.initTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.opts.pollInterval)
	defer ticker.Stop()

	for {
		ready, err := c.checkModelReady(ctx)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		log.V(2).Info("model not ready yet", "model", c.modelName)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: model %q", ErrTimeout, c.modelName)
		case <-ticker.C:
		}
	}
}

// checkModelReady performs one readiness probe round. A false return
// with nil error means keep polling.
func (c *ModelClient) checkModelReady(ctx context.Context) (bool, error) {
	for _, probe := range []string{"/v2/health/live", "/v2/health/ready"} {
		code, err := c.getStatus(ctx, probe)
		if err != nil || code != http.StatusOK {
			return false, nil
		}
	}

	code, err := c.getStatus(ctx, "/v2/models/"+c.modelName+"/ready")
	if err != nil {
		return false, nil
	}
	switch code {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		// Distinguish "not bound yet" from "gone": consult the index.
		unavailable, err := c.modelUnavailable(ctx)
		if err != nil {
			return false, nil
		}
		if unavailable {
			return false, fmt.Errorf("%w: model %q", ErrModelUnavailable, c.modelName)
		}
		return false, nil
	default:
		return false, nil
	}
}

func (c *ModelClient) modelUnavailable(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/repository/index", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %v reading repository index", resp.Status)
	}

	var index []apiv2.RepositoryModel
	if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
		return false, err
	}
	for _, m := range index {
		if m.Name == c.modelName {
			return m.State == "UNAVAILABLE", nil
		}
	}
	return false, nil
}

func (c *ModelClient) getStatus(ctx context.Context, path string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, nil
}

// Metadata fetches the model metadata, cached after the first call.
func (c *ModelClient) Metadata(ctx context.Context) (apiv2.ModelMetadata, error) {
	c.mu.Lock()
	if c.meta != nil {
		meta := *c.meta
		c.mu.Unlock()
		return meta, nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/models/"+c.modelName, nil)
	if err != nil {
		return apiv2.ModelMetadata{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apiv2.ModelMetadata{}, fmt.Errorf("fetching metadata for %q: %w", c.modelName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return apiv2.ModelMetadata{}, fmt.Errorf("%w: model %q", ErrModelUnavailable, c.modelName)
	}
	if resp.StatusCode != http.StatusOK {
		return apiv2.ModelMetadata{}, fmt.Errorf("unexpected status %v fetching metadata for %q", resp.Status, c.modelName)
	}

	var meta apiv2.ModelMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return apiv2.ModelMetadata{}, fmt.Errorf("decoding metadata for %q: %w", c.modelName, err)
	}

	c.mu.Lock()
	c.meta = &meta
	c.mu.Unlock()
	return meta, nil
}

// InferBatch runs inference on batched inputs (each tensor carries a
// leading batch dimension). The model must be bound with batching
// enabled.
func (c *ModelClient) InferBatch(ctx context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	meta, err := c.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	if meta.MaxBatchSize <= 0 {
		return nil, fmt.Errorf("%w: model %q", ErrModelDoesntSupportBatching, c.modelName)
	}
	return c.doInfer(ctx, inputs)
}

// Infer runs inference on a single sample (no batch dimension). For a
// batching model the batch dimension of size 1 is added and stripped
// transparently.
func (c *ModelClient) Infer(ctx context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	meta, err := c.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	if meta.MaxBatchSize <= 0 {
		return c.doInfer(ctx, inputs)
	}

	expanded := make(map[string]*tensor.Tensor, len(inputs))
	for name, t := range inputs {
		e, err := withBatchDim(t)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		expanded[name] = e
	}
	outputs, err := c.doInfer(ctx, expanded)
	if err != nil {
		return nil, err
	}
	stripped := make(map[string]*tensor.Tensor, len(outputs))
	for name, t := range outputs {
		s, err := withoutBatchDim(t)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", name, err)
		}
		stripped[name] = s
	}
	return stripped, nil
}

func (c *ModelClient) doInfer(ctx context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	wireReq := apiv2.InferRequest{ID: uuid.NewString()}
	for _, name := range names {
		wt, err := apiv2.EncodeTensor(name, inputs[name])
		if err != nil {
			return nil, err
		}
		wireReq.Inputs = append(wireReq.Inputs, wt)
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("encoding infer request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v2/models/"+c.modelName+"/infer", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var wireErr apiv2.Error
		if err := json.NewDecoder(resp.Body).Decode(&wireErr); err != nil || wireErr.Error == "" {
			return nil, fmt.Errorf("%w: unexpected status %v", ErrInference, resp.Status)
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, wireErr.Error)
		}
		return nil, fmt.Errorf("%w: %s", ErrInference, wireErr.Error)
	}

	var wireResp apiv2.InferResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return nil, fmt.Errorf("decoding infer response: %w", err)
	}

	outputs := make(map[string]*tensor.Tensor, len(wireResp.Outputs))
	for _, wt := range wireResp.Outputs {
		t, err := apiv2.DecodeTensor(wt)
		if err != nil {
			return nil, fmt.Errorf("decoding output: %w", err)
		}
		outputs[wt.Name] = t
	}
	return outputs, nil
}

// withBatchDim returns a view of t with a leading dimension of 1.
func withBatchDim(t *tensor.Tensor) (*tensor.Tensor, error) {
	shape := append(tensor.Shape{1}, t.Shape()...)
	return tensor.New(t.DataType(), shape, t.Data())
}

// withoutBatchDim strips a leading dimension of 1.
func withoutBatchDim(t *tensor.Tensor) (*tensor.Tensor, error) {
	shape := t.Shape()
	if len(shape) == 0 || shape[0] != 1 {
		return nil, fmt.Errorf("tensor shape %v has no leading batch dimension of 1", shape)
	}
	return tensor.New(t.DataType(), shape[1:].Clone(), t.Data())
}
