package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelbind/modelbind/pkg/artifacts"
	"github.com/modelbind/modelbind/pkg/tensor"
)

// linearParams are the constants of the served computation
// lin = alpha*u + v + beta.
type linearParams struct {
	Alpha float64   `json:"alpha"`
	Beta  []float64 `json:"beta"`
}

// defaultParams returns alpha=2 and beta=[0..9].
func defaultParams() linearParams {
	beta := make([]float64, 10)
	for i := range beta {
		beta[i] = float64(i)
	}
	return linearParams{Alpha: 2, Beta: beta}
}

// loadParams fetches a parameter JSON artifact by hash from an
// artifact store.
func loadParams(ctx context.Context, storeURL, hash string) (linearParams, error) {
	if !strings.Contains(storeURL, "://") {
		storeURL = "http://" + storeURL
	}
	base, err := url.Parse(storeURL)
	if err != nil {
		return linearParams{}, fmt.Errorf("parsing artifact store url %q: %w", storeURL, err)
	}
	reader := &artifacts.HTTPReader{BaseURL: base}

	localPath := filepath.Join(os.TempDir(), "linear-params-"+hash+".json")
	if err := reader.Fetch(ctx, artifacts.Info{Hash: hash}, localPath); err != nil {
		return linearParams{}, fmt.Errorf("fetching parameters: %w", err)
	}
	defer os.Remove(localPath)

	data, err := os.ReadFile(localPath)
	if err != nil {
		return linearParams{}, fmt.Errorf("reading parameters: %w", err)
	}

	var p linearParams
	if err := json.Unmarshal(data, &p); err != nil {
		return linearParams{}, fmt.Errorf("decoding parameters: %w", err)
	}
	if len(p.Beta) == 0 {
		return linearParams{}, fmt.Errorf("parameter artifact %q has empty beta", hash)
	}
	return p, nil
}

// infer computes lin = alpha*u + v + beta over a stacked
// (batch, len(beta)) float64 input.
func (p linearParams) infer(_ context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	u, err := inputs["u"].Float64s()
	if err != nil {
		return nil, err
	}
	v, err := inputs["v"].Float64s()
	if err != nil {
		return nil, err
	}

	dim := len(p.Beta)
	lin := make([]float64, len(u))
	for i := range u {
		lin[i] = p.Alpha*u[i] + v[i] + p.Beta[i%dim]
	}
	out, err := tensor.NewFloat64(inputs["u"].Shape().Clone(), lin)
	if err != nil {
		return nil, err
	}
	return map[string]*tensor.Tensor{"lin": out}, nil
}
