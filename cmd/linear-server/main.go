package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/modelbind/modelbind/pkg/model"
	"github.com/modelbind/modelbind/pkg/serving"
	"github.com/modelbind/modelbind/pkg/tensor"
)

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("MODELBIND_CONFIG")
	flag.StringVar(&configPath, "config", configPath, "path to serving config file")
	modelName := "Linear"
	flag.StringVar(&modelName, "model", modelName, "name to bind the model under")
	maxBatchSize := 128
	flag.IntVar(&maxBatchSize, "max-batch-size", maxBatchSize, "largest batch the model accepts")
	artifactStore := os.Getenv("ARTIFACT_STORE")
	flag.StringVar(&artifactStore, "artifact-store", artifactStore, "base url of an artifact store to load parameters from")
	paramsHash := os.Getenv("PARAMS_HASH")
	flag.StringVar(&paramsHash, "params", paramsHash, "hash of a parameter artifact; empty uses built-in parameters")

	klog.InitFlags(nil)
	flag.Parse()

	log := klog.FromContext(ctx)

	cfg, err := serving.LoadConfig(configPath)
	if err != nil {
		return err
	}

	params := defaultParams()
	if paramsHash != "" {
		if artifactStore == "" {
			return fmt.Errorf("--params requires --artifact-store")
		}
		params, err = loadParams(ctx, artifactStore, paramsHash)
		if err != nil {
			return err
		}
		log.Info("loaded parameters", "hash", paramsHash, "alpha", params.Alpha, "dim", len(params.Beta))
	}

	dim := int64(len(params.Beta))
	inputs := []model.TensorSpec{
		{Name: "u", DataType: tensor.Float64, Dims: []int64{dim}},
		{Name: "v", DataType: tensor.Float64, Dims: []int64{dim}},
	}
	outputs := []model.TensorSpec{
		{Name: "lin", DataType: tensor.Float64, Dims: []int64{dim}},
	}

	s := serving.New(cfg)
	if err := s.Bind(modelName, model.Batch(params.infer), inputs, outputs, model.Config{MaxBatchSize: maxBatchSize}); err != nil {
		return fmt.Errorf("binding model %q: %w", modelName, err)
	}
	log.Info("bound model", "model", modelName, "maxBatchSize", maxBatchSize)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.Serve(ctx)
}
