package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"k8s.io/klog/v2"

	"github.com/modelbind/modelbind/pkg/client"
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
	server := "127.0.0.1:8000"
	flag.StringVar(&server, "server", server, "address of the inference server")
	modelName := "Linear"
	flag.StringVar(&modelName, "model", modelName, "model to invoke")
	batchSize := 2
	flag.IntVar(&batchSize, "batch-size", batchSize, "number of samples to send")
	initTimeout := 60 * time.Second
	flag.DurationVar(&initTimeout, "init-timeout", initTimeout, "how long to wait for the model to become ready")

	klog.InitFlags(nil)
	flag.Parse()

	log := klog.FromContext(ctx)

	c, err := client.New(server, modelName, client.WithInitTimeout(initTimeout))
	if err != nil {
		return err
	}
	if err := c.WaitForModel(ctx); err != nil {
		return err
	}

	meta, err := c.Metadata(ctx)
	if err != nil {
		return err
	}
	if len(meta.Inputs) == 0 {
		return fmt.Errorf("model %q reports no inputs", modelName)
	}
	dim := meta.Inputs[0].Shape[len(meta.Inputs[0].Shape)-1]
	log.Info("model ready", "model", modelName, "dim", dim, "maxBatchSize", meta.MaxBatchSize)

	shape := tensor.Shape{int64(batchSize), dim}
	u, err := tensor.Full(shape, 1)
	if err != nil {
		return err
	}
	v, err := tensor.Full(shape, 1)
	if err != nil {
		return err
	}

	outputs, err := c.InferBatch(ctx, map[string]*tensor.Tensor{"u": u, "v": v})
	if err != nil {
		return err
	}

	lin, ok := outputs["lin"]
	if !ok {
		return fmt.Errorf("server response is missing output %q", "lin")
	}
	vals, err := lin.Float64s()
	if err != nil {
		return err
	}
	for row := 0; row < batchSize; row++ {
		fmt.Printf("lin[%d] = %v\n", row, vals[row*int(dim):(row+1)*int(dim)])
	}
	return nil
}
