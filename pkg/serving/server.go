// Package serving binds named models to an HTTP inference endpoint.
// A Server holds bindings (name, infer function, tensor specs, model
// config) and serves the v2-style protocol: health, model metadata,
// readiness, repository index, and infer.
package serving

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"k8s.io/klog/v2"

	"github.com/modelbind/modelbind/pkg/model"
)

// ModelState is the lifecycle state of a binding as reported by the
// repository index and readiness endpoints.
type ModelState string

const (
	ModelLoading     ModelState = "LOADING"
	ModelReady       ModelState = "READY"
	ModelUnavailable ModelState = "UNAVAILABLE"
)

type binding struct {
	name    string
	inferFn model.InferFunc
	inputs  []model.TensorSpec
	outputs []model.TensorSpec
	cfg     model.Config

	state  ModelState
	reason string
}

// Server binds models and serves them over HTTP.
type Server struct {
	cfg Config

	mu       sync.RWMutex
	bindings map[string]*binding
	running  bool
	stopped  bool

	listener   net.Listener
	httpServer *http.Server
	serveErr   chan error
}

// New creates a Server with no bindings.
func New(cfg Config) *Server {
	s := &Server{
		cfg:      cfg,
		bindings: make(map[string]*binding),
		serveErr: make(chan error, 1),
	}
	s.httpServer = &http.Server{Handler: s}
	return s
}

// Bind registers an inference function under a model name. The input
// and output specs define the shape/dtype contract enforced on every
// request. Bind may be called before or after Run; a binding becomes
// READY once the server is running.
func (s *Server) Bind(name string, inferFn model.InferFunc, inputs, outputs []model.TensorSpec, cfg model.Config) error {
	if name == "" {
		return fmt.Errorf("model name must not be empty")
	}
	if inferFn == nil {
		return fmt.Errorf("model %q: infer function must not be nil", name)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return fmt.Errorf("model %q: at least one input and one output spec required", name)
	}
	if cfg.MaxBatchSize < 0 {
		return fmt.Errorf("model %q: max batch size must not be negative", name)
	}
	for _, specs := range [][]model.TensorSpec{inputs, outputs} {
		seen := make(map[string]bool)
		for _, spec := range specs {
			if err := spec.Validate(); err != nil {
				return fmt.Errorf("model %q: %w", name, err)
			}
			if seen[spec.Name] {
				return fmt.Errorf("model %q: duplicate tensor name %q", name, spec.Name)
			}
			seen[spec.Name] = true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bindings[name]; ok && b.state != ModelUnavailable {
		return fmt.Errorf("model %q is already bound", name)
	}

	state := ModelLoading
	if s.running {
		state = ModelReady
	}
	s.bindings[name] = &binding{
		name:    name,
		inferFn: inferFn,
		inputs:  inputs,
		outputs: outputs,
		cfg:     cfg,
		state:   state,
	}
	return nil
}

// Unbind marks a model unavailable. Its name stays in the repository
// index so clients can discover it went away.
func (s *Server) Unbind(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[name]
	if !ok {
		return fmt.Errorf("model %q is not bound", name)
	}
	b.state = ModelUnavailable
	b.reason = "unbound"
	b.inferFn = nil
	return nil
}

// Run starts the HTTP listener and returns without blocking. All
// current bindings become READY.
func (s *Server) Run(ctx context.Context) error {
	log := klog.FromContext(ctx)

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("server already stopped")
	}

	listen := fmt.Sprintf("%s:%d", s.cfg.HTTPAddress, s.cfg.HTTPPort)
	lis, err := net.Listen("tcp", listen)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listening on %q: %w", listen, err)
	}
	s.listener = lis
	s.running = true
	for _, b := range s.bindings {
		if b.state == ModelLoading {
			b.state = ModelReady
		}
	}
	models := len(s.bindings)
	s.mu.Unlock()

	log.Info("serving models over HTTP", "address", lis.Addr().String(), "models", models)

	go func() {
		err := s.httpServer.Serve(lis)
		if err != nil && err != http.ErrServerClosed {
			s.serveErr <- err
		}
		close(s.serveErr)
	}()
	return nil
}

// Serve runs the server and blocks until the context is cancelled or
// the listener fails, then shuts down.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Run(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return s.Stop()
	case err, ok := <-s.serveErr:
		if ok && err != nil {
			return fmt.Errorf("serving HTTP: %w", err)
		}
		return nil
	}
}

// Stop shuts the server down gracefully. Safe to call more than once.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running || s.stopped {
		s.stopped = true
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	timeout := s.cfg.ShutdownTimeout
	s.mu.Unlock()

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}

// Addr returns the listen address after Run, or "" before.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ready reports server-level readiness: running and not stopped.
func (s *Server) ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running && !s.stopped
}

// getBinding returns a snapshot so handlers never race with Unbind.
func (s *Server) getBinding(name string) (binding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[name]
	if !ok {
		return binding{}, false
	}
	return *b, true
}

func (s *Server) listBindings() []binding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]binding, 0, len(s.bindings))
	for _, b := range s.bindings {
		out = append(out, *b)
	}
	return out
}
