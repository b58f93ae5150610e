package client

import (
	"net/http"
	"time"
)

type options struct {
	initTimeout  time.Duration
	pollInterval time.Duration
	lazyInit     bool
	httpClient   *http.Client
	maxWorkers   int
}

// Option configures a ModelClient or FuturesClient.
type Option func(*options)

// WithInitTimeout bounds the readiness wait performed when lazy init
// is disabled, and the default WaitForModel deadline. Default: 60s.
func WithInitTimeout(d time.Duration) Option {
	return func(o *options) {
		o.initTimeout = d
	}
}

// WithLazyInit controls whether New defers the readiness check and
// metadata fetch to the first call. Default: true.
func WithLazyInit(lazy bool) Option {
	return func(o *options) {
		o.lazyInit = lazy
	}
}

// WithHTTPClient substitutes the HTTP client used for all calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithPollInterval sets the readiness polling interval. Default: 100ms.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

// WithMaxWorkers sets the worker count of a FuturesClient. Default: 4.
func WithMaxWorkers(n int) Option {
	return func(o *options) {
		o.maxWorkers = n
	}
}

func defaultOptions() options {
	return options{
		initTimeout:  60 * time.Second,
		pollInterval: 100 * time.Millisecond,
		lazyInit:     true,
		httpClient:   &http.Client{},
		maxWorkers:   4,
	}
}
