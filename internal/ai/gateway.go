// Package ai wraps the external text-completion service. Every model call in
// the pipeline goes through a Gateway.
//
// The pieces are distributed across files:
//   - gateway.go: the Gateway contract, errors, and the process-wide default handle (this file)
//   - openai.go / anthropic.go: provider implementations
//   - retry.go: opt-in retry, circuit breaker and concurrency cap
//   - budget.go: cost budget enforcement
//   - instrument.go: Prometheus instrumentation
//   - json_parser.go: strict decoding of one JSON object from model output
package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Request is one completion call.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int

	// Operation names the pipeline stage ("generation", "judge", "correction").
	// Used for metrics, logging and per-stage budgets.
	Operation string
	TraceID   string
}

// Response carries the completion text and the usage reported by the provider.
// Token counts are zero when the provider reports none.
type Response struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Gateway is the single abstraction over the completion service.
// Implementations never retry on their own.
type Gateway interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, req Request) (*Response, error)

// Complete implements Gateway
func (f GatewayFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// ErrBudgetExceeded is returned when the cost budget refuses a call.
var ErrBudgetExceeded = errors.New("cost budget exceeded")

// ErrMissingCredential is returned on the first call when no API key is configured.
var ErrMissingCredential = errors.New("API credential not configured")

// GatewayError is a transport, auth, rate-limit or budget failure of one call.
type GatewayError struct {
	Provider  string
	Operation string
	Err       error
}

func (e *GatewayError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("%s %s call failed: %v", e.Provider, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s call failed: %v", e.Provider, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func wrapErr(provider string, req Request, err error) error {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return err
	}
	return &GatewayError{Provider: provider, Operation: req.Operation, Err: err}
}

var (
	defaultOnce    sync.Once
	defaultMu      sync.Mutex
	defaultGateway Gateway
	defaultErr     error
	defaultFactory = func() (Gateway, error) {
		return NewOpenAIGateway(OpenAIConfig{})
	}
)

// SetDefaultFactory replaces the constructor used by Default and discards any
// handle already built. Call it before the first Default call in production;
// tests use it to install a stub.
func SetDefaultFactory(factory func() (Gateway, error)) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultFactory = factory
	defaultOnce = sync.Once{}
	defaultGateway = nil
	defaultErr = nil
}

// Default returns the process-wide gateway, building it on first use.
func Default() (Gateway, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultOnce.Do(func() {
		defaultGateway, defaultErr = defaultFactory()
	})
	return defaultGateway, defaultErr
}
