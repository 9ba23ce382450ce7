package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// RetryConfig controls the optional retry decorator. The pipeline stages never
// retry on their own; wrapping the gateway in a RetryingGateway is an
// orchestration decision, and the zero-retry default keeps it a pass-through.
type RetryConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`

	CircuitBreakerEnabled bool          `yaml:"circuit_breaker"`
	FailureThreshold      int           `yaml:"failure_threshold"`
	SuccessThreshold      int           `yaml:"success_threshold"`
	OpenTimeout           time.Duration `yaml:"open_timeout"`

	// MaxConcurrentCalls caps in-flight calls, 0 = unlimited
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`
}

// DefaultRetryConfig returns a pass-through configuration: no retries, no breaker.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:         0,
		InitialBackoff:     1 * time.Second,
		MaxBackoff:         30 * time.Second,
		BackoffMultiplier:  2.0,
		FailureThreshold:   5,
		SuccessThreshold:   2,
		OpenTimeout:        30 * time.Second,
		MaxConcurrentCalls: 0,
	}
}

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // requests pass through
	CircuitOpen                         // fail fast
	CircuitHalfOpen                     // probing
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling a failing provider until it has had time to recover.
type CircuitBreaker struct {
	mu     sync.Mutex
	logger *zap.Logger

	state            CircuitState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		logger:           logger,
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
	}
}

// Allow returns ErrCircuitOpen while the breaker is open and not yet timed out.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return nil
	case CircuitOpen:
		if time.Since(cb.lastFailureTime) > cb.openTimeout {
			cb.transition(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	default:
		return ErrCircuitOpen
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.transition(CircuitClosed)
		}
	}
}

// RecordFailure records a failed request
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transition(CircuitOpen)
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// must be called with lock held
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.successCount = 0
	if to == CircuitClosed {
		cb.failureCount = 0
	}
	cb.logger.Info("circuit breaker state transition",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("failures", cb.failureCount))
}

// RetryingGateway adds backoff retries, a circuit breaker and a concurrency
// cap around another gateway.
type RetryingGateway struct {
	next    Gateway
	cfg     RetryConfig
	breaker *CircuitBreaker
	sem     *semaphore.Weighted
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRetryingGateway wraps next. A nil logger disables logging.
func NewRetryingGateway(next Gateway, cfg RetryConfig, logger *zap.Logger) *RetryingGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &RetryingGateway{next: next, cfg: cfg, logger: logger, sleep: sleepCtx}
	if cfg.CircuitBreakerEnabled {
		g.breaker = NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.OpenTimeout, logger)
	}
	if cfg.MaxConcurrentCalls > 0 {
		g.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls))
	}
	return g
}

// Breaker exposes the circuit breaker, nil when disabled.
func (g *RetryingGateway) Breaker() *CircuitBreaker {
	return g.breaker
}

// Complete implements Gateway
func (g *RetryingGateway) Complete(ctx context.Context, req Request) (*Response, error) {
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return nil, wrapErr("retry", req, fmt.Errorf("acquire concurrency slot: %w", err))
		}
		defer g.sem.Release(1)
	}

	var lastErr error
	backoff := g.cfg.InitialBackoff

	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if g.breaker != nil {
			if err := g.breaker.Allow(); err != nil {
				return nil, wrapErr("retry", req, err)
			}
		}

		resp, err := g.next.Complete(ctx, req)
		if err == nil {
			if g.breaker != nil {
				g.breaker.RecordSuccess()
			}
			if attempt > 0 {
				g.logger.Info("gateway call succeeded after retries",
					zap.String("operation", req.Operation),
					zap.Int("retries", attempt))
			}
			return resp, nil
		}

		lastErr = err
		retriable := isRetriableError(err)
		if g.breaker != nil && retriable {
			g.breaker.RecordFailure()
		}
		if !retriable || attempt == g.cfg.MaxRetries {
			break
		}

		g.logger.Warn("gateway call failed, retrying",
			zap.String("operation", req.Operation),
			zap.String("trace_id", req.TraceID),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		if err := g.sleep(ctx, backoff); err != nil {
			return nil, wrapErr("retry", req, fmt.Errorf("canceled during backoff: %w", err))
		}
		backoff = time.Duration(float64(backoff) * g.cfg.BackoffMultiplier)
		if backoff > g.cfg.MaxBackoff {
			backoff = g.cfg.MaxBackoff
		}
	}

	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isRetriableError reports whether err looks transient.
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBudgetExceeded) || errors.Is(err, ErrMissingCredential) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}

	// The Anthropic SDK and raw transports only give us the message.
	errStr := strings.ToLower(err.Error())
	for _, s := range []string{"429", "rate limit", "500", "502", "503", "504", "529",
		"overloaded", "internal server error", "bad gateway", "service unavailable",
		"gateway timeout", "connection refused", "connection reset", "timeout",
		"temporary failure"} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}
