// Package aitest provides gateways for tests that must not touch the network.
package aitest

import (
	"context"
	"errors"
	"sync"

	"github.com/steveyegge/diyqa/internal/ai"
	"github.com/stretchr/testify/mock"
)

// ScriptedGateway answers every call through a function of the request.
// It is safe for concurrent use and records every request it sees.
type ScriptedGateway struct {
	mu      sync.Mutex
	respond func(req ai.Request) (string, error)
	calls   []ai.Request
}

// New returns a gateway that answers with respond.
func New(respond func(req ai.Request) (string, error)) *ScriptedGateway {
	return &ScriptedGateway{respond: respond}
}

// Fixed returns a gateway that always answers text.
func Fixed(text string) *ScriptedGateway {
	return New(func(ai.Request) (string, error) { return text, nil })
}

// Failing returns a gateway whose every call fails with err.
func Failing(err error) *ScriptedGateway {
	return New(func(ai.Request) (string, error) { return "", err })
}

// Sequence answers with texts in order, then fails once they run out.
func Sequence(texts ...string) *ScriptedGateway {
	var i int
	return New(func(ai.Request) (string, error) {
		if i >= len(texts) {
			return "", errors.New("script exhausted")
		}
		i++
		return texts[i-1], nil
	})
}

// Complete implements ai.Gateway
func (g *ScriptedGateway) Complete(ctx context.Context, req ai.Request) (*ai.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ai.GatewayError{Provider: "scripted", Operation: req.Operation, Err: err}
	}

	g.mu.Lock()
	g.calls = append(g.calls, req)
	text, err := g.respond(req)
	g.mu.Unlock()

	if err != nil {
		return nil, &ai.GatewayError{Provider: "scripted", Operation: req.Operation, Err: err}
	}
	return &ai.Response{Text: text, Model: "scripted"}, nil
}

// Calls returns a copy of every request received so far.
func (g *ScriptedGateway) Calls() []ai.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ai.Request(nil), g.calls...)
}

// CallsFor counts requests for one operation.
func (g *ScriptedGateway) CallsFor(operation string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Operation == operation {
			n++
		}
	}
	return n
}

// MockGateway is a testify mock for tests that assert on exact interactions.
type MockGateway struct {
	mock.Mock
}

// Complete implements ai.Gateway
func (m *MockGateway) Complete(ctx context.Context, req ai.Request) (*ai.Response, error) {
	args := m.Called(ctx, req)
	var resp *ai.Response
	if r := args.Get(0); r != nil {
		resp = r.(*ai.Response)
	}
	return resp, args.Error(1)
}
