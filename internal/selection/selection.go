// Package selection picks a backend for each request. Every route owns one
// Engine so that strategy state (round-robin cursors, hash rings, weight
// accumulators) never leaks between routes.
package selection

import (
	"errors"
	"sync"

	"github.com/angeloszaimis/trafficd/internal/backend"
	"github.com/angeloszaimis/trafficd/internal/strategy"
)

// ErrNoHealthyBackend is returned when every backend of a route is
// unhealthy. Callers map it to 503 without dispatching.
var ErrNoHealthyBackend = errors.New("no healthy backends")

type Engine struct {
	algorithm strategy.Algorithm
	strategy  strategy.Strategy
	mutex     sync.Mutex
}

func NewEngine(algorithm strategy.Algorithm, virtualNodes int) (*Engine, error) {
	strat, err := strategy.New(algorithm, virtualNodes)
	if err != nil {
		return nil, err
	}

	return &Engine{
		algorithm: algorithm,
		strategy:  strat,
	}, nil
}

// Select asks the strategy for a backend. The full declaration-order list is
// passed through so positional strategies keep a stable view; strategies skip
// unhealthy entries themselves. For key-based strategies the client key is
// pinned under the engine mutex so concurrent requests cannot interleave
// SetKey and SelectBackend.
func (e *Engine) Select(backends []*backend.Backend, clientKey string) (*backend.Backend, error) {
	if keyed, ok := e.strategy.(strategy.Keyed); ok {
		e.mutex.Lock()
		defer e.mutex.Unlock()

		keyed.SetKey(clientKey)
	}

	chosen := e.strategy.SelectBackend(backends)
	if chosen == nil {
		return nil, ErrNoHealthyBackend
	}

	return chosen, nil
}

func (e *Engine) Algorithm() strategy.Algorithm {
	return e.algorithm
}
