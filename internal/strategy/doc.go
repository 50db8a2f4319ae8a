// Package strategy defines the backend selection interface and implements
// the algorithm variants:
//
//   - Random: uniform choice over healthy backends
//   - Round Robin: declaration-order cycling with a stable full-list cursor
//   - Least Connections: fewest in-flight requests, declaration-order ties
//   - Weighted Random: draw proportional to declared weights
//   - IP Hash: client IP hashed modulo the healthy subset
//   - Consistent Hash: ring-based stickiness that survives membership churn
//   - Least Response Time: lowest EWMA response time weighted by load
//   - Weighted Round Robin: smooth proportional cycling
//
// Strategies receive the route's full candidate list in declaration order
// and restrict themselves to healthy backends; an all-unhealthy list
// selects nothing. Instances hold per-route state and are never shared
// between routes.
package strategy
