// Package circuitbreaker guards backends against repeated dispatch failures.
//
// Each backend endpoint gets its own breaker with three states:
//
//   - CLOSED: normal operation, dispatches pass through
//   - OPEN: backend failing, dispatches rejected without touching the wire
//   - HALF-OPEN: one probe dispatch allowed after the reset timeout
//
// Usage:
//
//	breakers := circuitbreaker.NewRegistry(5, 30*time.Second)
//	b := breakers.Breaker("localhost:8081")
//	if b.Allow() {
//	    // Dispatch...
//	    if err != nil {
//	        b.RecordFailure()
//	    } else {
//	        b.RecordSuccess()
//	    }
//	}
package circuitbreaker
