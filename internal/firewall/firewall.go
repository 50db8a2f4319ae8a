// Package firewall rejects requests by client IP or request path before any
// backend work happens. Matching is exact; rules come from the route
// configuration and never change at runtime.
package firewall

// Rules holds the reject sets of a single route. A nil or empty Rules
// allows every request.
type Rules struct {
	rejectedIPs   map[string]struct{}
	rejectedPaths map[string]struct{}
}

func NewRules(rejectIPs, rejectPaths []string) *Rules {
	rules := &Rules{
		rejectedIPs:   make(map[string]struct{}, len(rejectIPs)),
		rejectedPaths: make(map[string]struct{}, len(rejectPaths)),
	}

	for _, ip := range rejectIPs {
		rules.rejectedIPs[ip] = struct{}{}
	}
	for _, path := range rejectPaths {
		rules.rejectedPaths[path] = struct{}{}
	}

	return rules
}

func (r *Rules) BlocksIP(clientIP string) bool {
	if r == nil {
		return false
	}

	_, blocked := r.rejectedIPs[clientIP]
	return blocked
}

func (r *Rules) BlocksPath(path string) bool {
	if r == nil {
		return false
	}

	_, blocked := r.rejectedPaths[path]
	return blocked
}

// Allow reports whether the request may proceed. Either a matching client IP
// or a matching path is enough to reject.
func (r *Rules) Allow(clientIP, path string) bool {
	return !r.BlocksIP(clientIP) && !r.BlocksPath(path)
}
