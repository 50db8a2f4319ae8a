// Package transform applies per-route request mutation rules before a
// request is proxied: header rules, query-parameter rules, cookie rules and
// a conditional path rewrite, in that fixed order.
package transform

import (
	"net/http"
	"sort"
	"strings"
)

// HeaderRules adds headers first, overwriting existing values, then removes
// the named headers if present.
type HeaderRules struct {
	Add    map[string]string
	Remove []string
}

// ParamRules follows the same add-then-remove order as HeaderRules, applied
// to the URL query string.
type ParamRules struct {
	Add    map[string]string
	Remove []string
}

// CookieRules only adds cookies. An added cookie replaces an inbound cookie
// of the same name.
type CookieRules struct {
	Add map[string]string
}

// Replacement substitutes the first occurrence of From in the request path
// with To.
type Replacement struct {
	From string
	To   string
}

// RewriteRules fires only when the request path equals Trigger. The
// replacement list is scanned in declaration order and the first entry whose
// From occurs in the path is applied; at most one entry fires per request.
type RewriteRules struct {
	Trigger string
	Replace []Replacement
}

// Rules collects every mutation rule set of one route. The zero value
// changes nothing.
type Rules struct {
	Headers HeaderRules
	Params  ParamRules
	Cookies CookieRules
	Rewrite RewriteRules
}

type Pipeline struct {
	rules Rules
}

func NewPipeline(rules Rules) *Pipeline {
	return &Pipeline{rules: rules}
}

// Apply mutates the request in place. Order is fixed: headers, then query
// parameters, then cookies, then the path rewrite.
func (p *Pipeline) Apply(r *http.Request) {
	if p == nil {
		return
	}

	p.applyHeaderRules(r)
	p.applyParamRules(r)
	p.applyCookieRules(r)
	p.applyRewrite(r)
}

func (p *Pipeline) applyHeaderRules(r *http.Request) {
	rules := p.rules.Headers
	if len(rules.Add) == 0 && len(rules.Remove) == 0 {
		return
	}

	for name, value := range rules.Add {
		r.Header.Set(name, value)
	}
	for _, name := range rules.Remove {
		r.Header.Del(name)
	}
}

func (p *Pipeline) applyParamRules(r *http.Request) {
	rules := p.rules.Params
	if len(rules.Add) == 0 && len(rules.Remove) == 0 {
		return
	}

	query := r.URL.Query()
	for name, value := range rules.Add {
		query.Set(name, value)
	}
	for _, name := range rules.Remove {
		query.Del(name)
	}

	r.URL.RawQuery = query.Encode()
}

func (p *Pipeline) applyCookieRules(r *http.Request) {
	rules := p.rules.Cookies
	if len(rules.Add) == 0 {
		return
	}

	kept := make([]*http.Cookie, 0, len(r.Cookies()))
	for _, c := range r.Cookies() {
		if _, overridden := rules.Add[c.Name]; !overridden {
			kept = append(kept, c)
		}
	}

	// Sorted names keep the rebuilt Cookie header deterministic.
	names := make([]string, 0, len(rules.Add))
	for name := range rules.Add {
		names = append(names, name)
	}
	sort.Strings(names)

	r.Header.Del("Cookie")
	for _, c := range kept {
		r.AddCookie(c)
	}
	for _, name := range names {
		r.AddCookie(&http.Cookie{Name: name, Value: rules.Add[name]})
	}
}

func (p *Pipeline) applyRewrite(r *http.Request) {
	rules := p.rules.Rewrite
	if rules.Trigger == "" || r.URL.Path != rules.Trigger {
		return
	}

	for _, replacement := range rules.Replace {
		if !strings.Contains(r.URL.Path, replacement.From) {
			continue
		}

		r.URL.Path = strings.Replace(r.URL.Path, replacement.From, replacement.To, 1)
		r.URL.RawPath = ""
		return
	}
}
