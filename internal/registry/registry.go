// Package registry builds the routing table from configuration and resolves
// inbound requests to routes. Host keys and path keys form two separate
// namespaces; resolution checks the host namespace first, with exact string
// matching only. The table is immutable after Build: only per-backend state
// (health, connections, response times) changes afterwards.
package registry

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/angeloszaimis/trafficd/config"
	"github.com/angeloszaimis/trafficd/internal/backend"
	"github.com/angeloszaimis/trafficd/internal/firewall"
	"github.com/angeloszaimis/trafficd/internal/selection"
	"github.com/angeloszaimis/trafficd/internal/strategy"
	"github.com/angeloszaimis/trafficd/internal/transform"
)

// ErrRouteNotFound is returned when neither namespace matches. Callers map
// it to 404.
var ErrRouteNotFound = errors.New("no matching route")

const (
	NamespaceHost = "host"
	NamespacePath = "path"
)

// Route is one routing entry: its backends in declaration order plus the
// rule sets and the selection engine that belong to it.
type Route struct {
	Namespace string
	Key       string
	Backends  []*backend.Backend
	Firewall  *firewall.Rules
	Transform *transform.Pipeline
	Selector  *selection.Engine
}

// Name identifies the route in logs and metrics.
func (r *Route) Name() string {
	return r.Namespace + ":" + r.Key
}

type Registry struct {
	hosts  map[string]*Route
	paths  map[string]*Route
	routes []*Route
}

// Build instantiates one fresh Backend per declared endpoint per route.
// Routes referencing the same endpoint string never share Backend instances,
// so health flags and connection counts stay isolated per route.
func Build(cfg *config.Config) (*Registry, error) {
	reg := &Registry{
		hosts: make(map[string]*Route, len(cfg.Routes.Hosts)),
		paths: make(map[string]*Route, len(cfg.Routes.Paths)),
	}

	for _, entry := range cfg.Routes.Hosts {
		route, err := buildRoute(NamespaceHost, entry.Host, entry, cfg.Strategy)
		if err != nil {
			return nil, err
		}
		reg.hosts[entry.Host] = route
		reg.routes = append(reg.routes, route)
	}

	for _, entry := range cfg.Routes.Paths {
		route, err := buildRoute(NamespacePath, entry.Path, entry, cfg.Strategy)
		if err != nil {
			return nil, err
		}
		reg.paths[entry.Path] = route
		reg.routes = append(reg.routes, route)
	}

	return reg, nil
}

func buildRoute(namespace, key string, entry config.RouteConfig, strategyCfg config.StrategyConfig) (*Route, error) {
	backends := make([]*backend.Backend, 0, len(entry.Backends))
	for _, backendCfg := range entry.Backends {
		u, err := url.Parse(backendCfg.URL)
		if err != nil {
			return nil, fmt.Errorf("route %s:%s: parsing backend URL %q: %w", namespace, key, backendCfg.URL, err)
		}
		backends = append(backends, backend.New(u, backendCfg.Weight, backendCfg.HealthPath))
	}

	engine, err := selection.NewEngine(strategy.Algorithm(strategyCfg.Type), strategyCfg.VirtualNodes)
	if err != nil {
		return nil, fmt.Errorf("route %s:%s: %w", namespace, key, err)
	}

	return &Route{
		Namespace: namespace,
		Key:       key,
		Backends:  backends,
		Firewall:  firewall.NewRules(entry.FirewallRules.IPReject, entry.FirewallRules.PathReject),
		Transform: transform.NewPipeline(transformRules(entry)),
		Selector:  engine,
	}, nil
}

func transformRules(entry config.RouteConfig) transform.Rules {
	replacements := make([]transform.Replacement, 0, len(entry.RewriteRules.Replace))
	for _, replacement := range entry.RewriteRules.Replace {
		replacements = append(replacements, transform.Replacement{
			From: replacement.From,
			To:   replacement.To,
		})
	}

	return transform.Rules{
		Headers: transform.HeaderRules{
			Add:    entry.HeaderRules.Add,
			Remove: entry.HeaderRules.Remove,
		},
		Params: transform.ParamRules{
			Add:    entry.ParamRules.Add,
			Remove: entry.ParamRules.Remove,
		},
		Cookies: transform.CookieRules{
			Add: entry.CookieRules.Add,
		},
		Rewrite: transform.RewriteRules{
			Trigger: entry.RewriteRules.Trigger,
			Replace: replacements,
		},
	}
}

// Resolve matches the Host header against the host namespace first, then the
// request path against the path namespace. Both comparisons are exact; the
// header and path values are used verbatim.
func (r *Registry) Resolve(host, path string) (*Route, error) {
	if route, ok := r.hosts[host]; ok {
		return route, nil
	}

	if route, ok := r.paths[path]; ok {
		return route, nil
	}

	return nil, ErrRouteNotFound
}

// Routes returns every route in declaration order, hosts before paths.
func (r *Registry) Routes() []*Route {
	return r.routes
}
