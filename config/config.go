package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/trafficd/internal/strategy"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type HealthCheckConfig struct {
	Interval string `mapstructure:"interval"`
	Timeout  string `mapstructure:"timeout"`
}

type StrategyConfig struct {
	Type         string `mapstructure:"type"`
	VirtualNodes int    `mapstructure:"virtual_nodes"`
}

type BackendConfig struct {
	URL        string  `mapstructure:"url"`
	Weight     float64 `mapstructure:"weight"`
	HealthPath string  `mapstructure:"health_path"`
}

type HeaderRulesConfig struct {
	Add    map[string]string `mapstructure:"add"`
	Remove []string          `mapstructure:"remove"`
}

type ParamRulesConfig struct {
	Add    map[string]string `mapstructure:"add"`
	Remove []string          `mapstructure:"remove"`
}

type CookieRulesConfig struct {
	Add map[string]string `mapstructure:"add"`
}

type ReplacementConfig struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

type RewriteRulesConfig struct {
	Trigger string              `mapstructure:"trigger"`
	Replace []ReplacementConfig `mapstructure:"replace"`
}

type FirewallRulesConfig struct {
	IPReject   []string `mapstructure:"ip_reject"`
	PathReject []string `mapstructure:"path_reject"`
}

// RouteConfig declares one routing entry. Entries under routes.hosts set
// Host; entries under routes.paths set Path. The other key must stay empty.
type RouteConfig struct {
	Host          string              `mapstructure:"host"`
	Path          string              `mapstructure:"path"`
	Backends      []BackendConfig     `mapstructure:"backends"`
	HeaderRules   HeaderRulesConfig   `mapstructure:"header_rules"`
	ParamRules    ParamRulesConfig    `mapstructure:"param_rules"`
	CookieRules   CookieRulesConfig   `mapstructure:"cookie_rules"`
	RewriteRules  RewriteRulesConfig  `mapstructure:"rewrite_rules"`
	FirewallRules FirewallRulesConfig `mapstructure:"firewall_rules"`
}

type RoutesConfig struct {
	Hosts []RouteConfig `mapstructure:"hosts"`
	Paths []RouteConfig `mapstructure:"paths"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check"`
	Strategy    StrategyConfig    `mapstructure:"strategy"`
	Routes      RoutesConfig      `mapstructure:"routes"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("health_check.interval", "2s")
	v.SetDefault("health_check.timeout", "1s")
	v.SetDefault("strategy.type", string(strategy.AlgorithmRoundRobin))
	v.SetDefault("strategy.virtual_nodes", 100)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Error("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&hc.Timeout,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Strategy,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(StrategyConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a StrategyConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Type,
						validation.Required,
						validation.In(strategy.Algorithms()...),
					),
					validation.Field(&sc.VirtualNodes,
						validation.Required,
						validation.Min(1),
					),
				)
			}),
		),
		validation.Field(&c.Routes,
			validation.By(validateRoutes),
		),
	)
}

func validateRoutes(value interface{}) error {
	routes, ok := value.(RoutesConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a RoutesConfig")
	}

	if len(routes.Hosts)+len(routes.Paths) == 0 {
		return validation.NewError("validation_no_routes", "at least one host or path route is required")
	}

	seenHosts := make(map[string]struct{}, len(routes.Hosts))
	for _, route := range routes.Hosts {
		if route.Host == "" {
			return validation.NewError("validation_missing_host", "host route entries must set host")
		}
		if route.Path != "" {
			return validation.NewError("validation_unexpected_path", "host route entries must not set path")
		}
		if _, dup := seenHosts[route.Host]; dup {
			return validation.NewError("validation_duplicate_host", "duplicate host key: "+route.Host)
		}
		seenHosts[route.Host] = struct{}{}

		if err := validateRouteEntry(route); err != nil {
			return err
		}
	}

	seenPaths := make(map[string]struct{}, len(routes.Paths))
	for _, route := range routes.Paths {
		if route.Path == "" {
			return validation.NewError("validation_missing_path", "path route entries must set path")
		}
		if route.Host != "" {
			return validation.NewError("validation_unexpected_host", "path route entries must not set host")
		}
		if !strings.HasPrefix(route.Path, "/") {
			return validation.NewError("validation_invalid_path", "path keys must start with /: "+route.Path)
		}
		if _, dup := seenPaths[route.Path]; dup {
			return validation.NewError("validation_duplicate_path", "duplicate path key: "+route.Path)
		}
		seenPaths[route.Path] = struct{}{}

		if err := validateRouteEntry(route); err != nil {
			return err
		}
	}

	return nil
}

func validateRouteEntry(route RouteConfig) error {
	if len(route.Backends) == 0 {
		return validation.NewError("validation_no_backends", "every route needs at least one backend")
	}

	for _, backend := range route.Backends {
		if err := validateBackendConfig(backend); err != nil {
			return err
		}
	}

	for _, ip := range route.FirewallRules.IPReject {
		if err := is.IP.Validate(ip); err != nil {
			return validation.NewError("validation_invalid_reject_ip", "firewall ip_reject entries must be IP addresses: "+ip)
		}
	}

	for _, path := range route.FirewallRules.PathReject {
		if !strings.HasPrefix(path, "/") {
			return validation.NewError("validation_invalid_reject_path", "firewall path_reject entries must start with /: "+path)
		}
	}

	if err := validateRewriteRules(route.RewriteRules); err != nil {
		return err
	}

	return nil
}

func validateRewriteRules(rules RewriteRulesConfig) error {
	if rules.Trigger == "" {
		if len(rules.Replace) > 0 {
			return validation.NewError("validation_rewrite_no_trigger", "rewrite_rules.replace requires a trigger")
		}
		return nil
	}

	if !strings.HasPrefix(rules.Trigger, "/") {
		return validation.NewError("validation_invalid_trigger", "rewrite trigger must start with /: "+rules.Trigger)
	}

	if len(rules.Replace) == 0 {
		return validation.NewError("validation_rewrite_no_replace", "rewrite trigger declared without replacements")
	}

	for _, replacement := range rules.Replace {
		if replacement.From == "" {
			return validation.NewError("validation_rewrite_empty_from", "rewrite replacements need a non-empty from")
		}
	}

	return nil
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return nil
}

func validateBackendConfig(backend BackendConfig) error {
	if backend.URL == "" {
		return validation.NewError("validation_empty_url", "backend URL cannot be empty")
	}

	parsedURL, err := url.Parse(backend.URL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	if backend.Weight < 0 {
		return validation.NewError("validation_invalid_weight", "weight cannot be negative")
	}

	if backend.HealthPath != "" && !strings.HasPrefix(backend.HealthPath, "/") {
		return validation.NewError("validation_invalid_health_path", "health_path must start with /")
	}

	return nil
}
