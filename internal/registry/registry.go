// Package registry maps logical unit names to reachable network locations.
// The table is built once at startup and is read-only afterwards.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"pagi-framework/fleetcheck/internal/config"
)

// ErrUnknownUnit is returned by Lookup for a name that is not in the registry.
var ErrUnknownUnit = errors.New("unknown unit")

// Kind groups units for remediation ordering.
type Kind string

const (
	KindInfrastructure Kind = "infrastructure"
	KindCore           Kind = "core"
	KindPlugin         Kind = "plugin"
)

// HealthPath is the liveness endpoint every HTTP unit exposes.
const HealthPath = "/healthz"

// Endpoint is one addressable unit of the fleet.
type Endpoint struct {
	Name     string
	Kind     Kind
	BaseURL  string
	Port     int
	Critical bool
}

// URL joins path onto the unit's base URL and port.
func (e Endpoint) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return e.Origin() + path
}

// HealthURL is the unit's liveness endpoint.
func (e Endpoint) HealthURL() string {
	return e.URL(HealthPath)
}

// Addr returns host:port, used for raw TCP reachability checks.
func (e Endpoint) Addr() string {
	host := e.BaseURL
	if u, err := url.Parse(e.BaseURL); err == nil && u.Host != "" {
		host = u.Hostname()
		if p := u.Port(); p != "" {
			return net.JoinHostPort(host, p)
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(e.Port))
}

// HTTP reports whether the unit speaks HTTP. Infrastructure units are only
// reachable over their native protocols.
func (e Endpoint) HTTP() bool {
	return e.Kind != KindInfrastructure
}

// Origin is the unit's scheme://host:port without a trailing slash. A port
// carried by a per-unit URL override wins over the unit's own port.
func (e Endpoint) Origin() string {
	base := strings.TrimRight(e.BaseURL, "/")
	if u, err := url.Parse(base); err == nil && u.Port() != "" {
		return base
	}
	if e.Port == 0 {
		return base
	}
	return fmt.Sprintf("%s:%d", base, e.Port)
}

type unitDef struct {
	name     string
	kind     Kind
	port     int
	critical bool
}

// fleet is the built-in unit table in remediation order.
var fleet = []unitDef{
	{"redis", KindInfrastructure, 6379, true},
	{"kafka", KindInfrastructure, 9092, true},

	{"pagi-event-router", KindCore, 8000, true},
	{"pagi-identity-service", KindCore, 8002, true},
	{"pagi-context-engine", KindCore, 8004, false},
	{"pagi-external-gateway", KindCore, 8010, true},
	{"pagi-working-memory", KindCore, 7003, false},
	{"pagi-context-builder", KindCore, 7004, false},
	{"pagi-inference-gateway", KindCore, 7005, false},
	{"pagi-executive-engine", KindCore, 7006, false},
	{"pagi-emotion-state-manager", KindCore, 7007, false},
	{"pagi-sensor-actuator", KindCore, 7008, false},

	{"pagi-monitoring-plugin", KindPlugin, 9001, false},
	{"pagi-swarm-sync-plugin", KindPlugin, 9010, false},
	{"pagi-did-plugin", KindPlugin, 9020, false},
	{"pagi-didcomm-plugin", KindPlugin, 9030, true},
	{"pagi-vc-plugin", KindPlugin, 9040, false},
	{"pagi-updater-plugin", KindPlugin, 9060, false},
	{"pagi-activitypub-plugin", KindPlugin, 9070, false},
	{"pagi-ocm-orchestration-plugin", KindPlugin, 8095, false},
	{"pagi-ipfs-plugin", KindPlugin, 8096, false},
	{"pagi-filecoin-plugin", KindPlugin, 8097, false},
}

// Registry is an immutable name -> Endpoint table.
type Registry struct {
	order  []string
	byName map[string]Endpoint
}

// New builds the registry from the built-in fleet table, the run base URL,
// and per-unit overrides. A port in baseURL is dropped so that every unit
// keeps its own port. A non-empty critical list replaces the built-in
// critical flags.
func New(baseURL string, overrides config.RegistryConfig, critical []string) *Registry {
	r := &Registry{byName: make(map[string]Endpoint, len(fleet))}
	baseURL = withoutPort(baseURL)

	crit := make(map[string]bool, len(critical))
	for _, name := range critical {
		crit[name] = true
	}

	for _, u := range fleet {
		ep := Endpoint{
			Name:     u.name,
			Kind:     u.kind,
			BaseURL:  baseURL,
			Port:     u.port,
			Critical: u.critical,
		}
		if len(crit) > 0 {
			ep.Critical = crit[u.name]
		}
		if p, ok := overrides.Ports[u.name]; ok && p > 0 {
			ep.Port = p
		}
		if base, ok := overrides.URLs[u.name]; ok && base != "" {
			ep.BaseURL = base
		}
		r.order = append(r.order, u.name)
		r.byName[u.name] = ep
	}

	return r
}

// FromConfig is New fed from a loaded Config. redis and kafka are located
// through the infra client settings (REDIS_URL, KAFKA_BROKERS) unless a
// registry URL override names them.
func FromConfig(cfg *config.Config) (*Registry, error) {
	r := New(cfg.Run.BaseURL, cfg.Registry, cfg.Remediation.CriticalUnits)

	if cfg.Infra.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Infra.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing infra.redis.url: %w", err)
		}
		if opts.Network != "unix" {
			if err := r.pin("redis", opts.Addr, cfg.Registry); err != nil {
				return nil, err
			}
		}
	}
	if addr := cfg.Infra.Broker.Addr(); addr != "" {
		if err := r.pin("kafka", addr, cfg.Registry); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// pin moves an infrastructure unit to addr. A URL override keeps precedence
// and a port override replaces the port taken from addr.
func (r *Registry) pin(name, addr string, overrides config.RegistryConfig) error {
	if overrides.URLs[name] != "" {
		return nil
	}
	ep, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownUnit, name)
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%s address %q: %w", name, addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("%s address %q: invalid port: %w", name, addr, err)
	}

	ep.BaseURL = host
	ep.Port = port
	if p := overrides.Ports[name]; p > 0 {
		ep.Port = p
	}
	r.byName[name] = ep
	return nil
}

func withoutPort(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Port() == "" {
		return base
	}
	host := u.Hostname()
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	slog.Warn("ignoring port in run base URL, units keep their own ports", "base_url", base)
	u.Host = host
	return u.String()
}

// Lookup returns the endpoint registered under name.
func (r *Registry) Lookup(name string) (Endpoint, error) {
	ep, ok := r.byName[name]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrUnknownUnit, name)
	}
	return ep, nil
}

// MustLookup is Lookup for names from the built-in table.
func (r *Registry) MustLookup(name string) Endpoint {
	ep, err := r.Lookup(name)
	if err != nil {
		panic(err)
	}
	return ep
}

// All returns every endpoint in registration order.
func (r *Registry) All() []Endpoint {
	out := make([]Endpoint, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// ByKind returns the endpoints of one kind in registration order.
func (r *Registry) ByKind(kind Kind) []Endpoint {
	var out []Endpoint
	for _, name := range r.order {
		if ep := r.byName[name]; ep.Kind == kind {
			out = append(out, ep)
		}
	}
	return out
}

// Critical returns the critical endpoints in registration order.
func (r *Registry) Critical() []Endpoint {
	var out []Endpoint
	for _, name := range r.order {
		if ep := r.byName[name]; ep.Critical {
			out = append(out, ep)
		}
	}
	return out
}
