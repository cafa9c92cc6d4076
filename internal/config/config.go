package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for fleetcheck.
type Config struct {
	Run         RunConfig         `mapstructure:"run"`
	Features    FeatureConfig     `mapstructure:"features"`
	Infra       InfraConfig       `mapstructure:"infra"`
	Registry    RegistryConfig    `mapstructure:"registry"`
	Remediation RemediationConfig `mapstructure:"remediation"`
	Server      ServerConfig      `mapstructure:"server"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// RunConfig controls a single validation run.
type RunConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	ReportFile     string `mapstructure:"report_file"`
	ReportShape    string `mapstructure:"report_shape"`
	Verbose        bool   `mapstructure:"verbose"`
	LogFile        string `mapstructure:"log_file"`
	Capability     string `mapstructure:"capability"`
}

// Timeout returns the per-request probe timeout.
func (r RunConfig) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// FeatureConfig holds the optional URLs that enable specific phases.
// An empty value degrades the dependent phase to Skip.
type FeatureConfig struct {
	SwarmRepoURL string `mapstructure:"swarm_repo_url"`
	RelayURL     string `mapstructure:"relay_url"`
}

type InfraConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// BrokerConfig points at the message broker. Only the first entry of a
// comma-separated broker list is probed.
type BrokerConfig struct {
	Brokers string `mapstructure:"brokers"`
}

// Addr returns the first broker address.
func (b BrokerConfig) Addr() string {
	first, _, _ := strings.Cut(b.Brokers, ",")
	return strings.TrimSpace(first)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RegistryConfig overrides the built-in unit table.
type RegistryConfig struct {
	URLs  map[string]string `mapstructure:"urls"`
	Ports map[string]int    `mapstructure:"ports"`
}

type RemediationConfig struct {
	Supervisor      string        `mapstructure:"supervisor"`
	ComposeCommand  []string      `mapstructure:"compose_command"`
	ComposeFile     string        `mapstructure:"compose_file"`
	ComposeProject  string        `mapstructure:"compose_project"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	Interval        time.Duration `mapstructure:"interval"`
	Warmup          time.Duration `mapstructure:"warmup"`
	CommandTimeout  time.Duration `mapstructure:"command_timeout"`
	CriticalUnits   []string      `mapstructure:"critical_units"`
	DefaultLogLines int           `mapstructure:"default_log_lines"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
}

// plainEnv maps config keys to the unprefixed variables operators already
// export for the fleet. The prefixed FLEETCHECK_ form is always tried first.
var plainEnv = map[string]string{
	"run.base_url":             "BASE_URL",
	"run.timeout_seconds":      "TIMEOUT",
	"run.report_file":          "OUTPUT_FILE",
	"run.report_shape":         "REPORT_SHAPE",
	"run.verbose":              "VERBOSE",
	"run.log_file":             "LOG_FILE",
	"features.swarm_repo_url":  "SWARM_REPO_URL",
	"features.relay_url":       "DIDCOMM_RELAY_URL",
	"infra.redis.url":          "REDIS_URL",
	"infra.broker.brokers":     "KAFKA_BROKERS",
	"infra.nats.url":           "NATS_URL",
	"infra.postgres.dsn":       "DATABASE_URL",
	"telemetry.otlp_endpoint":  "OTEL_EXPORTER_OTLP_ENDPOINT",
	"remediation.compose_file": "COMPOSE_FILE",
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the FLEETCHECK_ prefix (e.g. FLEETCHECK_RUN_BASE_URL)
// and the plain fleet variables listed in plainEnv.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("FLEETCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, plain := range plainEnv {
		prefixed := "FLEETCHECK_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, plain); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Run.ReportShape {
	case "phases", "tests":
	default:
		return fmt.Errorf("run.report_shape must be \"phases\" or \"tests\", got %q", c.Run.ReportShape)
	}
	if c.Run.TimeoutSeconds <= 0 {
		return fmt.Errorf("run.timeout_seconds must be positive, got %d", c.Run.TimeoutSeconds)
	}
	if c.Remediation.MaxAttempts <= 0 {
		return fmt.Errorf("remediation.max_attempts must be positive, got %d", c.Remediation.MaxAttempts)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("run.base_url", "http://localhost")
	v.SetDefault("run.timeout_seconds", 10)
	v.SetDefault("run.report_file", "validation-report.json")
	v.SetDefault("run.report_shape", "phases")
	v.SetDefault("run.verbose", false)
	v.SetDefault("run.log_file", "")
	v.SetDefault("run.capability", "didcomm_send_message")

	v.SetDefault("features.swarm_repo_url", "")
	v.SetDefault("features.relay_url", "")

	v.SetDefault("infra.redis.url", "redis://localhost:6379/0")
	v.SetDefault("infra.broker.brokers", "localhost:9092")
	v.SetDefault("infra.nats.url", "")
	v.SetDefault("infra.postgres.dsn", "")
	v.SetDefault("infra.postgres.max_conns", 2)

	v.SetDefault("remediation.supervisor", "compose")
	v.SetDefault("remediation.compose_command", []string{"docker", "compose"})
	v.SetDefault("remediation.compose_file", "docker-compose.yml")
	v.SetDefault("remediation.compose_project", "")
	v.SetDefault("remediation.max_attempts", 30)
	v.SetDefault("remediation.interval", 2*time.Second)
	v.SetDefault("remediation.warmup", 10*time.Second)
	v.SetDefault("remediation.command_timeout", 2*time.Minute)
	v.SetDefault("remediation.critical_units", []string{
		"redis",
		"kafka",
		"pagi-event-router",
		"pagi-identity-service",
		"pagi-external-gateway",
		"pagi-didcomm-plugin",
	})
	v.SetDefault("remediation.default_log_lines", 100)

	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "fleetcheck")
	v.SetDefault("telemetry.log_level", "info")
}
