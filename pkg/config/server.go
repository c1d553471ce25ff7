package config

import (
	"fmt"
)

// ServerConfig configures the HTTP/JSON-RPC listener.
type ServerConfig struct {
	// Host to bind.
	Host string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"title=Host,description=Bind address,default=127.0.0.1"`

	// Port to listen on.
	Port int `yaml:"port,omitempty" json:"port,omitempty" jsonschema:"title=Port,description=Listen port,default=8080"`

	// MaxSessions caps concurrently running report sessions.
	MaxSessions int `yaml:"max_sessions,omitempty" json:"max_sessions,omitempty" jsonschema:"title=Max Sessions,description=Concurrent session cap,default=8"`
}

// SetDefaults applies server defaults.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.MaxSessions == 0 {
		c.MaxSessions = 8
	}
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be in [1, 65535]")
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be positive")
	}
	return nil
}

// Address returns host:port.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SessionConfig configures session state storage. Only session and
// task state is persisted, never report bodies.
type SessionConfig struct {
	// Store selects the backend (memory, sql).
	Store string `yaml:"store,omitempty" json:"store,omitempty" jsonschema:"title=Store,description=Session store backend,enum=memory,enum=sql,default=memory"`

	// Driver names the database/sql driver for the sql store
	// (sqlite3, mysql, postgres).
	Driver string `yaml:"driver,omitempty" json:"driver,omitempty" jsonschema:"title=Driver,description=SQL driver,enum=sqlite3,enum=mysql,enum=postgres"`

	// DSN is the data source name for the sql store.
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty" jsonschema:"title=DSN,description=SQL data source name"`
}

// SetDefaults applies session store defaults.
func (c *SessionConfig) SetDefaults() {
	if c.Store == "" {
		c.Store = "memory"
	}
	if c.Store == "sql" && c.Driver == "" {
		c.Driver = "sqlite3"
	}
	if c.Store == "sql" && c.Driver == "sqlite3" && c.DSN == "" {
		c.DSN = "dossier.db"
	}
}

// Validate checks the session store configuration.
func (c *SessionConfig) Validate() error {
	switch c.Store {
	case "memory":
		return nil
	case "sql":
	default:
		return fmt.Errorf("invalid store %q (valid: memory, sql)", c.Store)
	}
	switch c.Driver {
	case "sqlite3", "mysql", "postgres":
	default:
		return fmt.Errorf("invalid driver %q (valid: sqlite3, mysql, postgres)", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn is required for the sql store")
	}
	return nil
}

// ObservabilityConfig gates tracing and metrics. Disabled by default.
type ObservabilityConfig struct {
	// TracingEnabled turns on OpenTelemetry spans around provider and
	// LLM calls.
	TracingEnabled bool `yaml:"tracing_enabled,omitempty" json:"tracing_enabled,omitempty" jsonschema:"title=Tracing Enabled,description=Enable OpenTelemetry tracing,default=false"`

	// Exporter selects the trace exporter (otlp, stdout).
	Exporter string `yaml:"exporter,omitempty" json:"exporter,omitempty" jsonschema:"title=Exporter,description=Trace exporter,enum=otlp,enum=stdout,default=stdout"`

	// Endpoint for the OTLP exporter.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty" jsonschema:"title=Endpoint,description=OTLP collector endpoint,default=localhost:4317"`

	// MetricsEnabled exposes Prometheus metrics on /metrics.
	MetricsEnabled bool `yaml:"metrics_enabled,omitempty" json:"metrics_enabled,omitempty" jsonschema:"title=Metrics Enabled,description=Expose Prometheus metrics,default=false"`

	// ServiceName reported in traces.
	ServiceName string `yaml:"service_name,omitempty" json:"service_name,omitempty" jsonschema:"title=Service Name,description=Trace service name,default=dossier"`
}

// SetDefaults applies observability defaults.
func (c *ObservabilityConfig) SetDefaults() {
	if c.Exporter == "" {
		c.Exporter = "stdout"
	}
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4317"
	}
	if c.ServiceName == "" {
		c.ServiceName = "dossier"
	}
}

// Validate checks the observability configuration.
func (c *ObservabilityConfig) Validate() error {
	switch c.Exporter {
	case "otlp", "stdout":
	default:
		return fmt.Errorf("invalid exporter %q (valid: otlp, stdout)", c.Exporter)
	}
	return nil
}
