// Package config loads torrentbed configuration from torrentbed.yaml, the
// environment (TORRENTBED_*), an optional .env file and built-in defaults,
// in that order of precedence after explicit flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schmitthub/torrentbed/internal/engine"
	"github.com/schmitthub/torrentbed/internal/health"
	"github.com/schmitthub/torrentbed/internal/lifecycle"
	"github.com/schmitthub/torrentbed/internal/logger"
)

// Config is the effective configuration.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	Container ContainerConfig `mapstructure:"container" yaml:"container"`
	Health    HealthConfig    `mapstructure:"health" yaml:"health"`
	RPC       RPCConfig       `mapstructure:"rpc" yaml:"rpc"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle" yaml:"lifecycle"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// EngineConfig says how to reach the container engine. Empty values defer
// to DOCKER_HOST and the other standard Docker environment variables.
type EngineConfig struct {
	SocketPath     string        `mapstructure:"socket_path" yaml:"socket_path,omitempty"`
	Host           string        `mapstructure:"host" yaml:"host,omitempty"`
	Port           int           `mapstructure:"port" yaml:"port,omitempty"`
	Version        string        `mapstructure:"version" yaml:"version,omitempty"`
	Username       string        `mapstructure:"username" yaml:"username,omitempty"`
	Password       string        `mapstructure:"password" yaml:"password,omitempty"`
	TLS            TLSConfig     `mapstructure:"tls" yaml:"tls,omitempty"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout,omitempty"`
	Proxy          string        `mapstructure:"proxy" yaml:"proxy,omitempty"`
	LabelPrefix    string        `mapstructure:"label_prefix" yaml:"label_prefix"`
}

// TLSConfig holds client certificate paths for a TCP engine.
type TLSConfig struct {
	CA                   string `mapstructure:"ca" yaml:"ca,omitempty"`
	Cert                 string `mapstructure:"cert" yaml:"cert,omitempty"`
	Key                  string `mapstructure:"key" yaml:"key,omitempty"`
	VerifyServerIdentity bool   `mapstructure:"verify_server_identity" yaml:"verify_server_identity"`
}

// ContainerConfig describes the container under test.
type ContainerConfig struct {
	Name          string   `mapstructure:"name" yaml:"name"`
	Image         string   `mapstructure:"image" yaml:"image"`
	Env           []string `mapstructure:"env" yaml:"env"`
	Ports         []string `mapstructure:"ports" yaml:"ports"`
	Volumes       []string `mapstructure:"volumes" yaml:"volumes"`
	Binds         []string `mapstructure:"binds" yaml:"binds"`
	RestartPolicy string   `mapstructure:"restart_policy" yaml:"restart_policy"`

	// Labels is read straight from the YAML file; label keys contain dots
	// that the layered key space would split.
	Labels map[string]string `mapstructure:"-" yaml:"labels,omitempty"`

	// RPCHostPort and PeerHostPort feed the default port list when Ports
	// is not set.
	RPCHostPort  string `mapstructure:"rpc_host_port" yaml:"rpc_host_port"`
	PeerHostPort string `mapstructure:"peer_host_port" yaml:"peer_host_port"`
}

// HealthConfig tunes readiness probing.
type HealthConfig struct {
	Command  string        `mapstructure:"command" yaml:"command"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RPCConfig describes the Transmission RPC endpoint.
type RPCConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"` // container port, e.g. "9091/tcp"
	Username string `mapstructure:"username" yaml:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
}

// LifecycleConfig tunes reconciliation.
type LifecycleConfig struct {
	ReclaimUnmanaged bool          `mapstructure:"reclaim_unmanaged" yaml:"reclaim_unmanaged"`
	CleanupTimeout   time.Duration `mapstructure:"cleanup_timeout" yaml:"cleanup_timeout"`
	LockDir          string        `mapstructure:"lock_dir" yaml:"lock_dir,omitempty"`
}

// LoggingConfig controls file logging. Console logging is always on.
type LoggingConfig struct {
	FileEnabled bool   `mapstructure:"file_enabled" yaml:"file_enabled"`
	Dir         string `mapstructure:"dir" yaml:"dir,omitempty"`
	MaxSizeMB   int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays  int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	File string `mapstructure:"file" yaml:"file,omitempty"`
}

// Validate checks the configuration can produce a container spec.
func (c *Config) Validate() error {
	if _, err := c.ContainerSpec(); err != nil {
		return err
	}
	if c.Health.Interval < 0 || c.Health.Timeout < 0 {
		return fmt.Errorf("health: interval and timeout must not be negative")
	}
	if c.Engine.Port < 0 || c.Engine.Port > 65535 {
		return fmt.Errorf("engine: port %d out of range", c.Engine.Port)
	}
	return nil
}

// ContainerSpec converts the container section into an engine spec.
func (c *Config) ContainerSpec() (engine.ContainerSpec, error) {
	cc := c.Container
	image, err := engine.ParseImageRef(cc.Image)
	if err != nil {
		return engine.ContainerSpec{}, fmt.Errorf("container.image: %w", err)
	}
	exposed, bindings, err := engine.ParsePortSpecs(cc.Ports)
	if err != nil {
		return engine.ContainerSpec{}, fmt.Errorf("container.ports: %w", err)
	}
	restart, err := engine.ParseRestartPolicy(cc.RestartPolicy)
	if err != nil {
		return engine.ContainerSpec{}, fmt.Errorf("container.restart_policy: %w", err)
	}
	spec := engine.ContainerSpec{
		Name:          cc.Name,
		Image:         image,
		Env:           cc.Env,
		ExposedPorts:  exposed,
		Volumes:       cc.Volumes,
		Binds:         cc.Binds,
		PortBindings:  bindings,
		RestartPolicy: restart,
		Labels:        cc.Labels,
	}
	if err := spec.Validate(); err != nil {
		return engine.ContainerSpec{}, err
	}
	return spec.Clone(), nil
}

// EngineOptions converts the engine section into adapter options. runID
// tags created containers.
func (c *Config) EngineOptions(runID string) engine.Options {
	e := c.Engine
	return engine.Options{
		SocketPath: e.SocketPath,
		Host:       e.Host,
		Port:       e.Port,
		Version:    e.Version,
		Username:   e.Username,
		Password:   e.Password,
		TLS: engine.TLSOptions{
			CAFile:               e.TLS.CA,
			CertFile:             e.TLS.Cert,
			KeyFile:              e.TLS.Key,
			VerifyServerIdentity: e.TLS.VerifyServerIdentity,
		},
		Timeout:        e.Timeout,
		ConnectTimeout: e.ConnectTimeout,
		Proxy:          e.Proxy,
		LabelPrefix:    e.LabelPrefix,
		RunID:          runID,
	}
}

// ManagerConfig converts the configuration into lifecycle settings.
func (c *Config) ManagerConfig() (lifecycle.ManagerConfig, error) {
	spec, err := c.ContainerSpec()
	if err != nil {
		return lifecycle.ManagerConfig{}, err
	}
	return lifecycle.ManagerConfig{
		Spec:             spec,
		ReadinessCommand: c.Health.Command,
		Health:           c.HealthPolicy(),
		RPCUsername:      c.RPC.Username,
		RPCPassword:      c.RPC.Password,
		RPCPort:          c.RPC.Port,
		EndpointHost:     c.RPC.Host,
		ReclaimUnmanaged: c.Lifecycle.ReclaimUnmanaged,
		CleanupTimeout:   c.Lifecycle.CleanupTimeout,
	}, nil
}

// RPCEndpoint returns host:port of the published RPC port, computed from
// the port bindings alone.
func (c *Config) RPCEndpoint() (string, error) {
	spec, err := c.ContainerSpec()
	if err != nil {
		return "", err
	}
	addr, err := engine.PublishedAddress(spec.PortBindings, c.RPC.Port, c.RPC.Host)
	if err != nil {
		return "", fmt.Errorf("rpc endpoint: %w", err)
	}
	return addr, nil
}

// Redacted returns a copy with passwords masked, for display.
func (c *Config) Redacted() Config {
	out := *c
	if out.Engine.Password != "" {
		out.Engine.Password = redactedSecret
	}
	if out.RPC.Password != "" {
		out.RPC.Password = redactedSecret
	}
	return out
}

const redactedSecret = "********"

// HealthPolicy returns the polling policy.
func (c *Config) HealthPolicy() health.Policy {
	return health.Policy{Interval: c.Health.Interval, Timeout: c.Health.Timeout}
}

// LoggerConfig converts the logging section for logger.InitWithFile.
func (c *Config) LoggerConfig() *logger.LoggingConfig {
	enabled := c.Logging.FileEnabled
	return &logger.LoggingConfig{
		FileEnabled: &enabled,
		MaxSizeMB:   c.Logging.MaxSizeMB,
		MaxAgeDays:  c.Logging.MaxAgeDays,
		MaxBackups:  c.Logging.MaxBackups,
	}
}

// LogsDir returns logging.dir, or torrentbed/logs under the user cache
// directory when unset.
func (c *Config) LogsDir() (string, error) {
	if c.Logging.Dir != "" {
		return c.Logging.Dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolving logs directory: %w", err)
	}
	return filepath.Join(base, "torrentbed", "logs"), nil
}
