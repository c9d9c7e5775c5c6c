package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/schmitthub/torrentbed/internal/engine"
	"github.com/schmitthub/torrentbed/internal/health"
	"github.com/schmitthub/torrentbed/internal/lifecycle"
)

// Built-in defaults for the Transmission test container.
const (
	DefaultContainerName = "transmission-promise-testing"
	DefaultImage         = "linuxserver/transmission:2.94-r3-ls53"
	DefaultRPCHostPort   = "9091"
	DefaultPeerHostPort  = "50143"
	DefaultTimeZone      = "Europe/London"
	DefaultRestartPolicy = "unless-stopped"
	HealthcheckScript    = "rpc_healthcheck.sh"
)

// DefaultVolumes are anonymous volumes so every run starts clean.
var DefaultVolumes = []string{"/config", "/downloads", "/watch"}

// DefaultPorts publishes the RPC port and the peer port over TCP and UDP.
func DefaultPorts(rpcHostPort, peerHostPort string) []string {
	return []string{
		rpcHostPort + ":9091",
		peerHostPort + ":50143/tcp",
		peerHostPort + ":50143/udp",
	}
}

// DefaultEnv runs the daemon as the invoking user.
func DefaultEnv() []string {
	return []string{
		fmt.Sprintf("PUID=%d", os.Getuid()),
		fmt.Sprintf("PGID=%d", os.Getgid()),
		"TZ=" + DefaultTimeZone,
	}
}

// DefaultBinds mounts the readiness script from workDir.
func DefaultBinds(workDir string) []string {
	return []string{filepath.Join(workDir, HealthcheckScript) + ":/" + HealthcheckScript}
}

// setDefaults registers every default on v. Ports and binds are derived
// after reading, since they depend on other keys and the working dir.
func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.label_prefix", engine.DefaultLabelPrefix)

	v.SetDefault("container.name", DefaultContainerName)
	v.SetDefault("container.image", DefaultImage)
	v.SetDefault("container.env", DefaultEnv())
	v.SetDefault("container.volumes", DefaultVolumes)
	v.SetDefault("container.restart_policy", DefaultRestartPolicy)
	v.SetDefault("container.rpc_host_port", DefaultRPCHostPort)
	v.SetDefault("container.peer_host_port", DefaultPeerHostPort)

	v.SetDefault("health.command", health.DefaultReadinessCommand)
	v.SetDefault("health.interval", health.DefaultInterval)
	v.SetDefault("health.timeout", health.DefaultTimeout)

	v.SetDefault("rpc.host", lifecycle.DefaultEndpointHost)
	v.SetDefault("rpc.port", lifecycle.DefaultRPCPort)

	v.SetDefault("lifecycle.reclaim_unmanaged", true)
	v.SetDefault("lifecycle.cleanup_timeout", lifecycle.DefaultCleanupTimeout)

	v.SetDefault("logging.file_enabled", false)
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_age_days", 7)
	v.SetDefault("logging.max_backups", 3)
}

// legacyEnv maps config keys to the unprefixed variable names older .env
// files use.
var legacyEnv = map[string]string{
	"container.name":           "CONTAINER_NAME",
	"container.image":          "IMAGE_NAME",
	"container.rpc_host_port":  "TRANSMISSION_HOST_RPC_PORT",
	"container.peer_host_port": "TRANSMISSION_HOST_PEER_PORT",
	"engine.socket_path":       "SOCKET_PATH",
}
