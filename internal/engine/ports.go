package engine

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/docker/go-connections/nat"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"
)

// ParsePortSpecs parses Docker-style publish specifications into the
// exposed port set and host bindings the engine expects.
// Supported formats:
//   - containerPort (random host port)
//   - hostPort:containerPort
//   - hostIP:hostPort:containerPort
//   - port-range:port-range (e.g., 6881-6889:6881-6889)
//   - Any of the above with /tcp or /udp suffix (default: tcp)
func ParsePortSpecs(specs []string) (network.PortSet, network.PortMap, error) {
	exposedPorts := make(network.PortSet)
	portBindings := make(network.PortMap)

	for _, spec := range specs {
		portMappings, err := nat.ParsePortSpec(spec)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid port specification %q: %w", spec, err)
		}
		for _, pm := range portMappings {
			netPort, err := network.ParsePort(string(pm.Port))
			if err != nil {
				return nil, nil, fmt.Errorf("invalid port %q: %w", pm.Port, err)
			}
			exposedPorts[netPort] = struct{}{}

			// nat yields HostIP as a string; moby wants netip.Addr.
			var hostIP netip.Addr
			if pm.Binding.HostIP != "" {
				hostIP, err = netip.ParseAddr(pm.Binding.HostIP)
				if err != nil {
					return nil, nil, fmt.Errorf("invalid host IP %q: %w", pm.Binding.HostIP, err)
				}
			}
			portBindings[netPort] = append(portBindings[netPort], network.PortBinding{
				HostIP:   hostIP,
				HostPort: pm.Binding.HostPort,
			})
		}
	}

	return exposedPorts, portBindings, nil
}

// PublishedAddress returns the host:port a client on this machine dials to
// reach containerPort (e.g. "9091/tcp"). An unspecified host IP becomes
// defaultHost.
func PublishedAddress(bindings network.PortMap, containerPort, defaultHost string) (string, error) {
	if !strings.Contains(containerPort, "/") {
		containerPort += "/tcp"
	}
	port, err := network.ParsePort(containerPort)
	if err != nil {
		return "", fmt.Errorf("invalid port %q: %w", containerPort, err)
	}
	list, ok := bindings[port]
	if !ok || len(list) == 0 {
		return "", fmt.Errorf("port %s is not published", containerPort)
	}
	b := list[0]
	if b.HostPort == "" {
		return "", fmt.Errorf("port %s is published on a random host port", containerPort)
	}
	host := defaultHost
	if b.HostIP.IsValid() && !b.HostIP.IsUnspecified() {
		host = b.HostIP.String()
	}
	return net.JoinHostPort(host, b.HostPort), nil
}

// ParseRestartPolicy parses a restart policy string into a RestartPolicy.
// Valid formats: "no", "always", "unless-stopped", "on-failure", "on-failure:N"
func ParseRestartPolicy(policy string) (container.RestartPolicy, error) {
	if policy == "" {
		return container.RestartPolicy{}, nil
	}

	p := container.RestartPolicy{}
	name, maxRetries, hasColon := strings.Cut(policy, ":")

	if hasColon && name == "" {
		return container.RestartPolicy{}, fmt.Errorf("invalid restart policy format: no policy provided before colon")
	}

	switch container.RestartPolicyMode(name) {
	case container.RestartPolicyDisabled, container.RestartPolicyAlways,
		container.RestartPolicyOnFailure, container.RestartPolicyUnlessStopped:
	default:
		return container.RestartPolicy{}, fmt.Errorf("invalid restart policy %q", name)
	}

	if maxRetries != "" {
		if container.RestartPolicyMode(name) != container.RestartPolicyOnFailure {
			return container.RestartPolicy{}, fmt.Errorf("maximum retry count is only valid with on-failure")
		}
		count, err := strconv.Atoi(maxRetries)
		if err != nil {
			return container.RestartPolicy{}, fmt.Errorf("invalid restart policy format: maximum retry count must be an integer")
		}
		p.MaximumRetryCount = count
	}

	p.Name = container.RestartPolicyMode(name)
	return p, nil
}
