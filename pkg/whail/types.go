package whail

import (
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"
)

// Type aliases for Docker SDK types.
// These allow packages to use whail as their single import for Docker interactions.
type (
	Filters = client.Filters

	// Container configuration types.
	ContainerConfig   = container.Config
	HostConfig        = container.HostConfig
	ContainerSummary  = container.Summary
	RestartPolicy     = container.RestartPolicy
	RestartPolicyMode = container.RestartPolicyMode

	// Port publishing types.
	Port        = network.Port
	PortSet     = network.PortSet
	PortMap     = network.PortMap
	PortBinding = network.PortBinding
)

const (
	RestartPolicyDisabled      = container.RestartPolicyDisabled
	RestartPolicyAlways        = container.RestartPolicyAlways
	RestartPolicyOnFailure     = container.RestartPolicyOnFailure
	RestartPolicyUnlessStopped = container.RestartPolicyUnlessStopped
)
