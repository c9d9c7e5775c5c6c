package engine

import (
	"fmt"
	"maps"
	"slices"

	"github.com/distribution/reference"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"
)

// ImageRef identifies an image by repository and tag.
type ImageRef struct {
	Repository string
	Tag        string
}

// ParseImageRef splits a familiar image reference such as
// "linuxserver/transmission:2.94-r3-ls53". A missing tag becomes "latest".
func ParseImageRef(s string) (ImageRef, error) {
	named, err := reference.ParseNormalizedNamed(s)
	if err != nil {
		return ImageRef{}, fmt.Errorf("invalid image reference %q: %w", s, err)
	}
	tagged, ok := reference.TagNameOnly(named).(reference.Tagged)
	if !ok {
		return ImageRef{}, fmt.Errorf("image reference %q has no tag", s)
	}
	return ImageRef{Repository: reference.FamiliarName(named), Tag: tagged.Tag()}, nil
}

// Reference joins repository and tag.
func (r ImageRef) Reference() string {
	if r.Tag == "" {
		return r.Repository
	}
	return r.Repository + ":" + r.Tag
}

func (r ImageRef) String() string { return r.Reference() }

// ContainerSpec is the full, immutable description of the container to
// create. It is built once from configuration and copied, never mutated,
// on its way to the engine.
type ContainerSpec struct {
	Name          string
	Image         ImageRef
	Env           []string
	ExposedPorts  network.PortSet
	Volumes       []string // anonymous container volumes, e.g. "/config"
	Binds         []string // host:container[:mode]
	PortBindings  network.PortMap
	RestartPolicy container.RestartPolicy
	Labels        map[string]string
}

// Validate reports the first structural problem with the spec.
func (s ContainerSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("container spec: name is required")
	}
	if s.Image.Repository == "" {
		return fmt.Errorf("container spec: image is required")
	}
	for p := range s.PortBindings {
		if _, ok := s.ExposedPorts[p]; !ok {
			return fmt.Errorf("container spec: port %s is bound but not exposed", p)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s ContainerSpec) Clone() ContainerSpec {
	out := s
	out.Env = slices.Clone(s.Env)
	out.Volumes = slices.Clone(s.Volumes)
	out.Binds = slices.Clone(s.Binds)
	out.ExposedPorts = maps.Clone(s.ExposedPorts)
	out.Labels = maps.Clone(s.Labels)
	if s.PortBindings != nil {
		out.PortBindings = make(network.PortMap, len(s.PortBindings))
		for p, list := range s.PortBindings {
			out.PortBindings[p] = slices.Clone(list)
		}
	}
	return out
}

// engineConfig converts the spec into the engine's create payload.
func (s ContainerSpec) engineConfig() (*container.Config, *container.HostConfig) {
	c := s.Clone()

	var volumes map[string]struct{}
	if len(c.Volumes) > 0 {
		volumes = make(map[string]struct{}, len(c.Volumes))
		for _, v := range c.Volumes {
			volumes[v] = struct{}{}
		}
	}

	cfg := &container.Config{
		Image:        c.Image.Reference(),
		Env:          c.Env,
		ExposedPorts: c.ExposedPorts,
		Volumes:      volumes,
		Labels:       c.Labels,
	}
	hostCfg := &container.HostConfig{
		Binds:         c.Binds,
		PortBindings:  c.PortBindings,
		RestartPolicy: c.RestartPolicy,
	}
	return cfg, hostCfg
}
