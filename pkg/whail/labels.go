// Package whail provides a reusable Docker isolation library ("whale jail").
// It wraps the Docker SDK with automatic label-based resource tagging and
// converts raw engine failures into typed errors once, at the boundary,
// so callers never parse free-text engine messages.
package whail

import (
	"maps"

	"github.com/moby/moby/client"
)

// LabelConfig defines labels to apply to managed containers.
// All labels are optional - if a map is nil, no labels are applied.
type LabelConfig struct {
	// Default labels applied to every managed container.
	Default map[string]string

	// Container-specific labels (merged over Default).
	Container map[string]string
}

// MergeLabels merges multiple label maps, with later maps overriding earlier ones.
// Returns a new map containing all labels.
func MergeLabels(labelMaps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range labelMaps {
		maps.Copy(result, m)
	}
	return result
}

// ContainerLabels returns the merged labels for containers.
func (c *LabelConfig) ContainerLabels(extra ...map[string]string) map[string]string {
	all := append([]map[string]string{c.Default, c.Container}, extra...)
	return MergeLabels(all...)
}

// LabelFilter creates a Docker filter for a single label key=value.
// The key should include the prefix (e.g., "com.myapp.managed").
func LabelFilter(key, value string) client.Filters {
	return client.Filters{}.Add("label", key+"="+value)
}

// NameFilter creates a Docker filter matching containers by name.
// The engine treats the value as a substring pattern; callers needing an
// exact match must still compare the returned names.
func NameFilter(name string) client.Filters {
	return client.Filters{}.Add("name", name)
}
