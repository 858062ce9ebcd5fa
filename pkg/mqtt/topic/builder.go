package topic

import (
	"fmt"
)

// Builder encapsulates the logic for constructing MQTT topic strings.
type Builder struct {
	// root is the base namespace for all topics (e.g., "bootwatch/v1").
	root string
}

// NewBuilder creates a new Builder with the specified root namespace.
func NewBuilder(root string) *Builder {
	return &Builder{root: root}
}

// Build joins root, segment and id.
// Pattern: {root}/{segment}/{id}
func (b *Builder) Build(segment, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, segment, id)
}

// Events returns the topic the boot driver publishes raw stage events on.
func (b *Builder) Events(adapterID string) string {
	return b.Build(Events, adapterID)
}

// Devices returns the retained snapshot topic of one adapter.
func (b *Builder) Devices(adapterID string) string {
	return b.Build(Devices, adapterID)
}

// DevicesWildcard returns the filter a registry uses to follow every adapter.
// Result: {root}/devices/+
func (b *Builder) DevicesWildcard() string {
	return b.Build(Devices, Wildcard)
}
