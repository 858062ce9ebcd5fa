package topic

// Topic segments shared by the boot driver, bootwatch and downstream registries.
// Changing these values breaks every peer that follows the same broker.
const (
	// Events carries raw USB-boot stage events published by the boot driver.
	// Structure: {root}/events/{adapterID}
	Events = "events"

	// Devices carries the retained device snapshot of one discovery adapter.
	// Structure: {root}/devices/{adapterID}
	Devices = "devices"
)

// Standard MQTT wildcard definitions.
const (
	// Wildcard is the single-level wildcard "+".
	// Example: "bootwatch/v1/devices/+" matches "bootwatch/v1/devices/beagleboot".
	Wildcard = "+"

	// MultiWildcard is the multi-level wildcard "#".
	// It must be the last character in the topic filter.
	MultiWildcard = "#"
)
