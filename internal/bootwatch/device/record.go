// Package device defines the discoverable device record published by discovery adapters
// and the pure builders that derive new records from lifecycle events.
package device

import "fmt"

// Icon keys understood by the device list.
const (
	IconLoading = "loading"
	IconWarning = "warning"
)

// Hardware constants of the boot-over-USB target.
const (
	Kind        = "beaglebone"
	Description = "BeagleBone"
	AdaptorID   = "beagleboot"

	InitialDisplayName = "Initializing device"
)

// Record is a snapshot of one discoverable device. Records are values: builders
// return modified copies and never touch the input.
type Record struct {
	Device      string   `json:"device"`
	DisplayName string   `json:"displayName"`
	Description string   `json:"description"`
	Size        *uint64  `json:"size"`
	Mountpoints []string `json:"mountpoints"`
	IsReadOnly  bool     `json:"isReadOnly"`
	IsSystem    bool     `json:"isSystem"`
	Disabled    bool     `json:"disabled"`
	Icon        string   `json:"icon"`
	Adaptor     string   `json:"adaptor"`
	Progress    int      `json:"progress"`
}

// Snapshot is the complete device list contributed by one adapter.
type Snapshot []Record

// New returns the canonical record of a freshly connected boot target.
func New() Record {
	return Record{
		Device:      Kind,
		DisplayName: InitialDisplayName,
		Description: Description,
		Size:        nil,
		Mountpoints: []string{},
		IsReadOnly:  false,
		IsSystem:    false,
		Disabled:    true,
		Icon:        IconLoading,
		Adaptor:     AdaptorID,
		Progress:    0,
	}
}

// WithProgress returns a copy of r reporting percent. The caller clamps percent.
func WithProgress(r Record, percent int) Record {
	out := r.Clone()
	out.Progress = percent
	out.Icon = IconLoading
	return out
}

// WithError returns a copy of r showing message. Progress is kept.
func WithError(r Record, message string) Record {
	out := r.Clone()
	out.Icon = IconWarning
	out.DisplayName = ErrorDisplayName(message)
	return out
}

// ErrorDisplayName formats the status line shown for a transport error.
func ErrorDisplayName(message string) string {
	return fmt.Sprintf("Error! Reset board [%s]", message)
}

// Clamp bounds percent to [0, 100].
func Clamp(percent int) int {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	out.Mountpoints = append(make([]string, 0, len(r.Mountpoints)), r.Mountpoints...)
	if r.Size != nil {
		size := *r.Size
		out.Size = &size
	}
	return out
}

// Clone returns a deep copy of s. The result is never nil.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, 0, len(s))
	for _, r := range s {
		out = append(out, r.Clone())
	}
	return out
}
