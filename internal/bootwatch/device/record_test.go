package device

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	r := New()

	if r.DisplayName != InitialDisplayName {
		t.Errorf("DisplayName = %q, want %q", r.DisplayName, InitialDisplayName)
	}
	if r.Icon != IconLoading {
		t.Errorf("Icon = %q, want %q", r.Icon, IconLoading)
	}
	if r.Progress != 0 {
		t.Errorf("Progress = %d, want 0", r.Progress)
	}
	if !r.Disabled {
		t.Error("a boot target must never be a flash target")
	}
	if r.Size != nil {
		t.Errorf("Size = %v, want nil", *r.Size)
	}
	if r.Mountpoints == nil || len(r.Mountpoints) != 0 {
		t.Errorf("Mountpoints = %#v, want empty non-nil slice", r.Mountpoints)
	}
	if r.Device != Kind || r.Description != Description || r.Adaptor != AdaptorID {
		t.Errorf("hardware constants not filled in: %+v", r)
	}
	if r.IsReadOnly || r.IsSystem {
		t.Errorf("flags = readOnly:%v system:%v, want false/false", r.IsReadOnly, r.IsSystem)
	}
}

func TestWithProgress(t *testing.T) {
	base := WithError(New(), "stall")

	for _, p := range []int{0, 10, 50, 99, 100} {
		r := WithProgress(base, p)
		if r.Progress != p {
			t.Errorf("Progress = %d, want %d", r.Progress, p)
		}
		if r.Icon != IconLoading {
			t.Errorf("Icon = %q, want %q", r.Icon, IconLoading)
		}
		if r.DisplayName != base.DisplayName {
			t.Errorf("DisplayName changed to %q", r.DisplayName)
		}
	}

	if base.Icon != IconWarning {
		t.Error("WithProgress mutated its input")
	}
}

func TestWithError(t *testing.T) {
	base := WithProgress(New(), 50)
	r := WithError(base, "timeout")

	if r.Icon != IconWarning {
		t.Errorf("Icon = %q, want %q", r.Icon, IconWarning)
	}
	if r.DisplayName != "Error! Reset board [timeout]" {
		t.Errorf("DisplayName = %q", r.DisplayName)
	}
	if !strings.Contains(r.DisplayName, "timeout") {
		t.Errorf("DisplayName %q does not carry the message", r.DisplayName)
	}
	if r.Progress != 50 {
		t.Errorf("Progress = %d, want 50 (errors keep progress)", r.Progress)
	}
	if base.Icon != IconLoading || base.DisplayName != InitialDisplayName {
		t.Error("WithError mutated its input")
	}
}

func TestClamp(t *testing.T) {
	tests := []struct{ in, want int }{
		{-5, 0}, {0, 0}, {42, 42}, {100, 100}, {250, 100},
	}
	for _, tt := range tests {
		if got := Clamp(tt.in); got != tt.want {
			t.Errorf("Clamp(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	size := uint64(4 << 30)
	r := New()
	r.Size = &size
	r.Mountpoints = []string{"/media/boot"}

	c := r.Clone()
	c.Mountpoints[0] = "/mnt/other"
	*c.Size = 1

	if r.Mountpoints[0] != "/media/boot" {
		t.Error("Clone shares the mountpoints slice")
	}
	if *r.Size != 4<<30 {
		t.Error("Clone shares the size pointer")
	}

	snap := Snapshot{r}
	sc := snap.Clone()
	sc[0].DisplayName = "changed"
	if snap[0].DisplayName == "changed" {
		t.Error("Snapshot.Clone shares records")
	}

	if Snapshot(nil).Clone() == nil {
		t.Error("Clone of a nil snapshot must be an empty, non-nil snapshot")
	}
}

func TestRecordJSON(t *testing.T) {
	data, err := json.Marshal(New())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	for _, key := range []string{"device", "displayName", "description", "size", "mountpoints",
		"isReadOnly", "isSystem", "disabled", "icon", "adaptor", "progress"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing JSON key %q in %s", key, data)
		}
	}
	if m["size"] != nil {
		t.Errorf("size = %v, want null", m["size"])
	}
}
