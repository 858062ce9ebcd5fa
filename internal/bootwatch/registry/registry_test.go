package registry

import (
	"sync"
	"testing"

	"github.com/autopeer-io/bootwatch/internal/bootwatch/device"
)

func rec(adaptor string, progress int) device.Record {
	r := device.New()
	r.Adaptor = adaptor
	return device.WithProgress(r, progress)
}

func TestUpdateReplaces(t *testing.T) {
	r := New()

	r.Update("beagleboot", device.Snapshot{rec("beagleboot", 10)})
	r.Update("beagleboot", device.Snapshot{rec("beagleboot", 60)})

	got := r.List()
	if len(got) != 1 {
		t.Fatalf("List() has %d devices, want 1", len(got))
	}
	if got[0].Progress != 60 {
		t.Errorf("Progress = %d, want the latest 60", got[0].Progress)
	}
}

func TestEmptySnapshotRemoves(t *testing.T) {
	tests := []struct {
		name string
		snap device.Snapshot
	}{
		{"nil", nil},
		{"empty", device.Snapshot{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			r.Update("beagleboot", device.Snapshot{rec("beagleboot", 0)})
			r.Update("beagleboot", tt.snap)

			if got := r.List(); len(got) != 0 {
				t.Errorf("List() = %+v, want empty", got)
			}
			if _, ok := r.ForAdapter("beagleboot"); ok {
				t.Error("adapter still registered")
			}
			if got := r.Adapters(); len(got) != 0 {
				t.Errorf("Adapters() = %v", got)
			}
		})
	}
}

func TestListMergesByAdapterID(t *testing.T) {
	r := New()
	r.Update("usbboot", device.Snapshot{rec("usbboot", 1), rec("usbboot", 2)})
	r.Update("beagleboot", device.Snapshot{rec("beagleboot", 3)})
	r.Update("blockdevice", device.Snapshot{rec("blockdevice", 4)})

	got := r.List()
	want := []int{3, 4, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("List() has %d devices, want %d", len(got), len(want))
	}
	for i, p := range want {
		if got[i].Progress != p {
			t.Errorf("device %d progress = %d, want %d", i, got[i].Progress, p)
		}
	}

	ids := r.Adapters()
	if len(ids) != 3 || ids[0] != "beagleboot" || ids[2] != "usbboot" {
		t.Errorf("Adapters() = %v", ids)
	}
}

func TestUpdateOneAdapterLeavesOthers(t *testing.T) {
	r := New()
	r.Update("a", device.Snapshot{rec("a", 1)})
	r.Update("b", device.Snapshot{rec("b", 2)})
	r.Update("a", nil)

	snap, ok := r.ForAdapter("b")
	if !ok || len(snap) != 1 || snap[0].Progress != 2 {
		t.Errorf("ForAdapter(b) = %+v, %v", snap, ok)
	}
}

func TestRegistryCopies(t *testing.T) {
	r := New()
	in := device.Snapshot{rec("beagleboot", 5)}
	r.Update("beagleboot", in)

	in[0].Progress = 99
	out := r.List()
	out[0].Mountpoints = append(out[0].Mountpoints, "/mnt")

	snap, _ := r.ForAdapter("beagleboot")
	if snap[0].Progress != 5 || len(snap[0].Mountpoints) != 0 {
		t.Errorf("registry state aliased by caller: %+v", snap[0])
	}
}

func TestSink(t *testing.T) {
	r := New()
	sink := r.Sink("beagleboot")

	sink(device.Snapshot{rec("beagleboot", 0)})
	if len(r.List()) != 1 {
		t.Fatal("sink did not register the device")
	}
	sink(device.Snapshot{})
	if len(r.List()) != 0 {
		t.Fatal("sink did not remove the device")
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	sink := r.Sink("beagleboot")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(p int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sink(device.Snapshot{rec("beagleboot", p)})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if n := len(r.List()); n > 1 {
					t.Errorf("List() has %d devices for one adapter", n)
					return
				}
			}
		}()
	}
	wg.Wait()
}
