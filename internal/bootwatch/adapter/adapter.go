// Package adapter turns the staged event stream of a boot-over-USB target into
// full device snapshots for the device registry.
package adapter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/bootwatch/internal/bootwatch/device"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/transport"
	"github.com/autopeer-io/bootwatch/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/bootwatch/internal/pkg/util/fsm"
	"github.com/autopeer-io/bootwatch/pkg/log"
)

// ID identifies snapshots produced by this adapter.
const ID = device.AdaptorID

const (
	// DeviceShowDelay is how long the mass storage stage takes to enumerate on
	// the host after it connects. The tracked device is dropped once it elapses.
	DeviceShowDelay = 1500 * time.Millisecond

	// HalfProgress is reported when the ROM stage hands off to the secondary loader.
	HalfProgress = 50
	// FullProgress is reported when the secondary loader hands off to mass storage.
	FullProgress = 100
)

// Phase is the explicit state of the watched boot target.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseROMVisible         Phase = "rom_visible"
	PhaseProgress           Phase = "progress"
	PhaseError              Phase = "error"
	PhaseMassStoragePending Phase = "mass_storage_pending"
)

// Visible reports whether a device record exists in this phase.
func (p Phase) Visible() bool { return p != PhaseIdle }

const (
	eventConnectROM         = "connect_rom"
	eventProgress           = "report_progress"
	eventError              = "report_error"
	eventConnectMassStorage = "connect_mass_storage"
	eventHandoff            = "handoff"
	eventDropROM            = "drop_rom"
	eventDropSecondary      = "drop_secondary"
	eventReset              = "reset"
)

// SnapshotFunc receives every emitted snapshot. It runs synchronously on the
// goroutine processing transport events and must not block.
type SnapshotFunc func(device.Snapshot)

type subscriber struct {
	id uint64
	fn SnapshotFunc
}

// Adapter is the boot-device watch adapter. It tracks at most one device.
type Adapter struct {
	source transport.Source
	clock  clock.WithDelayedExecution
	delay  time.Duration
	logger log.Logger

	// mu serialises transport events and the show-delay timer.
	mu         sync.Mutex
	machine    *fsm.FSM
	record     device.Record
	detach     func()
	timer      clock.Timer
	generation uint64

	phase          atomic.Value // Phase
	lastDisconnect atomic.Value // transport.Stage
	devices        atomic.Pointer[device.Snapshot]

	subMu   sync.Mutex
	nextSub uint64
	subs    []subscriber
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithClock replaces the clock driving the show delay.
func WithClock(c clock.WithDelayedExecution) Option {
	return func(a *Adapter) { a.clock = c }
}

// WithShowDelay overrides DeviceShowDelay.
func WithShowDelay(d time.Duration) Option {
	return func(a *Adapter) { a.delay = d }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// New creates an adapter bound to source. It does not listen until Scan is called.
func New(source transport.Source, opts ...Option) *Adapter {
	a := &Adapter{
		source: source,
		clock:  clock.RealClock{},
		delay:  DeviceShowDelay,
		logger: log.Std().WithName("adapter").WithValues("adapter", ID),
	}
	for _, opt := range opts {
		opt(a)
	}

	empty := device.Snapshot{}
	a.devices.Store(&empty)
	a.phase.Store(PhaseIdle)
	a.lastDisconnect.Store(transport.Stage(""))
	a.machine = a.newMachine()

	return a
}

func (a *Adapter) newMachine() *fsm.FSM {
	idle := string(PhaseIdle)
	rom := string(PhaseROMVisible)
	progress := string(PhaseProgress)
	errored := string(PhaseError)
	pending := string(PhaseMassStoragePending)

	events := fsm.Events{
		{Name: eventConnectROM, Src: []string{idle, rom, progress, errored, pending}, Dst: rom},
		{Name: eventProgress, Src: []string{rom, progress}, Dst: progress},
		{Name: eventError, Src: []string{rom, progress, errored}, Dst: errored},
		{Name: eventConnectMassStorage, Src: []string{rom, progress, errored}, Dst: pending},
		{Name: eventHandoff, Src: []string{pending}, Dst: idle},
		{Name: eventDropROM, Src: []string{rom, progress, errored}, Dst: idle},
		{Name: eventDropSecondary, Src: []string{rom, progress, errored, pending}, Dst: idle},
		{Name: eventReset, Src: []string{rom, progress, errored, pending}, Dst: idle},
	}

	callbacks := fsm.Callbacks{
		// Guards (before_...): veto disconnects that are an expected stage handoff.
		"before_" + eventDropROM:       fsmutil.WrapEvent(a.guardHandoff(HalfProgress)),
		"before_" + eventDropSecondary: fsmutil.WrapEvent(a.guardHandoff(FullProgress)),

		// Actions (after_...): run for transitions and self transitions alike.
		"after_" + eventConnectROM:         fsmutil.WrapEvent(a.actionConnectROM),
		"after_" + eventProgress:           fsmutil.WrapEvent(a.actionProgress),
		"after_" + eventError:              fsmutil.WrapEvent(a.actionError),
		"after_" + eventConnectMassStorage: fsmutil.WrapEvent(a.actionConnectMassStorage),
		"after_" + eventHandoff:            fsmutil.WrapEvent(a.actionClear),
		"after_" + eventDropROM:            fsmutil.WrapEvent(a.actionClear),
		"after_" + eventDropSecondary:      fsmutil.WrapEvent(a.actionDrop),
		"after_" + eventReset:              fsmutil.WrapEvent(a.actionDrop),

		"enter_state": func(_ context.Context, e *fsm.Event) {
			a.phase.Store(Phase(e.Dst))
		},
	}

	return fsm.NewFSM(idle, events, callbacks)
}

// Scan attaches the adapter to its transport source. Calling Scan again detaches
// the previous registration first, cancels a pending show-delay timer and starts
// a fresh session; a device still visible from the old session is dropped.
func (a *Adapter) Scan() *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.detach != nil {
		a.detach()
		a.detach = nil
	}
	a.cancelTimer()
	if a.Phase().Visible() {
		a.fire(eventReset)
	}

	a.detach = a.source.AddListener(a.handle)
	a.logger.Info("Scanning for boot devices", "showDelay", a.delay)

	return a
}

// Close detaches the adapter from its source and cancels a pending timer.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.detach != nil {
		a.detach()
		a.detach = nil
	}
	a.cancelTimer()
}

// Subscribe registers fn for every future snapshot.
func (a *Adapter) Subscribe(fn SnapshotFunc) (unsubscribe func()) {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	a.nextSub++
	id := a.nextSub
	a.subs = append(a.subs, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			a.subMu.Lock()
			defer a.subMu.Unlock()
			for i, s := range a.subs {
				if s.id == id {
					a.subs = append(a.subs[:i:i], a.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Devices returns a copy of the last emitted snapshot. It is safe to call from a subscriber.
func (a *Adapter) Devices() device.Snapshot {
	return (*a.devices.Load()).Clone()
}

// Phase returns the current phase. It is safe to call from a subscriber.
func (a *Adapter) Phase() Phase {
	return a.phase.Load().(Phase)
}

// LastDisconnect returns the stage that disconnected last in the current session.
func (a *Adapter) LastDisconnect() (transport.Stage, bool) {
	s := a.lastDisconnect.Load().(transport.Stage)
	return s, s != ""
}

// handle is the transport listener.
func (a *Adapter) handle(ev transport.Event) {
	metrics.TransportEvents.WithLabelValues(string(ev.Type), string(ev.Stage)).Inc()

	a.mu.Lock()
	defer a.mu.Unlock()

	if ev.Type == transport.EventDisconnect && a.Phase().Visible() {
		a.lastDisconnect.Store(ev.Stage)
	}

	name, args, ok := route(ev)
	if !ok {
		a.logger.Debug("Ignoring transport event", "event", ev, "phase", a.Phase())
		return
	}

	a.fire(name, args...)
}

// route maps a transport event to a machine event.
func route(ev transport.Event) (string, []any, bool) {
	switch ev.Type {
	case transport.EventConnect:
		switch ev.Stage {
		case transport.StageROM:
			return eventConnectROM, nil, true
		case transport.StageMassStorage:
			return eventConnectMassStorage, nil, true
		}
	case transport.EventProgress:
		return eventProgress, []any{ev.Percent}, true
	case transport.EventError:
		return eventError, []any{ev.Message}, true
	case transport.EventDisconnect:
		switch ev.Stage {
		case transport.StageROM:
			return eventDropROM, nil, true
		case transport.StageSecondary:
			return eventDropSecondary, nil, true
		}
	}
	return "", nil, false
}

// fire runs a machine event. Must be called with a.mu held.
func (a *Adapter) fire(name string, args ...any) {
	from := a.machine.Current()
	err := a.machine.Event(context.Background(), name, args...)

	switch fsmutil.Classify(err) {
	case fsmutil.Applied:
		a.logger.Debug("Applied event", "event", name, "from", from, "to", a.machine.Current())
	case fsmutil.Canceled:
		a.logger.Debug("Absorbed handoff disconnect", "event", name, "phase", from, "progress", a.record.Progress)
	case fsmutil.NotPermitted:
		a.logger.Debug("Event not applicable in phase", "event", name, "phase", from)
	case fsmutil.Failed:
		a.logger.Error(err, "State machine rejected event", "event", name, "phase", from)
	}
}

// guardHandoff cancels a disconnect when progress sits exactly on sentinel.
func (a *Adapter) guardHandoff(sentinel int) func(context.Context, *fsm.Event) error {
	return func(_ context.Context, e *fsm.Event) error {
		if a.record.Progress == sentinel {
			stage := transport.StageROM
			if e.Event == eventDropSecondary {
				stage = transport.StageSecondary
			}
			metrics.DisconnectsAbsorbed.WithLabelValues(string(stage)).Inc()
			e.Cancel()
		}
		return nil
	}
}

func (a *Adapter) actionConnectROM(_ context.Context, _ *fsm.Event) error {
	a.cancelTimer()
	a.lastDisconnect.Store(transport.Stage(""))
	a.record = device.New()
	a.logger.Info("Boot device connected", "stage", transport.StageROM)
	a.emit(device.Snapshot{a.record})
	return nil
}

func (a *Adapter) actionProgress(_ context.Context, e *fsm.Event) error {
	percent, _ := e.Args[0].(int)
	a.record = device.WithProgress(a.record, device.Clamp(percent))
	a.emit(device.Snapshot{a.record})
	return nil
}

func (a *Adapter) actionError(_ context.Context, e *fsm.Event) error {
	message, _ := e.Args[0].(string)
	a.record = device.WithError(a.record, message)
	a.logger.Warn("Boot device reported an error", "message", message, "progress", a.record.Progress)
	a.emit(device.Snapshot{a.record})
	return nil
}

func (a *Adapter) actionConnectMassStorage(_ context.Context, _ *fsm.Event) error {
	a.cancelTimer()
	gen := a.generation
	a.timer = a.clock.AfterFunc(a.delay, func() { a.onShowDelay(gen) })
	a.logger.Info("Mass storage stage connected, handing off", "delay", a.delay)
	return nil
}

// actionDrop clears a device that may still have a pending handoff.
func (a *Adapter) actionDrop(ctx context.Context, e *fsm.Event) error {
	a.cancelTimer()
	return a.actionClear(ctx, e)
}

func (a *Adapter) actionClear(_ context.Context, e *fsm.Event) error {
	a.record = device.Record{}
	a.logger.Info("Boot device gone", "reason", e.Event)
	a.emit(device.Snapshot{})
	return nil
}

func (a *Adapter) onShowDelay(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.generation {
		a.logger.Debug("Discarding stale show-delay timer")
		return
	}
	a.timer = nil
	a.fire(eventHandoff)
}

// cancelTimer stops the pending show-delay timer and invalidates any callback
// already in flight. Must be called with a.mu held.
func (a *Adapter) cancelTimer() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.generation++
}

// emit publishes snap to subscribers. Must be called with a.mu held so emissions
// keep transport order.
func (a *Adapter) emit(snap device.Snapshot) {
	published := snap.Clone()
	a.devices.Store(&published)

	metrics.SnapshotsEmitted.WithLabelValues(ID).Inc()
	metrics.VisibleDevices.WithLabelValues(ID).Set(float64(len(snap)))

	a.subMu.Lock()
	subs := make([]SnapshotFunc, 0, len(a.subs))
	for _, s := range a.subs {
		subs = append(subs, s.fn)
	}
	a.subMu.Unlock()

	for _, fn := range subs {
		fn(snap.Clone())
	}
}
