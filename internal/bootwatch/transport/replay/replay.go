// Package replay plays a scripted sequence of boot driver events, for bench
// testing the watcher without a board attached.
//
// A script is JSON lines. Each line is an event as the boot driver encodes it
// plus an optional "after" duration waited before the event is emitted:
//
//	{"after":"0s","type":"connect","stage":"ROM"}
//	{"after":"300ms","type":"progress","complete":50}
//
// Blank lines and lines starting with '#' are skipped.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/bootwatch/internal/bootwatch/transport"
	"github.com/autopeer-io/bootwatch/pkg/log"
)

var (
	ErrEmptyScript = errors.New("replay script has no events")
	ErrBusyLoop    = errors.New("looping replay script needs a non-zero delay")
)

// Step is one scripted event.
type Step struct {
	After time.Duration
	Event transport.Event
}

// ParseScript reads a JSON-lines script.
func ParseScript(r io.Reader) ([]Step, error) {
	var steps []Step

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		var timing struct {
			After string `json:"after"`
		}
		if err := json.Unmarshal(line, &timing); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		var after time.Duration
		if timing.After != "" {
			d, err := time.ParseDuration(timing.After)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid after: %w", lineNo, err)
			}
			if d < 0 {
				return nil, fmt.Errorf("line %d: negative after %s", lineNo, d)
			}
			after = d
		}

		ev, err := transport.Decode(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		steps = append(steps, Step{After: after, Event: ev})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return steps, nil
}

var _ transport.Source = (*Player)(nil)

// Player is a transport.Source that emits a script's events on its own goroutine.
type Player struct {
	*transport.Emitter

	steps  []Step
	loop   bool
	clock  clock.Clock
	logger log.Logger
}

// Option configures a Player.
type Option func(*Player)

// WithLoop restarts the script from the top when it ends.
func WithLoop(loop bool) Option {
	return func(p *Player) { p.loop = loop }
}

// WithClock replaces the clock used for step delays.
func WithClock(c clock.Clock) Option {
	return func(p *Player) { p.clock = c }
}

// New creates a player for steps.
func New(steps []Step, opts ...Option) (*Player, error) {
	p := &Player{
		Emitter: transport.NewEmitter(),
		steps:   steps,
		clock:   clock.RealClock{},
		logger:  log.Std().WithName("replay"),
	}
	for _, opt := range opts {
		opt(p)
	}

	if len(steps) == 0 {
		return nil, ErrEmptyScript
	}
	if p.loop && p.Duration() == 0 {
		return nil, ErrBusyLoop
	}

	return p, nil
}

// Load parses the script at path and creates a player for it.
func Load(path string, opts ...Option) (*Player, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay script: %w", err)
	}
	defer f.Close()

	steps, err := ParseScript(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse replay script %s: %w", path, err)
	}

	return New(steps, opts...)
}

// Duration is the total scripted delay of one pass.
func (p *Player) Duration() time.Duration {
	var total time.Duration
	for _, s := range p.steps {
		total += s.After
	}
	return total
}

// Start plays the script. It returns when the script ends, unless looping,
// or when ctx is done.
func (p *Player) Start(ctx context.Context) error {
	p.logger.Info("Replaying boot events", "steps", len(p.steps), "loop", p.loop, "duration", p.Duration())

	for pass := 1; ; pass++ {
		for _, s := range p.steps {
			if s.After > 0 {
				select {
				case <-p.clock.After(s.After):
				case <-ctx.Done():
					return nil
				}
			} else if ctx.Err() != nil {
				return nil
			}

			p.logger.Debug("Replaying event", "event", s.Event, "pass", pass)
			p.Emit(s.Event)
		}

		if !p.loop {
			p.logger.Info("Replay finished")
			return nil
		}
	}
}
