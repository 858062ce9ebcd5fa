package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrUnknownStage is returned when a stage name is not one of ROM, SPL or UMS.
	ErrUnknownStage = errors.New("unknown boot stage")

	// ErrUnknownEventType is returned when an event type is not recognised.
	ErrUnknownEventType = errors.New("unknown event type")
)

// Stage is one phase of the boot-over-USB handoff.
type Stage string

// Stages as the boot driver names them on the wire.
const (
	StageROM         Stage = "ROM"
	StageSecondary   Stage = "SPL"
	StageMassStorage Stage = "UMS"
)

// ParseStage accepts the wire names and their descriptive aliases, case-insensitively.
func ParseStage(s string) (Stage, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ROM":
		return StageROM, nil
	case "SPL", "SECONDARY", "UBOOT", "U-BOOT":
		return StageSecondary, nil
	case "UMS", "MASS_STORAGE", "MASS-STORAGE", "MSC":
		return StageMassStorage, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, s)
	}
}

func (s Stage) String() string { return string(s) }

// EventType distinguishes the four lifecycle events a boot driver reports.
type EventType string

const (
	EventConnect    EventType = "connect"
	EventProgress   EventType = "progress"
	EventError      EventType = "error"
	EventDisconnect EventType = "disconnect"
)

// Event is one raw lifecycle event of the watched boot target.
// Stage is set for connect/disconnect, Percent for progress, Message for error.
type Event struct {
	Type    EventType `json:"type"`
	Stage   Stage     `json:"stage,omitempty"`
	Percent int       `json:"complete,omitempty"`
	Message string    `json:"message,omitempty"`
}

func Connect(stage Stage) Event    { return Event{Type: EventConnect, Stage: stage} }
func Disconnect(stage Stage) Event { return Event{Type: EventDisconnect, Stage: stage} }
func Progress(percent int) Event   { return Event{Type: EventProgress, Percent: percent} }
func Error(message string) Event   { return Event{Type: EventError, Message: message} }

func (e Event) String() string {
	switch e.Type {
	case EventConnect, EventDisconnect:
		return fmt.Sprintf("%s(%s)", e.Type, e.Stage)
	case EventProgress:
		return fmt.Sprintf("progress(%d)", e.Percent)
	case EventError:
		return fmt.Sprintf("error(%q)", e.Message)
	default:
		return string(e.Type)
	}
}

// Validate checks that the event carries what its type requires.
func (e Event) Validate() error {
	switch e.Type {
	case EventConnect, EventDisconnect:
		if _, err := ParseStage(string(e.Stage)); err != nil {
			return err
		}
	case EventProgress, EventError:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	return nil
}

// wireEvent is Event as the driver sends it: "complete" is any JSON number.
type wireEvent struct {
	Type    EventType `json:"type"`
	Stage   Stage     `json:"stage"`
	Percent float64   `json:"complete"`
	Message string    `json:"message"`
}

// maxWirePercent bounds "complete" before the int conversion; the adapter
// clamps to [0,100] afterwards.
const maxWirePercent = 1 << 20

// Decode parses and validates one JSON-encoded event. Stage aliases are
// normalised and a fractional progress is rounded to the nearest percent.
func Decode(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}

	e := Event{
		Type:    EventType(strings.ToLower(string(w.Type))),
		Stage:   w.Stage,
		Percent: int(math.Round(math.Max(-maxWirePercent, math.Min(maxWirePercent, w.Percent)))),
		Message: w.Message,
	}

	if e.Type == EventConnect || e.Type == EventDisconnect {
		stage, err := ParseStage(string(e.Stage))
		if err != nil {
			return Event{}, err
		}
		e.Stage = stage
	}

	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}
