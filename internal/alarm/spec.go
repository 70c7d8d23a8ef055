// Package alarm turns threshold policies over cells into debounced,
// repeating notifications with an indicator cell per alarm.
package alarm

import (
	"math"
	"time"

	"github.com/roach88/cellrules/internal/cell"
	"github.com/roach88/cellrules/internal/engine"
	"github.com/roach88/cellrules/internal/notify"
)

// LogCell is the text cell of the alarm device that holds the last
// notification.
const LogCell = "log"

// Spec defines one alarm over a watched cell. Exactly one policy must be
// given: ExpectedValue, or at least one of MinValue and MaxValue.
type Spec struct {
	// Name, if set, names the indicator cell "alarm_<Name>".
	Name string
	// Cell is the watched "device/cell" path.
	Cell string

	ExpectedValue cell.Value
	MinValue      *float64
	MaxValue      *float64

	AlarmMessage   string
	NoAlarmMessage string

	// Interval repeats the alarm message while active. Zero disables
	// repeats.
	Interval time.Duration
	// MaxCount caps the number of alarm messages per activation, the
	// first one included. Nil means no cap; zero sends none.
	MaxCount *int

	AlarmDelay   time.Duration
	NoAlarmDelay time.Duration
}

// Group is a set of alarms sharing a device and recipients.
type Group struct {
	DeviceName  string
	DeviceTitle string
	Recipients  []notify.Notifier
	Alarms      []Spec
}

func (s Spec) hasExpected() bool {
	return s.ExpectedValue != nil
}

func (s Spec) bounds() (min, max float64) {
	min, max = math.Inf(-1), math.Inf(1)
	if s.MinValue != nil {
		min = *s.MinValue
	}
	if s.MaxValue != nil {
		max = *s.MaxValue
	}
	return min, max
}

func (s Spec) alarmMessage() string {
	switch {
	case s.AlarmMessage != "":
		return s.AlarmMessage
	case s.hasExpected():
		return s.Cell + " has unexpected value = {}"
	default:
		return s.Cell + " is out of bounds, value = {}"
	}
}

func (s Spec) noAlarmMessage() string {
	if s.NoAlarmMessage != "" {
		return s.NoAlarmMessage
	}
	return s.Cell + " is back to normal, value = {}"
}

// Validate checks the spec on its own.
func (s Spec) Validate() error {
	subject := "alarm " + s.Cell
	if s.Name != "" {
		subject = "alarm " + s.Name
	}

	if s.Cell == "" {
		return engine.NewInvalidDefinition(subject, "no cell specified")
	}
	if _, err := cell.ParsePath(s.Cell); err != nil {
		return engine.NewInvalidDefinition(subject, "%v", err)
	}
	if s.Name != "" && !cell.ValidName(s.Name) {
		return engine.NewInvalidDefinition(subject, "invalid alarm name")
	}

	hasRange := s.MinValue != nil || s.MaxValue != nil
	switch {
	case s.hasExpected() && hasRange:
		return engine.NewInvalidDefinition(subject, "cannot have both expectedValue and minValue/maxValue")
	case !s.hasExpected() && !hasRange:
		return engine.NewInvalidDefinition(subject, "must specify either expectedValue or value range")
	case s.MinValue != nil && s.MaxValue != nil && *s.MinValue > *s.MaxValue:
		return engine.NewInvalidDefinition(subject, "minValue greater than maxValue")
	case s.Interval < 0:
		return engine.NewInvalidDefinition(subject, "invalid alarm interval")
	case s.MaxCount != nil && *s.MaxCount < 0:
		return engine.NewInvalidDefinition(subject, "negative maxCount")
	case s.AlarmDelay < 0 || s.NoAlarmDelay < 0:
		return engine.NewInvalidDefinition(subject, "negative delay")
	}
	return nil
}

// Validate checks the group and every alarm in it.
func (g Group) Validate() error {
	subject := "alarms " + g.DeviceName
	if g.DeviceName == "" {
		return engine.NewInvalidDefinition(subject, "deviceName not specified for alarms")
	}
	if !cell.ValidName(g.DeviceName) {
		return engine.NewInvalidDefinition(subject, "invalid deviceName")
	}
	if len(g.Alarms) == 0 {
		return engine.NewInvalidDefinition(subject, "absent/invalid alarms spec")
	}
	names := make(map[string]bool)
	for _, s := range g.Alarms {
		if err := s.Validate(); err != nil {
			return err
		}
		if s.Name == "" {
			continue
		}
		if names[s.Name] {
			return engine.NewInvalidDefinition(subject, "duplicate alarm name %q", s.Name)
		}
		names[s.Name] = true
	}
	return nil
}
