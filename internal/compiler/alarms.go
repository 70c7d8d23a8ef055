package compiler

import (
	"fmt"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/cellrules/internal/alarm"
	"github.com/roach88/cellrules/internal/notify"
)

// AlarmGroup is a compiled alarms block. Recipients stay as specs until
// the host builds notifiers for them.
type AlarmGroup struct {
	Name        string
	DeviceName  string
	DeviceTitle string
	Recipients  []notify.RecipientSpec
	Alarms      []alarm.Spec
	Pos         token.Pos
}

// Group returns the alarm group with the given notifiers, which must
// correspond to g.Recipients.
func (g AlarmGroup) Group(recipients []notify.Notifier) alarm.Group {
	return alarm.Group{
		DeviceName:  g.DeviceName,
		DeviceTitle: g.DeviceTitle,
		Recipients:  recipients,
		Alarms:      g.Alarms,
	}
}

// Build creates notifiers for every recipient and returns the group.
// wrap, if non-nil, is applied to each notifier.
func (g AlarmGroup) Build(opts notify.Options, wrap func(notify.Notifier) notify.Notifier) (alarm.Group, error) {
	recipients := make([]notify.Notifier, 0, len(g.Recipients))
	for _, spec := range g.Recipients {
		n, err := notify.Build(spec, opts)
		if err != nil {
			return alarm.Group{}, fmt.Errorf("alarms %s: %w", g.Name, err)
		}
		if wrap != nil {
			n = wrap(n)
		}
		recipients = append(recipients, n)
	}
	return g.Group(recipients), nil
}

// CompileAlarms parses an alarms block:
//
//	alarms: boiler: {
//		deviceName: "boilerAlarms"
//		recipients: [{type: "email", to: "ops@example.com"}]
//		alarms: [{cell: "boiler/temp", maxValue: 90, interval: 60}]
//	}
//
// interval is in seconds, alarmDelayMs and noAlarmDelayMs in
// milliseconds.
func CompileAlarms(v cue.Value) (AlarmGroup, error) {
	if err := v.Err(); err != nil {
		return AlarmGroup{}, formatCUEError(err, "alarms")
	}

	g := AlarmGroup{Name: label(v), Pos: v.Pos()}
	path := "alarms." + g.Name

	var err error
	if g.DeviceName, err = optString(v, "deviceName", path, ErrCodeAlarms); err != nil {
		return AlarmGroup{}, err
	}
	if g.DeviceName == "" {
		return AlarmGroup{}, errorf(ErrCodeAlarms, path+".deviceName", v.Pos(), "deviceName not specified for alarms")
	}
	if g.DeviceTitle, err = optString(v, "deviceTitle", path, ErrCodeAlarms); err != nil {
		return AlarmGroup{}, err
	}

	if g.Recipients, err = compileRecipients(v, path); err != nil {
		return AlarmGroup{}, err
	}

	list := field(v, "alarms")
	iter, err := list.List()
	if !list.Exists() || err != nil {
		return AlarmGroup{}, errorf(ErrCodeAlarms, path+".alarms", v.Pos(), "absent/invalid alarms spec")
	}
	for i := 0; iter.Next(); i++ {
		spec, err := compileAlarm(iter.Value(), fmt.Sprintf("%s.alarms[%d]", path, i))
		if err != nil {
			return AlarmGroup{}, err
		}
		g.Alarms = append(g.Alarms, spec)
	}

	if err := g.Group(nil).Validate(); err != nil {
		return AlarmGroup{}, errorf(ErrCodeAlarms, path, v.Pos(), "%v", err)
	}
	return g, nil
}

func compileRecipients(v cue.Value, path string) ([]notify.RecipientSpec, error) {
	list := field(v, "recipients")
	iter, err := list.List()
	if !list.Exists() || err != nil {
		return nil, errorf(ErrCodeRecipient, path+".recipients", v.Pos(), "absent/invalid recipients spec specified for alarms")
	}

	var specs []notify.RecipientSpec
	for i := 0; iter.Next(); i++ {
		rv := iter.Value()
		where := fmt.Sprintf("%s.recipients[%d]", path, i)
		var spec notify.RecipientSpec
		if err := rv.Decode(&spec); err != nil {
			return nil, formatCUEError(err, where)
		}
		if err := spec.Validate(); err != nil {
			return nil, errorf(ErrCodeRecipient, where, rv.Pos(), "%v", err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func compileAlarm(v cue.Value, path string) (alarm.Spec, error) {
	var (
		spec alarm.Spec
		err  error
	)
	if spec.Name, err = optString(v, "name", path, ErrCodeAlarm); err != nil {
		return spec, err
	}
	if spec.Cell, err = optString(v, "cell", path, ErrCodeAlarm); err != nil {
		return spec, err
	}
	if ev := field(v, "expectedValue"); ev.Exists() {
		if spec.ExpectedValue, err = scalar(ev, path+".expectedValue", ErrCodeAlarm); err != nil {
			return spec, err
		}
	}
	if spec.MinValue, err = optNumber(v, "minValue", path, ErrCodeAlarm); err != nil {
		return spec, err
	}
	if spec.MaxValue, err = optNumber(v, "maxValue", path, ErrCodeAlarm); err != nil {
		return spec, err
	}
	if spec.AlarmMessage, err = optString(v, "alarmMessage", path, ErrCodeAlarm); err != nil {
		return spec, err
	}
	if spec.NoAlarmMessage, err = optString(v, "noAlarmMessage", path, ErrCodeAlarm); err != nil {
		return spec, err
	}
	if field(v, "maxCount").Exists() {
		n, err := optInt(v, "maxCount", path, ErrCodeAlarm)
		if err != nil {
			return spec, err
		}
		spec.MaxCount = &n
	}

	interval, err := optNumber(v, "interval", path, ErrCodeAlarm)
	if err != nil {
		return spec, err
	}
	if interval != nil {
		if !(*interval > 0) {
			return spec, errorf(ErrCodeAlarm, path+".interval", field(v, "interval").Pos(), "invalid alarm interval")
		}
		spec.Interval = time.Duration(*interval * float64(time.Second))
	}
	if spec.AlarmDelay, err = optMillis(v, "alarmDelayMs", path); err != nil {
		return spec, err
	}
	if spec.NoAlarmDelay, err = optMillis(v, "noAlarmDelayMs", path); err != nil {
		return spec, err
	}

	if err := spec.Validate(); err != nil {
		return spec, errorf(ErrCodeAlarm, path, v.Pos(), "%v", err)
	}
	return spec, nil
}

func optMillis(v cue.Value, name, path string) (time.Duration, error) {
	n, err := optNumber(v, name, path, ErrCodeAlarm)
	if err != nil || n == nil {
		return 0, err
	}
	return time.Duration(*n * float64(time.Millisecond)), nil
}
