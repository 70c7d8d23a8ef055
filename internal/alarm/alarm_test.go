package alarm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/cellrules/internal/cell"
	"github.com/roach88/cellrules/internal/engine"
	"github.com/roach88/cellrules/internal/notify"
	"github.com/roach88/cellrules/internal/testutil"
)

type fixture struct {
	engine *engine.Engine
	sched  *testutil.ManualScheduler
	mail   *testutil.RecordingNotifier
	logs   *observer.ObservedLogs
	rec    *countingRecorder
}

type countingRecorder struct {
	activated int
	ok, fail  int
}

func (r *countingRecorder) AlarmActivated(string) { r.activated++ }
func (r *countingRecorder) AlarmNotified(_ string, ok bool) {
	if ok {
		r.ok++
	} else {
		r.fail++
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	sched := testutil.NewManualScheduler()
	e := engine.New(
		engine.WithLogger(zap.New(core)),
		engine.WithScheduler(sched),
	)
	sched.SetDrain(func() { e.ProcessPending(context.Background()) })
	return &fixture{
		engine: e,
		sched:  sched,
		mail:   testutil.NewRecordingNotifier("email:ops"),
		logs:   logs,
		rec:    &countingRecorder{},
	}
}

func (f *fixture) load(t *testing.T, specs ...Spec) []*Alarm {
	t.Helper()
	alarms, err := Load(f.engine, Group{
		DeviceName:  "alarms",
		DeviceTitle: "Alarms",
		Recipients:  []notify.Notifier{f.mail},
		Alarms:      specs,
	}, WithRecorder(f.rec))
	require.NoError(t, err)
	f.engine.RunRules()
	f.process()
	return alarms
}

func (f *fixture) process() {
	f.engine.ProcessPending(context.Background())
}

func (f *fixture) set(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, f.engine.Set(path, v))
	f.process()
}

func (f *fixture) get(t *testing.T, path string) any {
	t.Helper()
	v, err := f.engine.Get(path)
	require.NoError(t, err)
	return v
}

func ptr(v float64) *float64 { return &v }

func count(n int) *int { return &n }

func TestAlarm_DebouncedActivationCancelled(t *testing.T) {
	f := newFixture(t)
	f.load(t, Spec{
		Name:       "temp",
		Cell:       "dev/temp",
		MinValue:   ptr(10),
		MaxValue:   ptr(20),
		AlarmDelay: time.Second,
	})

	f.set(t, "dev/temp", 25)
	f.sched.Advance(500 * time.Millisecond)
	f.set(t, "dev/temp", 15)
	f.sched.Advance(5 * time.Second)

	assert.Empty(t, f.mail.Texts(), "deactivation cancels the pending activation")
	assert.Equal(t, false, f.get(t, "alarms/alarm_temp"))
}

func TestAlarm_DelayedActivation(t *testing.T) {
	f := newFixture(t)
	f.load(t, Spec{Name: "temp", Cell: "dev/temp", MaxValue: ptr(20), AlarmDelay: time.Second})

	f.set(t, "dev/temp", 25)
	f.sched.Advance(999 * time.Millisecond)
	assert.Empty(t, f.mail.Texts())

	f.set(t, "dev/temp", 26)
	f.sched.Advance(time.Millisecond)
	assert.Equal(t, []string{"dev/temp is out of bounds, value = 26"}, f.mail.Texts(),
		"message carries the value at activation time")
	assert.Equal(t, true, f.get(t, "alarms/alarm_temp"))
}

func TestAlarm_StartupWithinPolicyOnlyClearsIndicator(t *testing.T) {
	f := newFixture(t)
	f.set(t, "dev/temp", 15)
	f.set(t, "alarms/alarm_temp", true)

	f.load(t, Spec{Name: "temp", Cell: "dev/temp", MinValue: ptr(10), MaxValue: ptr(20)})

	assert.Empty(t, f.mail.Texts())
	assert.Equal(t, false, f.get(t, "alarms/alarm_temp"))
}

func TestAlarm_ActivateAndDeactivate(t *testing.T) {
	f := newFixture(t)
	alarms := f.load(t, Spec{Name: "temp", Cell: "dev/temp", MinValue: ptr(10), MaxValue: ptr(20)})
	a := alarms[0]

	f.set(t, "dev/temp", 25)
	assert.True(t, a.Active())
	assert.Equal(t, true, f.get(t, "alarms/alarm_temp"))
	assert.Equal(t, "dev/temp is out of bounds, value = 25", f.get(t, "alarms/log"))

	f.set(t, "dev/temp", 30)
	assert.Len(t, f.mail.Texts(), 1, "violation while active does not notify again")

	f.set(t, "dev/temp", 15)
	assert.False(t, a.Active())
	assert.Equal(t, false, f.get(t, "alarms/alarm_temp"))
	assert.Equal(t, []string{
		"dev/temp is out of bounds, value = 25",
		"dev/temp is back to normal, value = 15",
	}, f.mail.Texts())

	f.set(t, "dev/temp", 5)
	assert.Len(t, f.mail.Texts(), 3, "a new violation activates again")
	assert.Equal(t, 2, f.rec.activated)
	assert.Equal(t, 3, f.rec.ok)
}

func TestAlarm_RepeatsUpToMaxCount(t *testing.T) {
	f := newFixture(t)
	alarms := f.load(t, Spec{
		Name:         "temp",
		Cell:         "dev/temp",
		MaxValue:     ptr(20),
		Interval:     10 * time.Second,
		MaxCount:     count(3),
		AlarmMessage: "too hot: {}",
	})

	f.set(t, "dev/temp", 25)
	f.sched.Advance(10 * time.Second)
	f.set(t, "dev/temp", 27)
	f.sched.Advance(10 * time.Second)
	f.sched.Advance(time.Minute)

	assert.Equal(t, []string{"too hot: 25", "too hot: 25", "too hot: 27"}, f.mail.Texts())
	assert.True(t, alarms[0].Active(), "reaching the cap does not deactivate")
	assert.Equal(t, 0, f.sched.Pending())

	f.set(t, "dev/temp", 20)
	assert.Equal(t, "dev/temp is back to normal, value = 20", f.mail.Texts()[3])
}

func TestAlarm_ZeroMaxCountNeverNotifies(t *testing.T) {
	f := newFixture(t)
	alarms := f.load(t, Spec{
		Name:     "temp",
		Cell:     "dev/temp",
		MaxValue: ptr(20),
		Interval: 10 * time.Second,
		MaxCount: count(0),
	})

	f.set(t, "dev/temp", 25)
	f.sched.Advance(time.Minute)

	assert.True(t, alarms[0].Active())
	assert.Equal(t, true, f.get(t, "alarms/alarm_temp"))
	assert.Empty(t, f.mail.Texts())
	assert.Equal(t, 0, f.sched.Pending(), "no repeat timer is armed")

	f.set(t, "dev/temp", 15)
	assert.Equal(t, []string{"dev/temp is back to normal, value = 15"}, f.mail.Texts())
}

func TestAlarm_RepeatsStopOnDeactivation(t *testing.T) {
	f := newFixture(t)
	f.load(t, Spec{Name: "temp", Cell: "dev/temp", MaxValue: ptr(20), Interval: time.Second})

	f.set(t, "dev/temp", 25)
	f.sched.Advance(3 * time.Second)
	require.Len(t, f.mail.Texts(), 4)

	f.set(t, "dev/temp", 10)
	f.sched.Advance(10 * time.Second)
	assert.Len(t, f.mail.Texts(), 5)
}

func TestAlarm_DelayedDeactivationCancelledByViolation(t *testing.T) {
	f := newFixture(t)
	alarms := f.load(t, Spec{Name: "temp", Cell: "dev/temp", MaxValue: ptr(20), NoAlarmDelay: time.Second})

	f.set(t, "dev/temp", 25)
	f.set(t, "dev/temp", 15)
	f.sched.Advance(500 * time.Millisecond)
	f.set(t, "dev/temp", 25)
	f.sched.Advance(5 * time.Second)

	assert.Equal(t, []string{"dev/temp is out of bounds, value = 25"}, f.mail.Texts())
	assert.True(t, alarms[0].Active())

	f.set(t, "dev/temp", 15)
	f.sched.Advance(time.Second)
	assert.Len(t, f.mail.Texts(), 2)
	assert.False(t, alarms[0].Active())
}

func TestAlarm_ExpectedValue(t *testing.T) {
	f := newFixture(t)
	alarms := f.load(t, Spec{Cell: "dev/pump", ExpectedValue: true})

	a := alarms[0]
	assert.Equal(t, "__alarm1__dev/pump__activate", a.ActivateRule())
	assert.Equal(t, "__alarm1__dev_pump__cell", a.Indicator().Cell)

	f.set(t, "dev/pump", true)
	f.set(t, "dev/pump", false)
	f.set(t, "dev/pump", true)

	assert.Equal(t, []string{
		"dev/pump has unexpected value = false",
		"dev/pump is back to normal, value = true",
	}, f.mail.Texts())
}

func TestAlarm_ExpectedValueOnSwitchCell(t *testing.T) {
	f := newFixture(t)
	f.engine.Cells().SetMeta("dev", "pump", cell.MetaType, cell.TypeSwitch)
	f.set(t, "dev/pump", 1)
	f.load(t, Spec{Name: "pump", Cell: "dev/pump", ExpectedValue: true})

	f.set(t, "dev/pump", 0)
	f.set(t, "dev/pump", 1)

	assert.Equal(t, []string{
		"dev/pump has unexpected value = false",
		"dev/pump is back to normal, value = true",
	}, f.mail.Texts())
}

func TestAlarm_RecipientFailureLogged(t *testing.T) {
	f := newFixture(t)
	f.mail.FailWith(errors.New("smtp down"))
	f.load(t, Spec{Name: "temp", Cell: "dev/temp", MaxValue: ptr(20)})

	f.set(t, "dev/temp", 25)

	assert.Len(t, f.mail.Sent(), 1)
	assert.Equal(t, 1, f.rec.fail)
	assert.Equal(t, 1, f.logs.FilterMessage("alarm notification failed").Len())
	assert.Equal(t, true, f.get(t, "alarms/alarm_temp"), "alarm state does not depend on delivery")
}

func TestAlarm_NonNumericValueIsRuleFailure(t *testing.T) {
	f := newFixture(t)
	f.load(t, Spec{Name: "temp", Cell: "dev/temp", MaxValue: ptr(20)})

	f.set(t, "dev/temp", "n/a")

	assert.Empty(t, f.mail.Texts())
	assert.Equal(t, 2, f.logs.FilterMessage("rule failed").Len())
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name  string
		group Group
		want  string
	}{
		{name: "no device", group: Group{Alarms: []Spec{{Cell: "d/c", MaxValue: ptr(1)}}}, want: "deviceName not specified"},
		{name: "no alarms", group: Group{DeviceName: "alarms"}, want: "absent/invalid alarms spec"},
		{name: "no cell", group: Group{DeviceName: "alarms", Alarms: []Spec{{MaxValue: ptr(1)}}}, want: "no cell"},
		{name: "bad cell", group: Group{DeviceName: "alarms", Alarms: []Spec{{Cell: "nocell", MaxValue: ptr(1)}}}, want: "expected device/cell"},
		{name: "both policies", group: Group{DeviceName: "alarms", Alarms: []Spec{{Cell: "d/c", ExpectedValue: 1, MaxValue: ptr(1)}}}, want: "cannot have both"},
		{name: "no policy", group: Group{DeviceName: "alarms", Alarms: []Spec{{Cell: "d/c"}}}, want: "must specify either"},
		{name: "negative interval", group: Group{DeviceName: "alarms", Alarms: []Spec{{Cell: "d/c", MaxValue: ptr(1), Interval: -time.Second}}}, want: "invalid alarm interval"},
		{name: "negative maxCount", group: Group{DeviceName: "alarms", Alarms: []Spec{{Cell: "d/c", MaxValue: ptr(1), MaxCount: count(-1)}}}, want: "negative maxCount"},
		{name: "inverted range", group: Group{DeviceName: "alarms", Alarms: []Spec{{Cell: "d/c", MinValue: ptr(5), MaxValue: ptr(1)}}}, want: "minValue greater"},
		{name: "duplicate names", group: Group{DeviceName: "alarms", Alarms: []Spec{
			{Name: "x", Cell: "d/c", MaxValue: ptr(1)},
			{Name: "x", Cell: "d/e", MaxValue: ptr(1)},
		}}, want: "duplicate alarm name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := Load(f.engine, tt.group)
			require.Error(t, err)
			assert.True(t, engine.IsInvalidDefinition(err))
			assert.Contains(t, err.Error(), tt.want)
			assert.Empty(t, f.engine.Rules())
		})
	}
}

func TestLoader_NumbersAcrossGroups(t *testing.T) {
	f := newFixture(t)
	ld := NewLoader(f.engine)

	_, err := ld.Load(Group{DeviceName: "a", Alarms: []Spec{{Cell: "d/x", MaxValue: ptr(1)}}})
	require.NoError(t, err)
	second, err := ld.Load(Group{DeviceName: "b", Alarms: []Spec{{Cell: "d/x", MaxValue: ptr(1)}}})
	require.NoError(t, err)

	assert.Equal(t, "__alarm2__d/x__deactivate", second[0].DeactivateRule())
	assert.Len(t, ld.Alarms(), 2)
	assert.Len(t, f.engine.Rules(), 4)
}
