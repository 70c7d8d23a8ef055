package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellrules/internal/alarm"
	"github.com/roach88/cellrules/internal/engine"
	"github.com/roach88/cellrules/internal/notify"
	ctestutil "github.com/roach88/cellrules/internal/testutil"
)

var (
	_ engine.Recorder = (*Metrics)(nil)
	_ alarm.Recorder  = (*Metrics)(nil)
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.PassCompleted("cell", 2*time.Millisecond)
	m.PassCompleted("cell", time.Millisecond)
	m.PassCompleted("timer", time.Millisecond)
	m.RuleFired("heaterOn")
	m.RuleFailed("broken")
	m.TimerFired(true)
	m.TimerFired(false)
	m.AlarmActivated("temp")
	m.AlarmNotified("temp", true)
	m.AlarmNotified("temp", false)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.passes.WithLabelValues("cell")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.passes.WithLabelValues("timer")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ruleFirings.WithLabelValues("heaterOn")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ruleFailures.WithLabelValues("broken")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.timerFirings.WithLabelValues("named")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.timerFirings.WithLabelValues("callback")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.alarmsActive.WithLabelValues("temp")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.notifications.WithLabelValues("temp", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.notifications.WithLabelValues("temp", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.passLatency))
}

func TestMetrics_WiredIntoEngineAndAlarms(t *testing.T) {
	m := New()
	sched := ctestutil.NewManualScheduler()
	e := engine.New(engine.WithRecorder(m), engine.WithScheduler(sched))
	sched.SetDrain(func() { e.ProcessPending(context.Background()) })

	max := 20.0
	_, err := alarm.Load(e, alarm.Group{
		DeviceName: "alarms",
		Recipients: []notify.Notifier{ctestutil.NewRecordingNotifier("r")},
		Alarms:     []alarm.Spec{{Name: "temp", Cell: "dev/temp", MaxValue: &max}},
	}, alarm.WithRecorder(m))
	require.NoError(t, err)

	require.NoError(t, e.Set("dev/temp", 25))
	e.ProcessPending(context.Background())

	assert.Equal(t, float64(1), testutil.ToFloat64(m.alarmsActive.WithLabelValues("temp")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.notifications.WithLabelValues("temp", "success")))
	assert.Greater(t, testutil.ToFloat64(m.passes.WithLabelValues("cell")), float64(0))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RuleFired("r1")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `cellrules_rule_firings_total{rule="r1"} 1`)
}
