package mqttbridge

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellrules/internal/cell"
	"github.com/roach88/cellrules/internal/engine"
	"github.com/roach88/cellrules/internal/testutil"
)

type published struct {
	Topic    string
	Payload  string
	Retained bool
}

type fakeClient struct {
	mu        sync.Mutex
	handlers  map[string]Handler
	published []published
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]Handler)}
}

func (c *fakeClient) Subscribe(topic string, _ byte, h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = h
	return nil
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{Topic: topic, Payload: string(payload), Retained: retained})
	return nil
}

// deliver routes a message to every matching subscription.
func (c *fakeClient) deliver(topic, payload string) {
	c.mu.Lock()
	var hs []Handler
	for filter, h := range c.handlers {
		if matches(filter, topic) {
			hs = append(hs, h)
		}
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(topic, []byte(payload))
	}
}

func (c *fakeClient) take() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.published
	c.published = nil
	return out
}

func matches(filter, topic string) bool {
	fs, ts := strings.Split(filter, "/"), strings.Split(topic, "/")
	if len(fs) != len(ts) {
		return false
	}
	for i := range fs {
		if fs[i] != "+" && fs[i] != ts[i] {
			return false
		}
	}
	return true
}

func newBridge(t *testing.T) (*engine.Engine, *fakeClient) {
	t.Helper()
	e := engine.New(engine.WithNameGenerator(testutil.NewSequentialNames("")))
	client := newFakeClient()
	b := New(e, client)
	require.NoError(t, b.Start())
	return e, client
}

func TestParseTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  message
		ok    bool
	}{
		{topic: "/devices/dev/controls/temp", want: message{ref: cell.NewRef("dev", "temp")}, ok: true},
		{topic: "/devices/dev/controls/temp/on", want: message{ref: cell.NewRef("dev", "temp"), write: true}, ok: true},
		{topic: "/devices/dev/controls/temp/meta/type", want: message{ref: cell.NewRef("dev", "temp"), meta: "type"}, ok: true},
		{topic: "/devices/dev/meta/name"},
		{topic: "/devices/dev/controls/temp/meta"},
		{topic: "/other/dev/controls/temp"},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := parseTopic(tt.topic)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBridge_ExternalValuesReachRules(t *testing.T) {
	e, client := newBridge(t)
	ctx := context.Background()

	var seen []cell.Value
	_, err := e.Define("watch", engine.Spec{
		WhenChanged: []engine.Watch{engine.WatchCell("sensor/temp")},
		Then: func(c *engine.Context, f engine.Firing) error {
			seen = append(seen, f.Value)
			return nil
		},
	})
	require.NoError(t, err)

	client.deliver("/devices/sensor/controls/temp/meta/type", "temperature")
	client.deliver("/devices/sensor/controls/temp", "21.5")
	e.ProcessPending(ctx)

	assert.Equal(t, []cell.Value{21.5}, seen)
	assert.Equal(t, "temperature", e.Cells().Cell("sensor", "temp").Type())
	assert.Empty(t, client.take(), "received values are not echoed")
}

func TestBridge_DecodesByType(t *testing.T) {
	e, client := newBridge(t)
	ctx := context.Background()

	client.deliver("/devices/relay/controls/k1/meta/type", "switch")
	client.deliver("/devices/relay/controls/k1", "1")
	client.deliver("/devices/relay/controls/label", "hello")
	client.deliver("/devices/relay/controls/count", "3")
	e.ProcessPending(ctx)

	store := e.Cells()
	v, err := store.Get("relay", "k1")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = store.Get("relay", "label")
	require.NoError(t, err)
	assert.Equal(t, "hello", v, "untyped non-numeric payload stays text")

	v, err = store.Get("relay", "count")
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
}

func TestBridge_BadPayloadDropped(t *testing.T) {
	e, client := newBridge(t)

	client.deliver("/devices/relay/controls/k1/meta/type", "switch")
	client.deliver("/devices/relay/controls/k1", "maybe")
	e.ProcessPending(context.Background())

	assert.False(t, e.Cells().Complete("relay", "k1"))
}

func TestBridge_PublishesLocalDevice(t *testing.T) {
	e, client := newBridge(t)

	require.NoError(t, e.DefineDevice(engine.DeviceDef{
		Name:  "heater",
		Title: "Heater",
		Controls: []engine.ControlDef{
			{Name: "enabled", Type: cell.TypeSwitch, Default: true},
		},
	}))

	got := client.take()
	require.NotEmpty(t, got)
	assert.Equal(t, published{Topic: "/devices/heater/meta/name", Payload: "Heater", Retained: true}, got[0])
	assert.Contains(t, got, published{Topic: "/devices/heater/controls/enabled/meta/type", Payload: "switch", Retained: true})
	assert.Contains(t, got, published{Topic: "/devices/heater/controls/enabled", Payload: "1", Retained: true})
	for _, p := range got {
		assert.True(t, p.Retained, p.Topic)
	}
}

func TestBridge_WritesToLocalCells(t *testing.T) {
	e, client := newBridge(t)
	ctx := context.Background()

	require.NoError(t, e.DefineDevice(engine.DeviceDef{
		Name: "heater",
		Controls: []engine.ControlDef{
			{Name: "enabled", Type: cell.TypeSwitch},
			{Name: "temp", Type: "temperature", Readonly: true},
		},
	}))
	client.take()

	client.deliver("/devices/heater/controls/enabled/on", "1")
	client.deliver("/devices/heater/controls/temp/on", "99")
	client.deliver("/devices/heater/controls/enabled", "0")
	e.ProcessPending(ctx)

	v, err := e.Cells().Get("heater", "enabled")
	require.NoError(t, err)
	assert.Equal(t, true, v, "own value topic is ignored")

	v, err = e.Cells().Get("heater", "temp")
	require.NoError(t, err)
	assert.Equal(t, 0.0, v, "readonly cell ignores writes")
}

func TestBridge_RuleWritesToExternalCells(t *testing.T) {
	e, client := newBridge(t)
	ctx := context.Background()

	client.deliver("/devices/relay/controls/k1/meta/type", "switch")
	client.deliver("/devices/relay/controls/k1", "0")
	client.deliver("/devices/sensor/controls/temp", "30")
	e.ProcessPending(ctx)

	_, err := e.Define("cool", engine.Spec{
		When: func(c *engine.Context) (bool, error) {
			v, err := c.Get("sensor/temp")
			if err != nil {
				return false, err
			}
			f, _ := cell.AsFloat(v)
			return f > 25, nil
		},
		Then: func(c *engine.Context, _ engine.Firing) error {
			return c.Set("relay/k1", true)
		},
	})
	require.NoError(t, err)
	e.RunRules()
	e.ProcessPending(ctx)

	assert.Equal(t, []published{{Topic: "/devices/relay/controls/k1/on", Payload: "1"}}, client.take())
}
