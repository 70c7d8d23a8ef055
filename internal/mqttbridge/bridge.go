// Package mqttbridge connects the engine's cells to an MQTT broker using
// the /devices/<device>/controls/<cell> topic layout.
package mqttbridge

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/cellrules/internal/cell"
	"github.com/roach88/cellrules/internal/engine"
)

// Subscriptions made by Start.
const (
	TopicValues = "/devices/+/controls/+"
	TopicMeta   = "/devices/+/controls/+/meta/+"
	TopicWrites = "/devices/+/controls/+/on"
)

// Bridge mirrors cells between the engine and the broker.
//
// Values and metadata of external devices are fed into the engine;
// values and metadata of local devices are published retained, and
// writes to local cells arrive on their /on topic. Rule writes to
// external cells are published to the external cell's /on topic.
type Bridge struct {
	engine *engine.Engine
	client Client
	log    *zap.Logger
	qos    byte

	// receiving is set on the loop goroutine while a broker message is
	// being applied, so the resulting change is not echoed back.
	receiving bool
	announced map[string]bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(log *zap.Logger) Option {
	return func(b *Bridge) { b.log = log }
}

// WithQoS sets the QoS used for subscriptions and publishes.
func WithQoS(qos byte) Option {
	return func(b *Bridge) { b.qos = qos }
}

// New creates a bridge and registers its change observer. It must be
// called before the engine loop starts.
func New(e *engine.Engine, client Client, opts ...Option) *Bridge {
	b := &Bridge{
		engine:    e,
		client:    client,
		log:       zap.NewNop(),
		qos:       1,
		announced: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	e.Observe(b.onChange)
	return b
}

// Start subscribes to the device topics.
func (b *Bridge) Start() error {
	for _, topic := range []string{TopicValues, TopicMeta, TopicWrites} {
		if err := b.client.Subscribe(topic, b.qos, b.handle); err != nil {
			return err
		}
	}
	b.log.Info("mqtt bridge started")
	return nil
}

type message struct {
	ref   cell.Ref
	meta  string
	write bool
}

// parseTopic splits a device topic. ok is false for topics outside the
// layout.
func parseTopic(topic string) (message, bool) {
	parts := strings.Split(strings.TrimPrefix(topic, "/"), "/")
	if len(parts) < 4 || parts[0] != "devices" || parts[2] != "controls" {
		return message{}, false
	}
	m := message{ref: cell.NewRef(parts[1], parts[3])}
	switch rest := parts[4:]; {
	case len(rest) == 0:
	case len(rest) == 1 && rest[0] == "on":
		m.write = true
	case len(rest) == 2 && rest[0] == "meta":
		m.meta = rest[1]
	default:
		return message{}, false
	}
	return m, true
}

// handle runs on a client goroutine and hands the message to the loop.
func (b *Bridge) handle(topic string, payload []byte) {
	m, ok := parseTopic(topic)
	if !ok {
		return
	}
	text := string(payload)
	if !b.engine.Post("mqtt", func() { b.apply(m, text) }) {
		b.log.Warn("engine stopped, dropping message", zap.String("topic", topic))
	}
}

func (b *Bridge) apply(m message, payload string) {
	local := b.engine.IsLocal(m.ref)
	switch {
	case m.write && !local, !m.write && local:
		return
	case payload == "" && m.meta == "":
		return
	}

	b.receiving = true
	defer func() { b.receiving = false }()

	store := b.engine.Cells()
	if m.meta != "" {
		var v any
		if payload != "" {
			v = decodeMeta(m.meta, payload)
		}
		store.SetMeta(m.ref.Device, m.ref.Cell, m.meta, v)
		return
	}

	c := store.Cell(m.ref.Device, m.ref.Cell)
	if m.write && c.Readonly() {
		b.log.Warn("write to readonly cell ignored", zap.Stringer("cell", m.ref))
		return
	}
	v, err := decodeValue(c.Type(), payload)
	if err != nil {
		b.log.Warn("bad payload", zap.Stringer("cell", m.ref), zap.Error(err))
		return
	}
	store.SetRef(m.ref, v)
}

// decodeValue parses a payload for a cell of type typ. A cell with no
// type yet is numeric when the payload parses as a number.
func decodeValue(typ, payload string) (cell.Value, error) {
	if typ == "" {
		if f, err := strconv.ParseFloat(payload, 64); err == nil {
			return f, nil
		}
		return payload, nil
	}
	return cell.Parse(typ, payload)
}

func decodeMeta(field, payload string) any {
	switch field {
	case cell.MetaReadonly:
		return payload == "1" || payload == "true"
	case cell.MetaOrder, cell.MetaMin, cell.MetaMax:
		if f, err := strconv.ParseFloat(payload, 64); err == nil {
			return f
		}
	}
	return payload
}

func (b *Bridge) onChange(ch cell.Change) {
	if b.receiving {
		return
	}
	ref := ch.Ref
	base := "/devices/" + ref.Device + "/controls/" + ref.Cell

	if !b.engine.IsLocal(ref) {
		if ref.IsMeta() {
			return
		}
		typ := b.engine.Cells().Cell(ref.Device, ref.Cell).Type()
		b.publish(base+"/on", false, cell.Encode(typ, ch.New))
		return
	}

	b.announce(ref.Device)
	if ref.IsMeta() {
		b.publish(base+"/meta/"+ref.Meta, true, cell.Encode("", ch.New))
		return
	}
	typ := b.engine.Cells().Cell(ref.Device, ref.Cell).Type()
	b.publish(base, true, cell.Encode(typ, ch.New))
}

// announce publishes the device title once per local device.
func (b *Bridge) announce(device string) {
	if b.announced[device] {
		return
	}
	b.announced[device] = true
	def, _ := b.engine.LocalDevice(device)
	title := def.Title
	if title == "" {
		title = device
	}
	b.publish("/devices/"+device+"/meta/name", true, title)
}

func (b *Bridge) publish(topic string, retained bool, payload string) {
	if err := b.client.Publish(topic, b.qos, retained, []byte(payload)); err != nil {
		b.log.Warn("publish failed", zap.String("topic", topic), zap.Error(err))
	}
}
