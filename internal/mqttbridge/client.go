package mqttbridge

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handler receives a message delivered on a subscription.
type Handler func(topic string, payload []byte)

// Client is the broker connection the bridge needs.
type Client interface {
	Subscribe(topic string, qos byte, handler Handler) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Options addresses the broker.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// PublishTimeout bounds how long Publish waits for the broker.
const PublishTimeout = 2 * time.Second

// PahoClient is a Client backed by the paho MQTT client.
type PahoClient struct {
	client mqtt.Client
}

// Dial connects to the broker.
func Dial(opts Options) (*PahoClient, error) {
	o := mqtt.NewClientOptions()
	o.AddBroker(opts.Broker)
	o.SetClientID(opts.ClientID)
	if opts.Username != "" {
		o.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		o.SetPassword(opts.Password)
	}
	o.SetAutoReconnect(true)
	o.SetCleanSession(true)

	client := mqtt.NewClient(o)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", opts.Broker, token.Error())
	}
	return &PahoClient{client: client}, nil
}

// Subscribe subscribes handler to topic.
func (c *PahoClient) Subscribe(topic string, qos byte, handler Handler) error {
	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}
	return nil
}

// Publish publishes payload, waiting at most PublishTimeout.
func (c *PahoClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(PublishTimeout) {
		return fmt.Errorf("publish to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects, allowing 250ms for pending work.
func (c *PahoClient) Close() {
	c.client.Disconnect(250)
}
