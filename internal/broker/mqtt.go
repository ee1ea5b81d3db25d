package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"parcel-locker-backend/config"
)

// ErrNotConnected is returned when publishing or subscribing before Connect.
var ErrNotConnected = errors.New("mqtt client is not connected")

// Handler receives a message payload for a subscribed topic.
type Handler func(topic string, payload []byte)

// Client is an MQTT connection with an explicit lifecycle. Subscriptions are
// remembered and re-established after every reconnect.
type Client struct {
	cfg    config.MQTTConfig
	client mqtt.Client

	mu   sync.Mutex
	subs map[string]Handler
}

// NewClient prepares a client; no network activity happens until Connect.
func NewClient(cfg config.MQTTConfig) *Client {
	c := &Client{
		cfg:  cfg,
		subs: make(map[string]Handler),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8])).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("MQTT connection lost: %v", err)
		})

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect dials the broker and waits up to the configured timeout or ctx.
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()
	if err := c.wait(ctx, token, c.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("failed to connect to mqtt broker %s: %w", c.cfg.BrokerURL, err)
	}
	log.Printf("MQTT client connected to %s", c.cfg.BrokerURL)
	return nil
}

// Disconnect closes the connection, allowing in-flight work a short grace period.
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
	log.Println("MQTT client disconnected")
}

// Subscribe registers handler for topic and subscribes immediately when connected.
func (c *Client) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		// onConnect picks it up
		return nil
	}
	token := c.client.Subscribe(topic, c.cfg.QoS, wrap(handler))
	return c.wait(context.Background(), token, c.cfg.ConnectTimeout)
}

// Publish sends payload to topic and waits for the broker to accept it or ctx to expire.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, c.cfg.QoS, false, payload)
	return c.wait(ctx, token, 0)
}

func (c *Client) onConnect(client mqtt.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for topic, handler := range c.subs {
		token := client.Subscribe(topic, c.cfg.QoS, wrap(handler))
		go func(topic string, token mqtt.Token) {
			if token.WaitTimeout(c.cfg.ConnectTimeout) && token.Error() != nil {
				log.Printf("Error subscribing to %s: %v", topic, token.Error())
			}
		}(topic, token)
	}
}

func (c *Client) wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer:
		return fmt.Errorf("timed out after %s", timeout)
	}
}

func wrap(handler Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		payload := make([]byte, len(msg.Payload()))
		copy(payload, msg.Payload())
		handler(msg.Topic(), payload)
	}
}
