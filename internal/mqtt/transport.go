// Package mqtt wraps github.com/eclipse/paho.mqtt.golang behind a small
// Transport interface that the rest of the bridge depends on instead of
// the paho client directly. Grounded on the teacher's internal/mqtt
// (MQTT.Connect/onConnect/onDisconnect/publish), generalized from a
// hardwired panel-status publisher into a bare pub/sub transport: all
// topic shape and payload knowledge now lives in internal/mqttsurface.
package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/qolsys/qolsys2mqtt/internal/config"
	"github.com/qolsys/qolsys2mqtt/internal/log"
)

// Handler is invoked for every message delivered on a subscribed topic.
type Handler func(topic string, payload []byte)

// Transport is the pub/sub surface internal/mqttsurface needs. It exists
// so that package can be tested against a fake without a broker.
type Transport interface {
	Publish(topic string, payload []byte, retain bool) error
	Subscribe(topic string, h Handler) error
	Run(stop <-chan struct{}) error
	Connected() bool
}

// Client is the paho-backed Transport implementation used in
// production. It reconnects automatically (paho's own backoff) and
// replays subscriptions via OnConnect, the same shape as the teacher's
// onConnect/subscribeTopics pair.
type Client struct {
	cfg    config.MQTTConfig
	log    *log.Logger
	client paho.Client

	mu            sync.Mutex
	subscriptions map[string]Handler
	onConnect     func()
}

// New builds a Client. willTopic/willPayload, if willTopic is non-empty,
// become the connection's Last Will and Testament — the instance
// availability topic going "offline" on an unclean disconnect.
func New(cfg config.MQTTConfig, logger *log.Logger, willTopic, willPayload string, onConnect func()) *Client {
	c := &Client{cfg: cfg, log: logger, subscriptions: map[string]Handler{}, onConnect: onConnect}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOnConnectHandler(c.handleConnect)
	opts.SetConnectionLostHandler(c.handleLost)
	if willTopic != "" {
		opts.SetWill(willTopic, willPayload, byte(cfg.QOS), true)
	}

	c.client = paho.NewClient(opts)
	return c
}

func (c *Client) handleConnect(paho.Client) {
	c.log.Info("mqtt connection established to %s:%d", c.cfg.Host, c.cfg.Port)

	c.mu.Lock()
	subs := make(map[string]Handler, len(c.subscriptions))
	for k, v := range c.subscriptions {
		subs[k] = v
	}
	c.mu.Unlock()

	for topic, h := range subs {
		c.doSubscribe(topic, h)
	}

	if c.onConnect != nil {
		c.onConnect()
	}
}

func (c *Client) handleLost(_ paho.Client, err error) {
	c.log.Warn("mqtt connection lost: %v", err)
}

// Run connects and blocks until stop is closed, then disconnects
// cleanly.
func (c *Client) Run(stop <-chan struct{}) error {
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}
	<-stop
	c.client.Disconnect(250)
	return nil
}

func (c *Client) Connected() bool {
	return c.client != nil && c.client.IsConnected()
}

func (c *Client) Publish(topic string, payload []byte, retain bool) error {
	const publishTimeout = 10 * time.Second
	token := c.client.Publish(topic, byte(c.cfg.QOS), retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timed out after %s", topic, publishTimeout)
	}
	return token.Error()
}

func (c *Client) Subscribe(topic string, h Handler) error {
	c.mu.Lock()
	c.subscriptions[topic] = h
	c.mu.Unlock()

	if c.Connected() {
		return c.doSubscribe(topic, h)
	}
	return nil
}

func (c *Client) doSubscribe(topic string, h Handler) error {
	token := c.client.Subscribe(topic, byte(c.cfg.QOS), func(_ paho.Client, msg paho.Message) {
		h(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		c.log.Error("failed to subscribe to %s: %v", topic, token.Error())
		return token.Error()
	}
	return nil
}
