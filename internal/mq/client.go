package mq

import (
	"context"
	"encoding/json"
	"fmt"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"gps-no-calibration/internal/config/components"
	"gps-no-calibration/internal/interfaces"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SourceCalibrator marks messages published by this service so handlers can skip echoes.
const SourceCalibrator = "CALIBRATOR"

type Message struct {
	Data   interface{} `json:"data"`
	Source string      `json:"source"`
}

type MessageOptions struct {
	Qos      byte          `json:"qos"`
	Retained bool          `json:"retained"`
	Timeout  time.Duration `json:"timeout"`
	Source   string        `json:"source"`
}

func DefaultMessageOptions() *MessageOptions {
	return &MessageOptions{
		Qos:      1,
		Retained: false,
		Timeout:  5 * time.Second,
		Source:   SourceCalibrator,
	}
}

type subscription struct {
	qos     byte
	handler mqtt.MessageHandler
}

// Client wraps the paho client. Subscriptions are restored after a reconnect.
type Client struct {
	client    mqtt.Client
	qos       byte
	logger    zerolog.Logger
	connected atomic.Bool
	sessions  atomic.Int32

	mu            sync.Mutex
	subscriptions map[string]subscription
}

func NewClient(cfg components.MQTTConfigImpl, logger zerolog.Logger) (*Client, error) {
	opts := mqtt.NewClientOptions()

	opts.AddBroker(cfg.GetUrl())
	clientID := fmt.Sprintf("%s-%d", cfg.ClientID, rand.Intn(10000))
	opts.SetClientID(clientID)

	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetAutoReconnect(cfg.AutoReconnect)
	opts.SetMaxReconnectInterval(cfg.MaxReconnectInterval)
	opts.SetCleanSession(cfg.CleanSession)

	mqttClient := &Client{
		qos:           cfg.QoS,
		logger:        logger,
		subscriptions: make(map[string]subscription),
	}

	opts.SetOnConnectHandler(mqttClient.onConnect)
	opts.SetConnectionLostHandler(mqttClient.onConnectionLost)

	mqttClient.client = mqtt.NewClient(opts)

	logger.Debug().
		Str("broker", cfg.GetUrl()).
		Str("client_id", clientID).
		Msg("MQTT client created")

	return mqttClient, nil
}

func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()

	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("error connecting to MQTT broker: %w", token.Error())
		}
		c.connected.Store(true)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connection to MQTT broker timed out: %w", ctx.Err())
	}
}

func (c *Client) Disconnect(ctx context.Context) {
	if !c.IsConnected() {
		c.logger.Warn().Msg("MQTT client is not connected, nothing to disconnect")
		return
	}

	c.client.Disconnect(250)

	select {
	case <-ctx.Done():
		c.logger.Warn().Msg("MQTT client disconnect timed out")
	default:
		c.connected.Store(false)
		c.logger.Info().Msg("MQTT client disconnected successfully")
	}
}

func (c *Client) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	if !c.client.IsConnected() {
		return fmt.Errorf("MQTT client is not connected, cannot subscribe to topic %s", topic)
	}

	if err := c.subscribe(topic, qos, handler); err != nil {
		return err
	}

	c.mu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	c.logger.Info().Str("topic", topic).Uint8("qos", qos).Msg("Added topic subscription")
	return nil
}

func (c *Client) subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	token := c.client.Subscribe(topic, qos, handler)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("error subscribing to topic %s: %w", topic, token.Error())
	}
	return nil
}

func (c *Client) resubscribe() {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subscriptions))
	topics := make([]string, 0, len(c.subscriptions))
	for topic, sub := range c.subscriptions {
		subs[topic] = sub
		topics = append(topics, topic)
	}
	c.mu.Unlock()
	sort.Strings(topics)

	for _, topic := range topics {
		if err := c.subscribe(topic, subs[topic].qos, subs[topic].handler); err != nil {
			c.logger.Error().Err(err).Str("topic", topic).Msg("Failed to restore subscription")
		}
	}

	c.logger.Info().Int("subscriptions", len(topics)).Msg("Restored topic subscriptions after reconnect")
}

func (c *Client) PublishWithOptions(topic string, payload []byte, options *MessageOptions) error {
	if !c.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	token := c.client.Publish(topic, options.Qos, options.Retained, payload)
	if !token.WaitTimeout(options.Timeout) {
		return fmt.Errorf("publish to topic %s timed out after %s", topic, options.Timeout)
	}

	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	c.logger.Debug().
		Str("topic", topic).
		Int("payload_size", len(payload)).
		Msg("successfully published message")

	return nil
}

func (c *Client) Publish(topic string, payload []byte) error {
	msgOptions := DefaultMessageOptions()
	msgOptions.Qos = c.qos

	if err := c.PublishWithOptions(topic, payload, msgOptions); err != nil {
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, err)
	}

	return nil
}

// PublishJson wraps data in a Message envelope tagged with SourceCalibrator.
func (c *Client) PublishJson(topic string, data interface{}) error {
	msgOptions := DefaultMessageOptions()
	msgOptions.Qos = c.qos

	message := Message{
		Data:   data,
		Source: msgOptions.Source,
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return c.PublishWithOptions(topic, payload, msgOptions)
}

func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client.IsConnected()
}

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)

	if c.sessions.Add(1) == 1 {
		c.logger.Info().Msg("Successfully connected to broker")
		return
	}

	c.logger.Info().Msg("Reconnected to broker")
	go c.resubscribe()
}

func (c *Client) onConnectionLost(client mqtt.Client, err error) {
	c.connected.Store(false)
	c.logger.Warn().Err(err).Msg("lost connection to broker")
}

var _ interfaces.IMqClient = (*Client)(nil)
