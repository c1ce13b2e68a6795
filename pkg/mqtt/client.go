// Package mqtt publishes engine events to an MQTT broker for external consumers.
package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/netwarden/netwarden/pkg/logx"
)

// Config holds MQTT configuration
type Config struct {
	Broker      string `json:"broker" yaml:"broker"`
	Port        int    `json:"port" yaml:"port"`
	ClientID    string `json:"client_id" yaml:"client_id"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`
	QoS         int    `json:"qos" yaml:"qos"`
	Retain      bool   `json:"retain" yaml:"retain"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
}

// DefaultConfig returns default MQTT configuration
func DefaultConfig() *Config {
	return &Config{
		Broker:      "localhost",
		Port:        1883,
		ClientID:    "netwardend",
		TopicPrefix: "netwarden",
		QoS:         1,
		Retain:      false,
		Enabled:     false,
	}
}

// Client publishes engine events. All publishers are no-ops while disabled or
// disconnected so the engine never blocks on the broker.
type Client struct {
	mu sync.Mutex

	client      MQTT.Client
	logger      *logx.Logger
	config      *Config
	connected   bool
	lastPublish time.Time
}

// NewClient creates an MQTT publisher
func NewClient(config *Config, logger *logx.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		logger: logger,
		config: config,
	}
}

// Connect establishes the broker connection when enabled
func (c *Client) Connect() error {
	if !c.config.Enabled {
		c.logger.Debug("MQTT client disabled")
		return nil
	}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port))
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = MQTT.NewClient(opts)

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	c.logger.Info("MQTT client connected",
		"broker", c.config.Broker,
		"port", c.config.Port)
	return nil
}

// Disconnect closes the broker connection
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.connected {
		c.client.Disconnect(250)
		c.connected = false
		c.logger.Info("MQTT client disconnected")
	}
}

func (c *Client) onConnect(client MQTT.Client) {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.logger.Info("MQTT connection established")
}

func (c *Client) onConnectionLost(client MQTT.Client, err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.logger.Error("MQTT connection lost", "error", err)
}

// PublishPattern publishes a detected or merged connection pattern
func (c *Client) PublishPattern(pattern interface{}) error {
	return c.publishJSON(fmt.Sprintf("%s/patterns", c.config.TopicPrefix), pattern)
}

// PublishPrediction publishes a disconnect prediction
func (c *Client) PublishPrediction(prediction interface{}) error {
	return c.publishJSON(fmt.Sprintf("%s/predictions", c.config.TopicPrefix), prediction)
}

// PublishNotification publishes a delivered notification
func (c *Client) PublishNotification(notification interface{}) error {
	return c.publishJSON(fmt.Sprintf("%s/notifications", c.config.TopicPrefix), notification)
}

// PublishModelUpdate publishes the model version and accuracy after a retrain
func (c *Client) PublishModelUpdate(version int, accuracy float64) error {
	return c.publishJSON(fmt.Sprintf("%s/model", c.config.TopicPrefix), map[string]interface{}{
		"version":  version,
		"accuracy": accuracy,
	})
}

// PublishStatus publishes the aggregated engine status
func (c *Client) PublishStatus(status map[string]interface{}) error {
	return c.publishJSON(fmt.Sprintf("%s/status", c.config.TopicPrefix), status)
}

func (c *Client) publishJSON(topic string, payload interface{}) error {
	if !c.IsConnected() {
		return nil
	}

	data, err := json.Marshal(map[string]interface{}{
		"timestamp": time.Now(),
		"payload":   payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	token := c.client.Publish(topic, byte(c.config.QoS), c.config.Retain, data)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	c.mu.Lock()
	c.lastPublish = time.Now()
	c.mu.Unlock()

	c.logger.Trace("MQTT message published", "topic", topic, "size", len(data))
	return nil
}

// IsConnected reports whether the client holds a live broker connection
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.Enabled && c.connected && c.client != nil && c.client.IsConnected()
}

// GetStatus returns publisher state for diagnostics
func (c *Client) GetStatus() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	return map[string]interface{}{
		"enabled":      c.config.Enabled,
		"connected":    c.connected,
		"broker":       c.config.Broker,
		"last_publish": c.lastPublish,
	}
}
