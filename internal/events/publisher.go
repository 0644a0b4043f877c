// Package events publishes prediction results to an MQTT broker so other
// home-automation consumers can react to the detected emotion.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/Brownie44l1/fer-light/internal/model"
)

// ClientConfig holds MQTT connection settings.
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Connect opens a broker connection with automatic reconnect.
func Connect(config ClientConfig, logger *zap.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt connection established", zap.String("broker", config.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

// Publisher sends one message per InferenceResult.
type Publisher struct {
	client mqtt.Client
	topic  string
	logger *zap.Logger
}

// NewPublisher publishes to topicPattern with {light_id} replaced.
func NewPublisher(client mqtt.Client, topicPattern, lightID string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client: client,
		topic:  formatTopic(topicPattern, lightID),
		logger: logger.Named("events"),
	}
}

// Topic returns the resolved publish topic.
func (p *Publisher) Topic() string {
	return p.topic
}

// Record publishes result with QoS 1 and waits for the broker ack or ctx.
func (p *Publisher) Record(ctx context.Context, result model.InferenceResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction event: %w", err)
	}

	token := p.client.Publish(p.topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publishing prediction event: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish prediction event: %w", err)
	}

	p.logger.Debug("published prediction event",
		zap.String("topic", p.topic),
		zap.String("request_id", result.RequestID))
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

// formatTopic replaces the {light_id} placeholder with the light identifier
func formatTopic(topicPattern, lightID string) string {
	return strings.ReplaceAll(topicPattern, "{light_id}", lightID)
}
