package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/d21d3q/meterbus/internal/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	maxReconnectInterval     = time.Minute

	maxPayloadSize = 1 << 20
)

// Publisher sends rendered meter readings to an MQTT broker as retained
// JSON documents on "<prefix>/<meter name>".
type Publisher struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	log    *logrus.Entry

	connected bool
	connMu    sync.RWMutex
}

// Connect dials the broker and waits for the first connection.
func Connect(cfg config.MQTTConfig, log *logrus.Entry) (*Publisher, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	p := &Publisher{cfg: cfg, log: log.WithField("broker", cfg.Broker)}

	opts := buildClientOptions(cfg)
	opts.SetWill(Topics{Prefix: cfg.TopicPrefix}.Status(), "offline", 1, true)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		p.setConnected(true)
		p.log.Info("mqtt connected")
		c.Publish(Topics{Prefix: cfg.TopicPrefix}.Status(), 1, true, "online")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		p.setConnected(false)
		p.log.WithError(err).Warn("mqtt connection lost")
	})

	p.client = pahomqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	p.setConnected(true)
	return p, nil
}

func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(maxReconnectInterval)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	if strings.HasPrefix(cfg.Broker, "ssl://") || strings.HasPrefix(cfg.Broker, "tls://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

func (p *Publisher) setConnected(v bool) {
	p.connMu.Lock()
	p.connected = v
	p.connMu.Unlock()
}

// IsConnected reports the last known connection state.
func (p *Publisher) IsConnected() bool {
	p.connMu.RLock()
	defer p.connMu.RUnlock()
	return p.connected && p.client.IsConnected()
}

// PublishReading publishes one rendered reading for the named meter.
func (p *Publisher) PublishReading(meterName string, fields map[string]any) error {
	topic, err := Topics{Prefix: p.cfg.TopicPrefix}.Meter(meterName)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return p.Publish(topic, payload, p.cfg.QoS, true)
}

// Publish sends payload to topic and waits for the broker to acknowledge it.
func (p *Publisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublish(topic, payload, qos); err != nil {
		return err
	}
	if !p.IsConnected() {
		return ErrNotConnected
	}
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func validatePublish(topic string, payload []byte, qos byte) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if qos > 2 {
		return fmt.Errorf("%w: qos %d", ErrPublishFailed, qos)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	return nil
}

// Close publishes the offline status and disconnects.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	if p.IsConnected() {
		token := p.client.Publish(Topics{Prefix: p.cfg.TopicPrefix}.Status(), 1, true, "offline")
		token.WaitTimeout(defaultPublishTimeout)
	}
	p.client.Disconnect(defaultDisconnectQuiesce)
	p.setConnected(false)
	return nil
}
