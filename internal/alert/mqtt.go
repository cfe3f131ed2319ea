package alert

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"skywarden/internal/config"
	"skywarden/internal/models"
)

// MQTTChannel publishes alert JSON to a broker topic. The connection
// is established on first send and auto-reconnects afterwards; a
// broker outage degrades this one channel only.
type MQTTChannel struct {
	cfg config.MQTTChannelConfig

	mu     sync.Mutex
	client mqtt.Client
}

func NewMQTTChannel(cfg config.MQTTChannelConfig) *MQTTChannel {
	return &MQTTChannel{cfg: cfg}
}

func (m *MQTTChannel) Name() string { return "mqtt" }

func (m *MQTTChannel) Send(ctx context.Context, event models.DetectionEvent, _ []byte) error {
	client, err := m.connect(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal alert")
	}

	token := client.Publish(m.cfg.Topic, byte(m.cfg.QoS), false, payload)
	if !waitToken(ctx, token) {
		return errors.New("mqtt publish timed out")
	}
	if err := token.Error(); err != nil {
		return errors.Wrap(err, "mqtt publish")
	}
	return nil
}

func (m *MQTTChannel) connect(ctx context.Context) (mqtt.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil && m.client.IsConnected() {
		return m.client, nil
	}

	if m.client == nil {
		opts := mqtt.NewClientOptions()
		opts.AddBroker("tcp://" + m.cfg.Broker)
		opts.SetClientID(m.cfg.ClientID)
		opts.SetAutoReconnect(true)
		opts.SetConnectRetryInterval(2 * time.Second)
		opts.SetMaxReconnectInterval(30 * time.Second)
		m.client = mqtt.NewClient(opts)
	}

	if !m.client.IsConnected() {
		token := m.client.Connect()
		if !waitToken(ctx, token) {
			return nil, errors.New("mqtt connect timed out")
		}
		if err := token.Error(); err != nil {
			return nil, errors.Wrap(err, "mqtt connect")
		}
	}
	return m.client, nil
}

// waitToken waits for a paho token honouring the context deadline.
func waitToken(ctx context.Context, token mqtt.Token) bool {
	deadline, ok := ctx.Deadline()
	if !ok {
		token.Wait()
		return true
	}
	return token.WaitTimeout(time.Until(deadline))
}

// Close disconnects from the broker.
func (m *MQTTChannel) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}
