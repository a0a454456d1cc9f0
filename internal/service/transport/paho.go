package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrTimeout is returned when the broker does not answer in time.
var ErrTimeout = errors.New("mqtt operation timed out")

// PahoOptions configures sessions dialed with the paho MQTT 3.1.1 client.
type PahoOptions struct {
	Broker         string // host:port
	ClientID       string
	QoS            byte
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
	// WriteTimeout bounds how long paho waits to hand a publish to the network.
	WriteTimeout time.Duration
}

// PahoDialer returns a DialFunc opening one paho connection per call. Paho's
// own reconnect logic is disabled; Client owns reconnection.
func PahoDialer(opts PahoOptions) DialFunc {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	return func(ctx context.Context, onLost func(error)) (Session, error) {
		o := mqtt.NewClientOptions()
		o.AddBroker(fmt.Sprintf("tcp://%s", opts.Broker))
		o.SetClientID(opts.ClientID)
		o.SetCleanSession(true)
		o.SetAutoReconnect(false)
		o.SetConnectRetry(false)
		o.SetConnectTimeout(opts.ConnectTimeout)
		o.SetKeepAlive(opts.KeepAlive)
		o.SetWriteTimeout(opts.WriteTimeout)
		o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			onLost(err)
		})

		client := mqtt.NewClient(o)
		if err := waitToken(ctx, client.Connect(), opts.ConnectTimeout); err != nil {
			return nil, fmt.Errorf("mqtt connect %s: %w", opts.Broker, err)
		}
		return &pahoSession{client: client, qos: opts.QoS}, nil
	}
}

type pahoSession struct {
	client mqtt.Client
	qos    byte
}

func (s *pahoSession) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := waitToken(ctx, s.client.Publish(topic, s.qos, false, payload), 0); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

func (s *pahoSession) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	token := s.client.Subscribe(topic, s.qos, func(_ mqtt.Client, m mqtt.Message) {
		handler(m.Topic(), m.Payload())
	})
	if err := waitToken(ctx, token, 0); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	return nil
}

func (s *pahoSession) Close() error {
	s.client.Disconnect(250)
	return nil
}

// waitToken waits for token, ctx, or timeout (when > 0), whichever comes first.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return ErrTimeout
	}
}
