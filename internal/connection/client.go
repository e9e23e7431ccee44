package connection

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// closeWait bounds how long Close waits for paho to shut its workers down.
const closeWait = time.Second

// MQTTDialer dials the broker with paho over secure websockets. Paho's own
// reconnect logic is disabled; the Supervisor decides when to reconnect.
type MQTTDialer struct {
	logger *slog.Logger
}

// NewMQTTDialer creates an MQTTDialer.
func NewMQTTDialer(logger *slog.Logger) *MQTTDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTDialer{logger: logger}
}

// RouteMQTTLogs sends paho's internal error and warning output to logger.
func RouteMQTTLogs(logger *slog.Logger) {
	if logger == nil {
		return
	}
	h := logger.With("component", "paho").Handler()
	mqtt.CRITICAL = slog.NewLogLogger(h, slog.LevelError)
	mqtt.ERROR = slog.NewLogLogger(h, slog.LevelError)
	mqtt.WARN = slog.NewLogLogger(h, slog.LevelWarn)
}

// Dial connects, subscribes to opts.Topic and returns the live transport.
func (d *MQTTDialer) Dial(ctx context.Context, opts DialOptions, h Handlers) (Transport, error) {
	client := mqtt.NewClient(d.clientOptions(opts, h))

	if err := waitToken(ctx, client.Connect()); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect %s: %w", opts.URL, err)
	}

	sub := client.Subscribe(opts.Topic, opts.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		if h.OnMessage != nil {
			h.OnMessage(msg.Payload())
		}
	})
	if err := waitToken(ctx, sub); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("subscribe %s: %w", opts.Topic, err)
	}

	d.logger.Debug("mqtt subscribed", "client_id", opts.ClientID, "topic", opts.Topic, "qos", opts.QoS)
	return &mqttTransport{client: client}, nil
}

func (d *MQTTDialer) clientOptions(opts DialOptions, h Handlers) *mqtt.ClientOptions {
	o := mqtt.NewClientOptions()
	o.AddBroker(BrokerURL(opts.URL))
	o.SetClientID(opts.ClientID)
	o.SetUsername(opts.Username)
	o.SetPassword(opts.Password)
	o.SetCleanSession(true)
	o.SetAutoReconnect(false)
	o.SetConnectRetry(false)
	o.SetConnectTimeout(opts.ConnectTimeout)
	o.SetTLSConfig(&tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: opts.InsecureSkipVerify,
	})
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if errors.Is(err, io.EOF) {
			d.logger.Debug("mqtt closed by broker", "client_id", opts.ClientID)
			if h.OnClose != nil {
				h.OnClose()
			}
			return
		}
		if h.OnError != nil {
			h.OnError(fmt.Errorf("%w: %v", ErrTransport, err))
		}
	})
	return o
}

// BrokerURL returns u with a wss scheme when it has none.
func BrokerURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" || strings.Contains(u, "://") {
		return u
	}
	return "wss://" + u
}

// waitToken blocks until tok completes or ctx is done.
func waitToken(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mqttTransport wraps a connected paho client.
type mqttTransport struct {
	client mqtt.Client
	once   sync.Once
}

// Close disconnects without quiescing. A wedged connection is abandoned
// after closeWait.
func (t *mqttTransport) Close() {
	t.once.Do(func() {
		done := make(chan struct{})
		go func() {
			t.client.Disconnect(0)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(closeWait):
		}
	})
}
