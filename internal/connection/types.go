package connection

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/quote-relay/internal/auth"
	"github.com/rickgao/quote-relay/internal/model"
)

// Errors
var (
	ErrConfig        = errors.New("connection: missing broker configuration")
	ErrTransport     = errors.New("connection: transport error")
	ErrMessageParse  = errors.New("connection: message is not a JSON object")
	ErrStopped       = errors.New("connection: supervisor stopped")
	ErrAlreadyActive = errors.New("connection: supervisor already started")
)

// State is the supervisor's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// CredentialSource supplies broker credentials.
type CredentialSource interface {
	GetValidToken(ctx context.Context) (auth.Credential, error)
}

// QuoteSink receives normalized quotes.
type QuoteSink interface {
	SaveIfChanged(ctx context.Context, q model.Quote) error
}

// Transport is an open broker connection.
type Transport interface {
	// Close tears the connection down immediately. It must be safe to call
	// more than once.
	Close()
}

// DialOptions describe one connection attempt.
type DialOptions struct {
	URL                string
	ClientID           string
	Username           string
	Password           string
	Topic              string
	QoS                byte
	ConnectTimeout     time.Duration
	InsecureSkipVerify bool
}

// Handlers receive transport events. They may be called from any goroutine
// and must not block.
type Handlers struct {
	OnMessage func(payload []byte)
	OnError   func(err error)
	OnClose   func()
}

// Dialer opens a subscribed transport.
type Dialer interface {
	Dial(ctx context.Context, opts DialOptions, h Handlers) (Transport, error)
}

// Config configures the Supervisor.
type Config struct {
	BrokerURL          string
	ClientID           string // Prefix; a unique suffix is added per attempt
	Topic              string
	QoS                byte
	WatchdogInterval   time.Duration
	StaleAfter         time.Duration
	ConnectTimeout     time.Duration
	InsecureSkipVerify bool
	MessageBuffer      int
}

// Default timings.
const (
	DefaultWatchdogInterval = 10 * time.Second
	DefaultStaleAfter       = 30 * time.Second
	DefaultConnectTimeout   = 30 * time.Second
	DefaultMessageBuffer    = 10000
)

// Stats is a point-in-time view of the supervisor.
type Stats struct {
	State            State
	ClientID         string
	Connects         int64
	Reconnects       int64
	MessagesReceived int64
	ParseErrors      int64
	Dropped          int64
	LastMessage      time.Time
}
