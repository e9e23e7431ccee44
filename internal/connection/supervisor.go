package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/quote-relay/internal/metrics"
	"github.com/rickgao/quote-relay/internal/model"
)

// Supervisor owns the broker connection lifecycle.
type Supervisor struct {
	cfg     Config
	creds   CredentialSource
	dialer  Dialer
	sink    QuoteSink
	policy  ReconnectPolicy
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	queue chan []byte

	// Lifecycle
	ctx       context.Context
	cancel    context.CancelFunc
	stopWatch func() bool
	wg        sync.WaitGroup
	started   bool

	// Connection state, guarded by mu. gen identifies the current transport;
	// events carrying an older generation are ignored.
	mu          sync.Mutex
	state       State
	gen         uint64
	transport   Transport
	retryTimer  *time.Timer
	attempt     int
	lostErr     error
	clientID    string
	lastMessage time.Time
	stats       Stats
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithReconnectPolicy replaces the default fixed 5s delay.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(s *Supervisor) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithMetrics records connection metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSupervisor creates a Supervisor in the Disconnected state.
func NewSupervisor(cfg Config, creds CredentialSource, dialer Dialer, sink QuoteSink, opts ...Option) *Supervisor {
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = DefaultWatchdogInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.MessageBuffer <= 0 {
		cfg.MessageBuffer = DefaultMessageBuffer
	}

	s := &Supervisor{
		cfg:    cfg,
		creds:  creds,
		dialer: dialer,
		sink:   sink,
		policy: FixedDelay(DefaultReconnectDelay),
		logger: slog.Default(),
		now:    time.Now,
		queue:  make(chan []byte, cfg.MessageBuffer),
		state:  StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start makes the first connection attempt, then starts the watchdog and
// the message worker. A failed first attempt is retried on schedule and is
// not reported as an error. Cancelling ctx stops the supervisor the same way
// Stop does, without waiting for in-flight work.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.stopWatch = context.AfterFunc(ctx, func() {
		if s.halt() {
			s.logger.Info("connection supervisor stopped by context", "reason", context.Cause(ctx))
		}
	})
	s.wg.Add(1)
	go s.processLoop(s.ctx)
	s.mu.Unlock()

	s.connect()

	s.mu.Lock()
	if s.state != StateStopped {
		s.wg.Add(1)
		go s.watchdogLoop(s.ctx)
	}
	s.mu.Unlock()

	s.logger.Info("connection supervisor started",
		"broker", s.cfg.BrokerURL,
		"topic", s.cfg.Topic,
		"watchdog_interval", s.cfg.WatchdogInterval,
		"stale_after", s.cfg.StaleAfter,
	)
	return nil
}

// Stop prevents further reconnects, cancels the watchdog and any pending
// retry, force-closes the transport and waits for in-flight work. Nothing
// runs after Stop returns unless ctx expires first.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.logger.Info("stopping connection supervisor")

	s.mu.Lock()
	stopWatch := s.stopWatch
	s.mu.Unlock()
	if stopWatch != nil {
		stopWatch()
	}
	s.halt()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("connection supervisor stopped")
	case <-ctx.Done():
		s.logger.Warn("connection supervisor stop timed out")
		return ctx.Err()
	}
	return nil
}

// halt moves to Stopped, cancels the worker context and any pending retry,
// and closes the live transport. It reports false if already stopped.
func (s *Supervisor) halt() bool {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return false
	}
	s.setStateLocked(StateStopped)
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	t := s.detachLocked()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if t != nil {
		t.Close()
	}
	return true
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns current statistics.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.State = s.state
	st.ClientID = s.clientID
	st.LastMessage = s.lastMessage
	return st
}

// connect runs one connection attempt. A call while another attempt is in
// flight, or after Stop, does nothing. A pending retry is superseded.
func (s *Supervisor) connect() {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	old := s.detachLocked()
	s.setStateLocked(StateConnecting)
	gen := s.gen
	s.lostErr = nil
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if old != nil {
		old.Close()
	}

	t, clientID, err := s.dial(gen)

	s.mu.Lock()
	if s.state == StateStopped || s.gen != gen {
		s.mu.Unlock()
		if t != nil {
			t.Close()
		}
		return
	}
	var orphan Transport
	if err == nil && s.lostErr != nil {
		orphan, err = t, s.lostErr
		s.gen++
	}
	if err != nil {
		s.logger.Error("broker connect failed", "phase", "connect", "error", err)
		s.scheduleReconnectLocked("connect_failed")
	} else {
		s.acceptLocked(t, clientID)
	}
	s.mu.Unlock()

	if orphan != nil {
		orphan.Close()
	}
}

// acceptLocked installs t as the live transport. Caller holds mu.
func (s *Supervisor) acceptLocked(t Transport, clientID string) {
	s.transport = t
	s.clientID = clientID
	s.attempt = 0
	s.lastMessage = s.now()
	s.stats.Connects++
	s.setStateLocked(StateConnected)

	s.logger.Info("broker connected", "client_id", clientID, "topic", s.cfg.Topic)
}

// dial fetches a credential and opens a subscribed transport.
func (s *Supervisor) dial(gen uint64) (Transport, string, error) {
	if s.cfg.BrokerURL == "" || s.cfg.Topic == "" || s.cfg.ClientID == "" {
		return nil, "", fmt.Errorf("%w: broker url, client id and topic are required", ErrConfig)
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ConnectTimeout)
	defer cancel()

	cred, err := s.creds.GetValidToken(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("get credential: %w", err)
	}

	clientID := s.cfg.ClientID + "-" + uuid.NewString()
	opts := DialOptions{
		URL:                s.cfg.BrokerURL,
		ClientID:           clientID,
		Username:           cred.AccountID,
		Password:           cred.Token,
		Topic:              s.cfg.Topic,
		QoS:                s.cfg.QoS,
		ConnectTimeout:     s.cfg.ConnectTimeout,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify,
	}
	handlers := Handlers{
		OnMessage: func(payload []byte) { s.handleMessage(gen, payload) },
		OnError:   func(err error) { s.handleLost(gen, err, "error") },
		OnClose:   func() { s.handleLost(gen, nil, "close") },
	}

	t, err := s.dialer.Dial(ctx, opts, handlers)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return t, clientID, nil
}

// handleLost reacts to an error or close event from transport gen by
// force-closing it and scheduling a reconnect.
func (s *Supervisor) handleLost(gen uint64, err error, reason string) {
	s.mu.Lock()
	if s.gen != gen || s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	if s.state == StateConnecting {
		// Lost before the attempt finished; connect reports it.
		if err == nil {
			err = fmt.Errorf("%w: closed during connect", ErrTransport)
		}
		s.lostErr = err
		s.mu.Unlock()
		return
	}
	if s.state != StateConnected {
		s.mu.Unlock()
		return
	}

	if err != nil {
		s.logger.Warn("broker connection error", "phase", "transport", "error", err)
	} else {
		s.logger.Warn("broker connection closed", "phase", "transport")
	}
	t := s.detachLocked()
	s.scheduleReconnectLocked(reason)
	s.mu.Unlock()

	if t != nil {
		t.Close()
	}
}

// scheduleReconnectLocked arms the single retry timer. Caller holds mu.
func (s *Supervisor) scheduleReconnectLocked(reason string) {
	if s.state == StateStopped {
		return
	}
	s.setStateLocked(StateReconnecting)

	delay := s.policy.Delay(s.attempt)
	s.attempt++
	s.stats.Reconnects++
	s.metrics.Reconnect(reason)

	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	s.retryTimer = time.AfterFunc(delay, s.connect)

	s.logger.Info("reconnect scheduled",
		"reason", reason,
		"delay", delay,
		"attempt", s.attempt,
	)
}

// detachLocked takes the current transport out of service and invalidates
// its events. Caller holds mu and closes the returned transport after
// releasing it.
func (s *Supervisor) detachLocked() Transport {
	t := s.transport
	s.transport = nil
	s.gen++
	return t
}

func (s *Supervisor) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.logger.Debug("connection state", "from", s.state.String(), "to", st.String())
	s.state = st
	s.metrics.SetConnectionState(int(st))
}

// handleMessage records liveness and queues the payload for processing.
func (s *Supervisor) handleMessage(gen uint64, payload []byte) {
	s.mu.Lock()
	if s.gen != gen || s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.lastMessage = s.now()
	s.stats.MessagesReceived++
	s.mu.Unlock()

	s.metrics.MessageReceived()

	select {
	case s.queue <- payload:
	default:
		s.mu.Lock()
		s.stats.Dropped++
		s.mu.Unlock()
		s.metrics.MessageDropped("buffer_full")
		s.logger.Warn("message buffer full, dropping message")
	}
}

// processLoop hands queued messages to the sink one at a time, which keeps
// updates for a symbol in arrival order.
func (s *Supervisor) processLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-s.queue:
			_ = s.process(ctx, payload)
		}
	}
}

// process decodes, normalizes and forwards one message. Malformed payloads
// are logged and dropped.
func (s *Supervisor) process(ctx context.Context, payload []byte) error {
	raw, err := model.DecodeRaw(payload)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrMessageParse, err)
		s.mu.Lock()
		s.stats.ParseErrors++
		s.mu.Unlock()
		s.metrics.MessageDropped("parse")
		s.logger.Warn("dropping message", "phase", "parse", "error", err, "size", len(payload))
		return err
	}

	q := model.Normalize(raw)
	if err := s.sink.SaveIfChanged(ctx, q); err != nil {
		s.logger.Error("save quote failed", "phase", "save", "symbol", q.Symbol, "error", err)
		return err
	}
	return nil
}

// watchdogLoop checks liveness every WatchdogInterval.
func (s *Supervisor) watchdogLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.watchdogTick(s.now())
		}
	}
}

// watchdogTick reconnects immediately when the connection has been silent
// for longer than StaleAfter. It reports whether it did.
func (s *Supervisor) watchdogTick(now time.Time) bool {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return false
	}
	silence := now.Sub(s.lastMessage)
	if silence <= s.cfg.StaleAfter {
		s.mu.Unlock()
		return false
	}

	s.logger.Warn("no broker messages, reconnecting",
		"silence", silence,
		"stale_after", s.cfg.StaleAfter,
	)
	t := s.detachLocked()
	s.setStateLocked(StateDisconnected)
	s.stats.Reconnects++
	s.metrics.Reconnect("stale")
	s.mu.Unlock()

	if t != nil {
		t.Close()
	}
	s.connect()
	return true
}
