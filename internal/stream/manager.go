package stream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dexpulse/dexpulse/pkg/types"
)

// Manager maintains a live, reconnecting subscription to upstream pool
// events across a priority-ordered endpoint list. Exactly one endpoint
// is active at a time; on loss the manager fails over in priority order
// with exponential backoff between rounds.
type Manager struct {
	cfg       Config
	endpoints []types.Endpoint
	backoff   *Backoff
	logger    *zap.Logger

	mu         sync.RWMutex
	conn       *conn
	activeURL  string
	unusable   map[string]bool // endpoints rejected as permanently unusable
	subscribed map[common.Address]bool

	// subMu serializes live resubscribe writes against each other.
	subMu sync.Mutex

	events chan *types.PoolEvent
	fatal  chan error

	connected  atomic.Bool
	malformed  atomic.Uint64
	reconnects atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds stream manager configuration.
type Config struct {
	Endpoints         []types.Endpoint
	DexName           string
	DialTimeout       time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	MessageBufferSize int
	Backoff           BackoffConfig
	Logger            *zap.Logger
}

// Status is the operator-visible connection state.
type Status struct {
	Connected         bool     `json:"connected"`
	ActiveEndpoint    string   `json:"active_endpoint"`
	SubscribedPools   int      `json:"subscribed_pools"`
	UnusableEndpoints []string `json:"unusable_endpoints,omitempty"`
	MalformedDropped  uint64   `json:"malformed_dropped"`
	Reconnects        uint64   `json:"reconnects"`
}

// New creates a stream manager. Endpoints are copied and sorted by
// priority; the set is immutable afterwards.
func New(cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	endpoints := make([]types.Endpoint, len(cfg.Endpoints))
	copy(endpoints, cfg.Endpoints)
	sort.SliceStable(endpoints, func(i, j int) bool {
		return endpoints[i].Priority < endpoints[j].Priority
	})

	return &Manager{
		cfg:        cfg,
		endpoints:  endpoints,
		backoff:    NewBackoff(cfg.Backoff),
		logger:     cfg.Logger,
		unusable:   make(map[string]bool),
		subscribed: make(map[common.Address]bool),
		events:     make(chan *types.PoolEvent, cfg.MessageBufferSize),
		fatal:      make(chan error, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Connect establishes the initial connection, trying endpoints in
// priority order, and starts the read and ping loops. It fails only if
// every endpoint is unusable in this round.
func (m *Manager) Connect() error {
	m.logger.Info("stream-manager-connecting", zap.Int("endpoints", len(m.endpoints)))

	err := m.connectAny(m.ctx)
	if err != nil {
		return err
	}

	m.wg.Add(2)
	go m.readLoop()
	go m.pingLoop()

	return nil
}

// connectAny attempts each endpoint in priority order and installs the
// subscription on the first usable one.
func (m *Manager) connectAny(ctx context.Context) error {
	for _, endpoint := range m.endpoints {
		m.mu.RLock()
		skip := m.unusable[endpoint.URL]
		m.mu.RUnlock()
		if skip {
			continue
		}

		err := m.connectTo(ctx, endpoint)
		if err == nil {
			return nil
		}

		var epErr *types.EndpointError
		if errors.As(err, &epErr) && epErr.Permanent {
			m.mu.Lock()
			m.unusable[endpoint.URL] = true
			m.mu.Unlock()
			m.logger.Warn("endpoint-marked-unusable",
				zap.String("url", endpoint.URL),
				zap.Error(err))
			continue
		}

		m.logger.Warn("endpoint-connect-failed",
			zap.String("url", endpoint.URL),
			zap.Int("priority", endpoint.Priority),
			zap.Error(err))
	}

	return fmt.Errorf("connect round: %w", types.ErrEndpointsExhausted)
}

func (m *Manager) connectTo(ctx context.Context, endpoint types.Endpoint) error {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	defer cancel()

	c, err := dial(dialCtx, endpoint, m.cfg.DialTimeout)
	if err != nil {
		return err
	}

	m.mu.RLock()
	pools := m.subscribedPools()
	m.mu.RUnlock()

	err = c.subscribeLogs(dialCtx, pools)
	if err != nil {
		_ = c.close()
		return &types.EndpointError{URL: endpoint.URL, Err: err}
	}

	m.mu.Lock()
	if m.conn != nil {
		// Failover path: release the dead predecessor's socket.
		_ = m.conn.close()
	}
	m.conn = c
	m.activeURL = endpoint.URL
	m.mu.Unlock()

	m.connected.Store(true)
	m.backoff.Reset()
	ActiveConnections.Set(1)

	m.logger.Info("stream-connected",
		zap.String("url", endpoint.URL),
		zap.Int("priority", endpoint.Priority),
		zap.Int("pools", len(pools)))

	return nil
}

// SubscribePool registers interest in a pool's Sync/Swap/Mint/Burn
// events. Idempotent: subscribing to an already-subscribed pool is a
// no-op that returns success. When no connection is live the pool is
// recorded and picked up by the next (re)connect.
func (m *Manager) SubscribePool(ctx context.Context, pool common.Address) error {
	m.mu.Lock()
	if m.subscribed[pool] {
		m.mu.Unlock()
		m.logger.Debug("pool-already-subscribed", zap.String("pool", pool.Hex()))
		return nil
	}
	m.subscribed[pool] = true
	pools := m.subscribedPools()
	c := m.conn
	connected := m.connected.Load()
	m.mu.Unlock()

	SubscribedPools.Set(float64(len(pools)))

	if !connected || c == nil {
		m.logger.Debug("pool-subscription-deferred", zap.String("pool", pool.Hex()))
		return nil
	}

	m.subMu.Lock()
	err := c.resubscribe(pools)
	m.subMu.Unlock()
	if err != nil {
		// Keep the pool registered; the reconnect path re-applies the
		// full set. The connection itself is likely broken here and the
		// read loop will notice.
		return fmt.Errorf("subscribe pool %s: %w", pool.Hex(), err)
	}

	m.logger.Info("pool-subscribed",
		zap.String("pool", pool.Hex()),
		zap.Int("total", len(pools)))

	return nil
}

// subscribedPools returns the registered pools. Callers hold m.mu.
func (m *Manager) subscribedPools() []common.Address {
	pools := make([]common.Address, 0, len(m.subscribed))
	for pool := range m.subscribed {
		pools = append(pools, pool)
	}
	return pools
}

// readLoop reads frames from the active connection, parses them into
// pool events and emits them. Malformed payloads are dropped and
// counted, never fatal. On I/O failure it hands off to the reconnect
// path.
func (m *Manager) readLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		m.mu.RLock()
		c := m.conn
		m.mu.RUnlock()

		if c == nil || !m.connected.Load() {
			if !m.reconnect() {
				return
			}
			continue
		}

		message, err := c.readMessage(m.cfg.ReadTimeout)
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			m.logger.Warn("stream-read-error", zap.Error(err))
			m.connected.Store(false)
			ActiveConnections.Set(0)
			continue
		}

		event, err := parseEvent(message, m.cfg.DexName)
		if err != nil {
			m.malformed.Add(1)
			MalformedDroppedTotal.Inc()
			m.logger.Debug("malformed-event-dropped", zap.Error(err))
			continue
		}
		if event == nil {
			// Control frame or untracked log.
			continue
		}

		EventsReceivedTotal.WithLabelValues(string(event.Kind)).Inc()

		select {
		case m.events <- event:
		case <-m.ctx.Done():
			return
		}
	}
}

// reconnect runs failover rounds with backoff until a connection is
// re-established. Returns false when the attempt cap is exhausted (a
// fatal condition surfaced on Fatal()) or the manager is shutting down.
func (m *Manager) reconnect() bool {
	m.logger.Warn("stream-connection-lost-initiating-failover")

	for {
		delay, ok := m.backoff.Next()
		if !ok {
			m.logger.Error("stream-endpoints-exhausted",
				zap.Int("attempts", m.backoff.Attempt()))
			select {
			case m.fatal <- types.ErrEndpointsExhausted:
			default:
			}
			return false
		}

		ReconnectAttemptsTotal.Inc()
		m.reconnects.Add(1)

		select {
		case <-time.After(m.backoff.withJitter(delay)):
		case <-m.ctx.Done():
			return false
		}

		err := m.connectAny(m.ctx)
		if err == nil {
			m.logger.Info("stream-failover-complete")
			return true
		}

		ReconnectFailuresTotal.Inc()
		m.logger.Warn("stream-failover-round-failed", zap.Error(err))
	}
}

// pingLoop keeps the active connection alive.
func (m *Manager) pingLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if !m.connected.Load() {
				continue
			}

			m.mu.RLock()
			c := m.conn
			m.mu.RUnlock()

			if c == nil {
				continue
			}

			err := c.ping()
			if err != nil {
				m.logger.Warn("stream-ping-error", zap.Error(err))
			}
		}
	}
}

// Events returns the raw pool event channel. Per-pool ordering matches
// arrival order on the wire.
func (m *Manager) Events() <-chan *types.PoolEvent {
	return m.events
}

// Fatal delivers at most one exhaustion-class failure. The owner decides
// whether to restart the manager or terminate.
func (m *Manager) Fatal() <-chan error {
	return m.fatal
}

// Status returns a point-in-time snapshot of the connection state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var unusable []string
	for url := range m.unusable {
		unusable = append(unusable, url)
	}
	sort.Strings(unusable)

	return Status{
		Connected:         m.connected.Load(),
		ActiveEndpoint:    m.activeURL,
		SubscribedPools:   len(m.subscribed),
		UnusableEndpoints: unusable,
		MalformedDropped:  m.malformed.Load(),
		Reconnects:        m.reconnects.Load(),
	}
}

// Close tears down all subscriptions and the active connection. Pending
// backoff timers and in-flight dials are cancelled immediately; Close
// returns once both loops have exited.
func (m *Manager) Close() error {
	m.logger.Info("stream-manager-closing")

	m.cancel()

	m.mu.Lock()
	if m.conn != nil {
		_ = m.conn.close()
		m.conn = nil
	}
	m.subscribed = make(map[common.Address]bool)
	m.mu.Unlock()

	m.connected.Store(false)
	ActiveConnections.Set(0)
	SubscribedPools.Set(0)

	m.wg.Wait()
	close(m.events)

	m.logger.Info("stream-manager-closed")
	return nil
}
