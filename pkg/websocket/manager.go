package websocket

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/parlaytech/updown-arb/pkg/types"
	"go.uber.org/zap"
)

// Manager maintains a single market-data WebSocket connection, parses the
// book and price_change stream into typed messages, and transparently
// reconnects and resubscribes after a drop.
type Manager struct {
	url         string
	conn        *websocket.Conn
	logger      *zap.Logger
	reconnector *Reconnector
	config      Config
	messageChan chan *types.BookMessage
	onReconnect func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.RWMutex
	subscribed  map[string]bool // token IDs with an active subscription
	connected   atomic.Bool
	lastPong    atomic.Int64
	connectedAt atomic.Int64
}

// Config holds WebSocket manager configuration.
type Config struct {
	URL                   string
	DialTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectMultiplier   float64
	MessageBufferSize     int

	// OnReconnect runs after a successful reconnect and resubscribe, before
	// the read loop restarts. Book consumers use it to flag their state as
	// suspect until fresh snapshots arrive.
	OnReconnect func()

	Logger *zap.Logger
}

// New creates a WebSocket manager. Call Start to connect.
func New(cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	reconnectCfg := ReconnectConfig{
		InitialDelay: cfg.ReconnectInitialDelay,
		MaxDelay:     cfg.ReconnectMaxDelay,
		Multiplier:   cfg.ReconnectMultiplier,
	}

	return &Manager{
		url:         cfg.URL,
		logger:      cfg.Logger,
		reconnector: NewReconnector(reconnectCfg, cfg.Logger),
		config:      cfg,
		messageChan: make(chan *types.BookMessage, cfg.MessageBufferSize),
		onReconnect: cfg.OnReconnect,
		ctx:         ctx,
		cancel:      cancel,
		subscribed:  make(map[string]bool),
	}
}

// Start dials the feed and launches the read, ping and reconnect loops.
func (m *Manager) Start() error {
	m.logger.Info("websocket-manager-starting", zap.String("url", m.url))

	err := m.connect(m.ctx)
	if err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	m.wg.Add(3)
	go m.readLoop()
	go m.pingLoop()
	go m.reconnectLoop()

	return nil
}

// connect establishes a WebSocket connection.
func (m *Manager) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: m.config.DialTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		m.lastPong.Store(time.Now().Unix())
		return nil
	})

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	now := time.Now()
	m.connected.Store(true)
	m.lastPong.Store(now.Unix())
	m.connectedAt.Store(now.Unix())
	ActiveConnections.Set(1)

	m.logger.Info("websocket-connected")

	return nil
}

// Subscribe subscribes to the given outcome token IDs. Already-subscribed
// tokens are skipped.
func (m *Manager) Subscribe(ctx context.Context, tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return nil
	}

	m.mu.Lock()

	newTokens := make([]string, 0, len(tokenIDs))
	for _, tokenID := range tokenIDs {
		if !m.subscribed[tokenID] {
			newTokens = append(newTokens, tokenID)
			m.subscribed[tokenID] = true
		}
	}

	if len(newTokens) == 0 {
		m.mu.Unlock()
		m.logger.Debug("all-tokens-already-subscribed")
		return nil
	}

	// The feed distinguishes the initial channel subscription from later
	// additions to an established connection.
	var subscribeMsg map[string]interface{}
	if len(m.subscribed) == len(newTokens) {
		subscribeMsg = map[string]interface{}{
			"assets_ids": newTokens,
			"type":       "market",
		}
	} else {
		subscribeMsg = map[string]interface{}{
			"assets_ids": newTokens,
			"operation":  "subscribe",
		}
	}

	totalSubscribed := len(m.subscribed)
	m.mu.Unlock()

	// Network I/O without holding the lock.
	err := m.conn.WriteJSON(subscribeMsg)
	if err != nil {
		m.mu.Lock()
		for _, tokenID := range newTokens {
			delete(m.subscribed, tokenID)
		}
		totalSubscribed = len(m.subscribed)
		m.mu.Unlock()

		SubscriptionCount.Set(float64(totalSubscribed))
		return fmt.Errorf("write subscribe message: %w", err)
	}

	SubscriptionCount.Set(float64(totalSubscribed))

	m.logger.Info("subscribed-to-tokens",
		zap.Int("new-count", len(newTokens)),
		zap.Int("total-count", totalSubscribed))

	return nil
}

// Unsubscribe removes subscriptions for tokens of markets that have ended.
func (m *Manager) Unsubscribe(ctx context.Context, tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return nil
	}

	m.mu.Lock()

	toRemove := make([]string, 0, len(tokenIDs))
	for _, tokenID := range tokenIDs {
		if m.subscribed[tokenID] {
			toRemove = append(toRemove, tokenID)
			delete(m.subscribed, tokenID)
		}
	}

	if len(toRemove) == 0 {
		m.mu.Unlock()
		m.logger.Debug("no-tokens-to-unsubscribe")
		return nil
	}

	unsubscribeMsg := map[string]interface{}{
		"assets_ids": toRemove,
		"operation":  "unsubscribe",
	}

	totalSubscribed := len(m.subscribed)
	m.mu.Unlock()

	err := m.conn.WriteJSON(unsubscribeMsg)
	if err != nil {
		m.mu.Lock()
		for _, tokenID := range toRemove {
			m.subscribed[tokenID] = true
		}
		totalSubscribed = len(m.subscribed)
		m.mu.Unlock()

		SubscriptionCount.Set(float64(totalSubscribed))
		return fmt.Errorf("write unsubscribe message: %w", err)
	}

	SubscriptionCount.Set(float64(totalSubscribed))
	UnsubscriptionsTotal.Inc()

	m.logger.Info("unsubscribed-from-tokens",
		zap.Int("count", len(toRemove)),
		zap.Int("remaining-count", totalSubscribed))

	return nil
}

// readLoop reads messages from the WebSocket until the connection drops.
func (m *Manager) readLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		m.mu.RLock()
		conn := m.conn
		m.mu.RUnlock()

		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			m.logger.Warn("read-error", zap.Error(err))

			startTime := m.connectedAt.Load()
			if startTime > 0 {
				ConnectionDuration.Observe(time.Since(time.Unix(startTime, 0)).Seconds())
			}

			m.connected.Store(false)
			ActiveConnections.Set(0)
			return
		}

		// The feed batches messages into a JSON array.
		var bookMsgs []types.BookMessage
		err = json.Unmarshal(message, &bookMsgs)
		if err != nil {
			m.handleNonBookMessage(message, err)
			continue
		}

		for i := range bookMsgs {
			msg := &bookMsgs[i]

			MessagesReceivedTotal.WithLabelValues(msg.EventType).Inc()

			select {
			case m.messageChan <- msg:
			default:
				m.logger.Warn("message-channel-full", zap.String("event-type", msg.EventType))
				MessagesDroppedTotal.WithLabelValues("channel_full").Inc()
			}
		}
	}
}

// handleNonBookMessage classifies frames that are not book message arrays:
// heartbeats, subscription confirmations, and anything unparseable.
func (m *Manager) handleNonBookMessage(message []byte, parseErr error) {
	messageStr := string(message)

	if messageStr == "[]" || messageStr == "" || len(message) < 10 {
		m.logger.Debug("websocket-heartbeat-received", zap.Int("bytes", len(message)))
		return
	}

	var controlMsg map[string]interface{}
	if json.Unmarshal(message, &controlMsg) == nil {
		if msgType, ok := controlMsg["type"].(string); ok {
			m.logger.Debug("websocket-control-message",
				zap.String("type", msgType),
				zap.Int("bytes", len(message)))
			return
		}
	}

	previewLen := len(messageStr)
	if previewLen > 100 {
		previewLen = 100
	}
	m.logger.Debug("websocket-unparseable-message",
		zap.Error(parseErr),
		zap.Int("bytes", len(message)),
		zap.String("preview", messageStr[:previewLen]))
}

// pingLoop sends periodic PING control frames.
func (m *Manager) pingLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PingInterval)
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
			conn := m.conn
			m.mu.RUnlock()

			if conn == nil {
				continue
			}

			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
			if err != nil {
				m.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

// reconnectLoop re-establishes the connection whenever it drops.
func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		if m.connected.Load() {
			time.Sleep(time.Second)
			continue
		}

		m.logger.Warn("connection-lost-initiating-reconnect")

		err := m.reconnector.Run(m.ctx, m.connect)
		if err != nil {
			if err == context.Canceled {
				return
			}
			m.logger.Error("reconnection-failed", zap.Error(err))
			continue
		}

		err = m.resubscribeAll()
		if err != nil {
			m.logger.Error("resubscribe-failed", zap.Error(err))
			m.connected.Store(false)
			continue
		}

		if m.onReconnect != nil {
			m.onReconnect()
		}

		m.logger.Info("reconnection-complete-restarting-read-loop")

		m.wg.Add(1)
		go m.readLoop()
	}
}

// resubscribeAll re-issues the channel subscription for every tracked token.
func (m *Manager) resubscribeAll() error {
	m.mu.RLock()
	tokenIDs := make([]string, 0, len(m.subscribed))
	for tokenID := range m.subscribed {
		tokenIDs = append(tokenIDs, tokenID)
	}
	m.mu.RUnlock()

	if len(tokenIDs) == 0 {
		return nil
	}

	subscribeMsg := map[string]interface{}{
		"assets_ids": tokenIDs,
		"type":       "market",
	}

	m.mu.RLock()
	err := m.conn.WriteJSON(subscribeMsg)
	m.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("write resubscribe message: %w", err)
	}

	m.logger.Info("resubscribed-to-all-tokens", zap.Int("count", len(tokenIDs)))

	return nil
}

// MessageChan returns the channel of parsed book messages.
func (m *Manager) MessageChan() <-chan *types.BookMessage {
	return m.messageChan
}

// IsConnected reports whether the connection is currently up.
func (m *Manager) IsConnected() bool {
	return m.connected.Load()
}

// Close shuts down the connection and all loops.
func (m *Manager) Close() error {
	m.logger.Info("closing-websocket-manager")

	m.cancel()

	m.mu.RLock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.mu.RUnlock()

	m.wg.Wait()

	close(m.messageChan)

	ActiveConnections.Set(0)

	m.logger.Info("websocket-manager-closed")

	return nil
}
