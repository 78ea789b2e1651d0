package kucoin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Kucoin/kucoin-go-sdk"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/spooky-finn/kucoin-book-mirror/helpers"
	"go.uber.org/zap"
)

const (
	level2TopicPrefix = "/market/level2:"
	// KuCoin accepts at most this many symbols per subscribe message.
	maxSymbolsPerTopic = 100
	defaultPingPeriod  = 18 * time.Second
	writeTimeout       = 5 * time.Second
)

var ErrStreamClosed = errors.New("stream client is closed")

// TokenProvider issues the connection token and instance servers for a dial.
type TokenProvider interface {
	WsConnOpts() (*kucoin.WebSocketTokenModel, error)
}

type StreamClientConfig struct {
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	HandshakeTimeout time.Duration
	BufferSize       int
}

func DefaultStreamClientConfig() StreamClientConfig {
	return StreamClientConfig{
		ReconnectMin:     time.Second,
		ReconnectMax:     30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		BufferSize:       1024,
	}
}

// KucoinStreamClient keeps one websocket to the public feed subscribed to
// the level-2 topic of every configured symbol. While auto-reconnect is on,
// a dropped connection is re-established with exponential backoff.
type KucoinStreamClient struct {
	tokens TokenProvider
	dialer *websocket.Dialer
	config StreamClientConfig
	logger *zap.Logger

	mu            sync.Mutex
	symbols       []string
	autoReconnect bool
	running       bool
	closed        bool
	conn          *websocket.Conn
	onConnected   func()

	messages chan []byte
	wake     chan struct{}
	done     chan struct{}
}

func NewKucoinStreamClient(tokens TokenProvider, symbols []string, config StreamClientConfig, logger *zap.Logger) *KucoinStreamClient {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultStreamClientConfig().BufferSize
	}

	return &KucoinStreamClient{
		tokens: tokens,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
		config:   config,
		logger:   logger.Named("stream-client"),
		symbols:  append([]string(nil), symbols...),
		messages: make(chan []byte, config.BufferSize),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Messages delivers raw frames in arrival order.
func (c *KucoinStreamClient) Messages() <-chan []byte {
	return c.messages
}

// OnConnected registers a hook run after every successful subscribe.
func (c *KucoinStreamClient) OnConnected(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onConnected = fn
}

func (c *KucoinStreamClient) Symbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.symbols...)
}

// SetSymbols replaces the subscribed symbols; an open connection is recycled
// so the new subscription takes effect.
func (c *KucoinStreamClient) SetSymbols(symbols []string) {
	c.mu.Lock()
	c.symbols = append([]string(nil), symbols...)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.logger.Info("symbols changed, reconnecting", zap.Strings("symbols", symbols))
		_ = conn.Close()
	}
}

func (c *KucoinStreamClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil
}

// Start enables auto-reconnect and connects if not already running.
func (c *KucoinStreamClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrStreamClosed
	}

	c.autoReconnect = true
	if !c.running {
		c.running = true
		go c.run()
	}

	return nil
}

// Stop disables auto-reconnect and closes the connection.
func (c *KucoinStreamClient) Stop() error {
	c.mu.Lock()
	c.autoReconnect = false
	conn := c.conn
	c.mu.Unlock()

	c.signal()
	if conn != nil {
		return conn.Close()
	}

	return nil
}

// Restart drops the current connection and dials again immediately.
func (c *KucoinStreamClient) Restart() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrStreamClosed
	}

	c.autoReconnect = true
	conn := c.conn
	if !c.running {
		c.running = true
		go c.run()
	}
	c.mu.Unlock()

	c.signal()
	if conn != nil {
		_ = conn.Close()
	}

	return nil
}

// Close stops the client for good.
func (c *KucoinStreamClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	c.autoReconnect = false
	conn := c.conn
	close(c.done)
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}

	return nil
}

func (c *KucoinStreamClient) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// keepRunning reports whether the run loop should continue. The running flag
// is cleared under the same lock so Start never misses an exiting loop.
func (c *KucoinStreamClient) keepRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.autoReconnect && !c.closed {
		return true
	}

	c.running = false
	return false
}

func (c *KucoinStreamClient) run() {
	b := &backoff.Backoff{
		Min:    c.config.ReconnectMin,
		Max:    c.config.ReconnectMax,
		Factor: 2,
		Jitter: true,
	}

	// drop a wake left over from before this loop started
	select {
	case <-c.wake:
	default:
	}

	for c.keepRunning() {
		connected, err := c.session()
		if connected {
			b.Reset()
		}

		if !c.keepRunning() {
			c.logger.Info("stream stopped")
			return
		}

		delay := b.Duration()
		c.logger.Warn("stream disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-c.wake:
			timer.Stop()
			b.Reset()
		case <-c.done:
			timer.Stop()
		}
	}

	c.logger.Info("stream stopped")
}

// session dials, subscribes and reads until the connection drops.
func (c *KucoinStreamClient) session() (bool, error) {
	opts, err := c.tokens.WsConnOpts()
	if err != nil {
		return false, err
	}
	if len(opts.Servers) == 0 {
		return false, ErrNoInstanceServers
	}

	server := opts.Servers[0]
	endpoint, err := connectURL(server.Endpoint, opts.Token)
	if err != nil {
		return false, err
	}

	conn, _, err := c.dialer.Dial(endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to dial %s: %w", server.Endpoint, err)
	}

	c.mu.Lock()
	if !c.autoReconnect || c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return false, nil
	}
	c.conn = conn
	symbols := append([]string(nil), c.symbols...)
	onConnected := c.onConnected
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
	}()

	if err := c.subscribe(conn, symbols); err != nil {
		return false, err
	}

	c.logger.Info("connected to the kucoin stream websocket",
		zap.String("endpoint", server.Endpoint),
		zap.Strings("symbols", symbols),
	)

	if onConnected != nil {
		onConnected()
	}

	stopPing := make(chan struct{})
	defer close(stopPing)
	go c.keepAlive(conn, pingPeriod(server), stopPing)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return true, ErrStreamClosed
		}
	}
}

func (c *KucoinStreamClient) subscribe(conn *websocket.Conn, symbols []string) error {
	for _, chunk := range helpers.Chunk(symbols, maxSymbolsPerTopic) {
		m := kucoin.NewSubscribeMessage(level2TopicPrefix+strings.Join(chunk, ","), false)

		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(m); err != nil {
			return fmt.Errorf("failed to send subscribe msg for topic=%s: %w", m.Topic, err)
		}

		c.logger.Debug("subscribe sent", zap.String("message", helpers.ToJsonString(m)))
	}

	return nil
}

type pingMessage struct {
	Id   string `json:"id"`
	Type string `json:"type"`
}

func (c *KucoinStreamClient) keepAlive(conn *websocket.Conn, period time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			payload, _ := json.Marshal(pingMessage{Id: uuid.NewString(), Type: kucoin.PingMessage})

			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Warn("failed to send ping", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}

func pingPeriod(server *kucoin.WebSocketServerModel) time.Duration {
	if server.PingInterval > 0 {
		return time.Duration(server.PingInterval) * time.Millisecond
	}

	return defaultPingPeriod
}

func connectURL(endpoint, token string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid instance server endpoint %q: %w", endpoint, err)
	}

	q := u.Query()
	q.Set("token", token)
	q.Set("connectId", uuid.NewString())
	u.RawQuery = q.Encode()

	return u.String(), nil
}
