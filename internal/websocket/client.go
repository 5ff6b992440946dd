// Package websocket keeps a JSON-RPC subscription stream to a Solana
// websocket endpoint, nudging the scan loop when a watched wallet is
// mentioned on chain.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// subscribeTimeout bounds one subscribe round trip
const subscribeTimeout = 10 * time.Second

// Client is a reconnecting JSON-RPC websocket client
type Client struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  int64
	pending map[int64]chan json.RawMessage
	// callbacks by server subscription id
	callbacks map[uint64]func(json.RawMessage)
	// resubscribe replays subscriptions after a reconnect
	resubscribe []func()

	closed chan struct{}
	once   sync.Once
}

// NewClient creates a websocket client. Connect must be called before
// subscribing.
func NewClient(url string, reconnectDelay, pingInterval time.Duration) *Client {
	return &Client{
		url:            url,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		pending:        make(map[int64]chan json.RawMessage),
		callbacks:      make(map[uint64]func(json.RawMessage)),
		closed:         make(chan struct{}),
	}
}

// Connect dials the endpoint and starts the read and ping loops. The
// client reconnects on its own until ctx ends or Close is called.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.dial(); err != nil {
		return err
	}
	go c.readLoop(ctx)
	go c.pingLoop(ctx)
	return nil
}

func (c *Client) dial() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	log.Info().Str("url", c.url).Msg("websocket connected")
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-c.closed:
				return
			default:
			}
			log.Warn().Err(err).Msg("websocket read failed, reconnecting")
			if !c.reconnect(ctx) {
				return
			}
			continue
		}
		c.dispatch(raw)
	}
}

func (c *Client) reconnect(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-c.closed:
			return false
		case <-time.After(c.reconnectDelay):
		}

		if err := c.dial(); err != nil {
			log.Warn().Err(err).Msg("websocket redial failed")
			continue
		}

		c.mu.Lock()
		replay := make([]func(), len(c.resubscribe))
		copy(replay, c.resubscribe)
		c.callbacks = make(map[uint64]func(json.RawMessage))
		c.mu.Unlock()

		for _, sub := range replay {
			sub()
		}
		return true
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	if c.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			if conn != nil {
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					log.Debug().Err(err).Msg("websocket ping failed")
				}
			}
			c.mu.Unlock()
		}
	}
}

// dispatch routes one inbound frame: responses by request id,
// notifications by subscription id.
func (c *Client) dispatch(raw []byte) {
	var msg struct {
		ID     *int64 `json:"id"`
		Result json.RawMessage
		Method string `json:"method"`
		Params struct {
			Subscription uint64          `json:"subscription"`
			Result       json.RawMessage `json:"result"`
		} `json:"params"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Warn().Err(err).Msg("websocket frame parse failed")
		return
	}

	if msg.ID != nil {
		c.mu.Lock()
		ch, ok := c.pending[*msg.ID]
		delete(c.pending, *msg.ID)
		c.mu.Unlock()
		if ok {
			ch <- msg.Result
		}
		return
	}

	if msg.Method != "" {
		c.mu.Lock()
		cb := c.callbacks[msg.Params.Subscription]
		c.mu.Unlock()
		if cb != nil {
			cb(msg.Params.Result)
		}
	}
}

// call sends one request and waits for its response
func (c *Client) call(method string, params []any) (json.RawMessage, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan json.RawMessage, 1)
	c.pending[id] = ch
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil, fmt.Errorf("websocket not connected")
	}

	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}
	c.mu.Lock()
	err := conn.WriteJSON(req)
	c.mu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("websocket write: %w", err)
	}

	select {
	case result := <-ch:
		return result, nil
	case <-time.After(subscribeTimeout):
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("websocket %s timeout", method)
	}
}

// subscribe issues a subscription request and registers its callback
func (c *Client) subscribe(method string, params []any, cb func(json.RawMessage)) (uint64, error) {
	result, err := c.call(method, params)
	if err != nil {
		return 0, err
	}

	var subID uint64
	if err := json.Unmarshal(result, &subID); err != nil {
		return 0, fmt.Errorf("parse %s result: %w", method, err)
	}

	c.mu.Lock()
	c.callbacks[subID] = cb
	c.mu.Unlock()
	return subID, nil
}

// AccountSubscribe streams account changes for an address
func (c *Client) AccountSubscribe(address string, cb func(json.RawMessage)) (uint64, error) {
	return c.subscribe("accountSubscribe", []any{
		address,
		map[string]string{"encoding": "jsonParsed", "commitment": "confirmed"},
	}, cb)
}

// LogsSubscribe streams transaction logs mentioning an address
func (c *Client) LogsSubscribe(address string, cb func(json.RawMessage)) (uint64, error) {
	return c.subscribe("logsSubscribe", []any{
		map[string]any{"mentions": []string{address}},
		map[string]string{"commitment": "confirmed"},
	}, cb)
}

// SignatureSubscribe streams the confirmation status of one signature
func (c *Client) SignatureSubscribe(signature string, cb func(json.RawMessage)) (uint64, error) {
	return c.subscribe("signatureSubscribe", []any{
		signature,
		map[string]string{"commitment": "confirmed"},
	}, cb)
}

// Unsubscribe cancels one subscription
func (c *Client) Unsubscribe(method string, subID uint64) {
	c.mu.Lock()
	delete(c.callbacks, subID)
	c.mu.Unlock()
	if _, err := c.call(method, []any{subID}); err != nil {
		log.Debug().Err(err).Str("method", method).Msg("unsubscribe failed")
	}
}

// addResubscribe records a subscription replayed after reconnects
func (c *Client) addResubscribe(fn func()) {
	c.mu.Lock()
	c.resubscribe = append(c.resubscribe, fn)
	c.mu.Unlock()
}

// Close shuts the connection down for good
func (c *Client) Close() {
	c.once.Do(func() { close(c.closed) })
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}
