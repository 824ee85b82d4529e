package websocket

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"ekiden-sdk-go/logger"
)

// The following errors are returned from WSClient and EventStream.
var (
	// ErrNotConnected means the connection is not established when the client
	// tried to e.g. subscribe, or close the connection.
	ErrNotConnected = errors.New("not connected")

	// ErrConnLoopActive means the client tried to connect when a connection
	// is already established or being established.
	ErrConnLoopActive = errors.New("connection loop is already active")

	// ErrConnClosed is returned from EventStream.Recv after the subscription
	// was closed and all buffered events were drained.
	ErrConnClosed = errors.New("connection closed")

	// ErrStreamLagged means the consumer fell behind by more than the stream
	// buffer capacity and the oldest events were dropped. The stream is still
	// usable; the next Recv resumes from the oldest retained event.
	ErrStreamLagged = errors.New("stream lagged behind, oldest events dropped")

	// ErrStreamEmpty is returned from EventStream.TryRecv when no event is
	// buffered.
	ErrStreamEmpty = errors.New("no buffered event")
)

// writeTimeout bounds a single websocket write when the caller's context has
// no deadline of its own.
const writeTimeout = 10 * time.Second

// ConnStatus represents the websocket connection status.
type ConnStatus int

// The following constants represent every possible ConnStatus.
const (
	// StatusDisconnected means we're disconnected and not trying to connect.
	StatusDisconnected ConnStatus = iota

	// StatusConnecting means we're dialing the server right now.
	StatusConnecting

	// StatusConnected means the connection is ready and the receive loop is
	// running.
	StatusConnected

	// StatusReconnecting means the connection was lost and a Reconnector is
	// dialing again.
	StatusReconnecting

	// StatusFailed means the connection was lost for a reason other than a
	// clean close; StatusCause returns the reason.
	StatusFailed
)

// ConnStatusNames contains human-readable names for connection statuses.
var ConnStatusNames = map[ConnStatus]string{
	StatusDisconnected: "disconnected",
	StatusConnecting:   "connecting",
	StatusConnected:    "connected",
	StatusReconnecting: "reconnecting",
	StatusFailed:       "failed",
}

func (s ConnStatus) String() string {
	if name, ok := ConnStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// WSParams contains options for opening a websocket connection.
type WSParams struct {
	// URL is the websocket endpoint, e.g. "wss://api.ekiden.fi/ws".
	URL string

	// StreamCapacity is the per-channel event buffer size. Zero means
	// DefaultStreamCapacity.
	StreamCapacity int
}

// WSClient is a client of the Ekiden websocket API. It multiplexes channel
// subscriptions over a single connection; use NewWSClient to create one.
//
// All methods are safe for concurrent use.
type WSClient struct {
	params WSParams

	mtx    sync.Mutex
	status ConnStatus
	cause  error
	conn   *websocket.Conn
	subs   map[string]*broadcaster

	// dialing is true while a Connect call is in flight, so overlapping
	// Connect calls are rejected regardless of the displayed status.
	dialing bool

	// lastChannels remembers the channels that were subscribed when the
	// connection failed, so a Reconnector can replay them.
	lastChannels []string

	// notify is closed (and replaced) on every status change.
	notify chan struct{}

	// wmtx serializes writes to conn.
	wmtx sync.Mutex

	log *logrus.Entry
}

// NewWSClient creates a new websocket client with the given params. It does
// not connect; call Connect.
func NewWSClient(params *WSParams) (*WSClient, error) {
	if params == nil || params.URL == "" {
		return nil, errors.New("websocket URL is required")
	}

	return &WSClient{
		params: *params,
		status: StatusDisconnected,
		subs:   map[string]*broadcaster{},
		notify: make(chan struct{}),
		log:    logger.WithComponent("websocket").WithField("url", params.URL),
	}, nil
}

// URL returns the websocket endpoint this client connects to.
func (c *WSClient) URL() string {
	return c.params.URL
}

// Connect dials the server and starts the receive loop. If a connection is
// already established or being established, Connect returns
// ErrConnLoopActive. On dial failure the status rolls back to what it was
// before the call.
func (c *WSClient) Connect(ctx context.Context) error {
	c.mtx.Lock()
	if c.conn != nil || c.dialing {
		c.mtx.Unlock()
		return ErrConnLoopActive
	}

	c.dialing = true
	prev, prevCause := c.status, c.cause
	if prev != StatusReconnecting {
		c.setStatusLocked(StatusConnecting, nil)
	}
	c.mtx.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.params.URL, nil)

	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.dialing = false

	if err != nil {
		c.setStatusLocked(prev, prevCause)
		return errors.Annotatef(err, "dialing %s", c.params.URL)
	}

	c.conn = conn
	c.setStatusLocked(StatusConnected, nil)
	c.log.Debug("connection established")

	go c.receiveLoop(conn)

	return nil
}

// Disconnect closes the connection and every open stream. If not connected,
// returns ErrNotConnected.
func (c *WSClient) Disconnect() error {
	c.mtx.Lock()
	conn := c.conn
	if conn == nil {
		c.mtx.Unlock()
		return ErrNotConnected
	}

	c.conn = nil
	subs := c.subs
	c.subs = map[string]*broadcaster{}
	c.lastChannels = nil
	c.setStatusLocked(StatusDisconnected, nil)
	c.mtx.Unlock()

	// Best-effort close frame; closing the socket is what matters, it also
	// unblocks the receive loop.
	c.wmtx.Lock()
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.wmtx.Unlock()
	conn.Close()

	for _, b := range subs {
		b.close()
	}

	c.log.Debug("disconnected")
	return nil
}

// ConnStatus returns the current connection status.
func (c *WSClient) ConnStatus() ConnStatus {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.status
}

// StatusCause returns the error that moved the client into StatusFailed, or
// nil for every other status.
func (c *WSClient) StatusCause() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.cause
}

// IsConnected reports whether the connection is currently established.
func (c *WSClient) IsConnected() bool {
	return c.ConnStatus() == StatusConnected
}

// ActiveSubscriptions returns the sorted names of all subscribed channels.
func (c *WSClient) ActiveSubscriptions() []string {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	channels := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return channels
}

// IsSubscribed reports whether the client is subscribed to the channel.
func (c *WSClient) IsSubscribed(channel string) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	_, ok := c.subs[channel]
	return ok
}

// Subscribe subscribes to the channel and returns a stream of its events.
// Subscribing to an already subscribed channel resets it: streams opened by
// the earlier subscription are closed and a fresh subscribe request is sent.
func (c *WSClient) Subscribe(ctx context.Context, channel string) (*EventStream, error) {
	c.mtx.Lock()
	conn := c.conn
	if conn == nil {
		c.mtx.Unlock()
		return nil, ErrNotConnected
	}

	if old, ok := c.subs[channel]; ok {
		old.close()
	}
	b := newBroadcaster(c.params.StreamCapacity)
	c.subs[channel] = b
	c.mtx.Unlock()

	if err := c.send(ctx, conn, subscribeRequest(channel)); err != nil {
		c.mtx.Lock()
		if c.subs[channel] == b {
			delete(c.subs, channel)
		}
		c.mtx.Unlock()
		b.close()
		return nil, errors.Annotatef(err, "subscribing to %s", channel)
	}

	c.log.WithField("channel", channel).Debug("subscribed")
	return b.newStream(channel), nil
}

// Unsubscribe unsubscribes from the channel and closes all its streams.
// Unsubscribing from a channel that is not subscribed is a no-op.
func (c *WSClient) Unsubscribe(ctx context.Context, channel string) error {
	c.mtx.Lock()
	conn := c.conn
	b, ok := c.subs[channel]
	if ok {
		delete(c.subs, channel)
	}
	c.mtx.Unlock()

	if !ok {
		return nil
	}
	b.close()

	if conn == nil {
		return nil
	}

	if err := c.send(ctx, conn, unsubscribeRequest(channel)); err != nil {
		return errors.Annotatef(err, "unsubscribing from %s", channel)
	}

	c.log.WithField("channel", channel).Debug("unsubscribed")
	return nil
}

// Listen opens an additional stream on an already subscribed channel. Every
// stream on a channel receives every event independently.
func (c *WSClient) Listen(channel string) (*EventStream, error) {
	c.mtx.Lock()
	if c.conn == nil {
		c.mtx.Unlock()
		return nil, ErrNotConnected
	}
	b, ok := c.subs[channel]
	c.mtx.Unlock()

	if !ok {
		return nil, errors.Errorf("not subscribed to %q", channel)
	}
	return b.newStream(channel), nil
}

// SubscribeOrderbook subscribes to orderbook snapshots and updates for the
// market.
func (c *WSClient) SubscribeOrderbook(ctx context.Context, marketAddr string) (*EventStream, error) {
	return c.Subscribe(ctx, OrderbookChannel(marketAddr))
}

// SubscribeTrades subscribes to public trades for the market.
func (c *WSClient) SubscribeTrades(ctx context.Context, marketAddr string) (*EventStream, error) {
	return c.Subscribe(ctx, TradesChannel(marketAddr))
}

// SubscribeUser subscribes to private order, position and balance updates
// for the user.
func (c *WSClient) SubscribeUser(ctx context.Context, userAddr string) (*EventStream, error) {
	return c.Subscribe(ctx, UserChannel(userAddr))
}

// SubscribeCandles subscribes to candle updates for the market at the given
// interval.
func (c *WSClient) SubscribeCandles(ctx context.Context, marketAddr, interval string) (*EventStream, error) {
	return c.Subscribe(ctx, CandlesChannel(marketAddr, interval))
}

// Ping sends a ping frame. The server answers with a pong, which the client
// logs and discards.
func (c *WSClient) Ping(ctx context.Context) error {
	c.mtx.Lock()
	conn := c.conn
	c.mtx.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	return errors.Trace(c.send(ctx, conn, pingRequest()))
}

// send marshals the request and writes it to conn. Writes are serialized;
// the deadline comes from ctx, or writeTimeout if ctx has none.
func (c *WSClient) send(ctx context.Context, conn *websocket.Conn, req wsRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return errors.Trace(err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}

	c.wmtx.Lock()
	defer c.wmtx.Unlock()

	conn.SetWriteDeadline(deadline)
	return errors.Trace(conn.WriteMessage(websocket.TextMessage, data))
}

// receiveLoop reads frames from conn until it fails. The loop stops
// deterministically on Disconnect: closing the socket makes ReadMessage
// return, and handleReadError sees the conn is no longer current.
func (c *WSClient) receiveLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(conn, err)
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		c.dispatch(data)
	}
}

// handleReadError tears the connection down after a read failure, unless the
// failure belongs to a connection that was already replaced or closed.
func (c *WSClient) handleReadError(conn *websocket.Conn, err error) {
	c.mtx.Lock()
	if c.conn != conn {
		// Disconnect (or a reconnect) already took this connection over.
		c.mtx.Unlock()
		return
	}

	c.conn = nil
	subs := c.subs
	c.subs = map[string]*broadcaster{}

	channels := make([]string, 0, len(subs))
	for ch := range subs {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	c.lastChannels = channels

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.setStatusLocked(StatusDisconnected, nil)
	} else {
		c.setStatusLocked(StatusFailed, err)
	}
	c.mtx.Unlock()

	conn.Close()
	for _, b := range subs {
		b.close()
	}

	c.log.WithError(err).Debug("connection lost")
}

// dispatch routes a single received frame. Malformed frames and events for
// unknown channels are dropped with a log line; they never break the loop.
func (c *WSClient) dispatch(data []byte) {
	var resp wsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.log.WithError(err).Warn("dropping malformed frame")
		return
	}

	switch resp.Type {
	case msgTypePong:
		c.log.Debug("pong")

	case msgTypeSubscribed, msgTypeUnsubscribed:
		c.log.WithField("channel", resp.Channel).Debugf("server ack: %s", resp.Type)

	case msgTypeError:
		c.log.WithField("message", resp.Message).Warn("server error")

	case msgTypeEvent:
		ev, err := decodeEvent(resp.Data)
		if err != nil {
			c.log.WithError(err).WithField("channel", resp.Channel).Warn("dropping undecodable event")
			return
		}

		c.mtx.Lock()
		b := c.subs[resp.Channel]
		c.mtx.Unlock()

		if b == nil {
			c.log.WithField("channel", resp.Channel).Debug("event for unknown channel")
			return
		}
		b.send(ev)

	default:
		c.log.WithField("type", resp.Type).Debug("unknown frame type")
	}
}

// failedChannels returns the channels that were subscribed when the
// connection last failed.
func (c *WSClient) failedChannels() []string {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]string(nil), c.lastChannels...)
}

// statusChanged returns a channel that is closed on the next status change.
func (c *WSClient) statusChanged() <-chan struct{} {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.notify
}

// setStatusLocked updates status and cause and wakes status waiters. Caller
// holds c.mtx.
func (c *WSClient) setStatusLocked(status ConnStatus, cause error) {
	if c.status == status && errors.Cause(c.cause) == errors.Cause(cause) {
		return
	}

	c.status = status
	c.cause = cause

	close(c.notify)
	c.notify = make(chan struct{})
}

// beginReconnect moves the client into StatusReconnecting, unless a
// connection was established (or a dial started) in the meantime. It reports
// whether the move happened.
func (c *WSClient) beginReconnect() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.conn != nil || c.dialing {
		return false
	}

	c.setStatusLocked(StatusReconnecting, nil)
	return true
}
