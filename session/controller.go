// Package session drives a client's connection lifecycle: connect,
// authorize, disconnect and server-directed reconnect. Packet handlers run
// on the goroutine that calls Controller.Run.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/chrisnestrud/PlayPalace11/internal/clock"
	"github.com/chrisnestrud/PlayPalace11/packet"
	"github.com/chrisnestrud/PlayPalace11/transport"
)

var (
	// ErrConnectCanceled is returned when the user declined the server's certificate.
	ErrConnectCanceled = errors.New("connection canceled")
	// ErrAuthorizeTimeout is returned when authorize_success does not arrive in time.
	ErrAuthorizeTimeout = errors.New("timed out waiting for authorization")
	// ErrConnectFailed is returned when the connection closed before authorizing.
	ErrConnectFailed = errors.New("connection failed")
	// ErrNotConnected is returned when sending without an open connection.
	ErrNotConnected = transport.ErrNotConnected
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("controller closed")
)

// Controller owns the session state machine. AttemptConnect, Disconnect
// and HandleUserInput may be called from any goroutine except the one
// running Run.
type Controller struct {
	handler EventHandler
	opener  Opener
	trust   TrustPreparer
	options OptionsSource

	clock            clock.Clock
	logger           *slog.Logger
	authorizeTimeout time.Duration
	joinTimeout      time.Duration

	events  chan transport.Event
	notices chan string

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	// attemptMu serializes connection attempts.
	attemptMu sync.Mutex

	mu           sync.Mutex
	state        State
	link         Link
	connSeq      uint64
	creds        *Credentials
	authCh       chan error
	reconnect    *clock.Timer
	pendingInput string
	menu         menuState
	pingStart    time.Time
}

// New returns a Controller. trust may be nil when every server is plain ws.
func New(handler EventHandler, opener Opener, trust TrustPreparer, opts ...Option) *Controller {
	if handler == nil {
		handler = BaseHandler{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		handler:          handler,
		opener:           opener,
		trust:            trust,
		clock:            clock.Real(),
		logger:           slog.New(slog.DiscardHandler),
		authorizeTimeout: DefaultAuthorizeTimeout,
		joinTimeout:      DefaultJoinTimeout,
		events:           make(chan transport.Event, eventBuffer),
		notices:          make(chan string, noticeBuffer),
		ctx:              ctx,
		cancel:           cancel,
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run pumps connection events into the handler until ctx is done or the
// controller is closed.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case ev := <-c.events:
			c.handleEvent(ev)
		case msg := <-c.notices:
			c.handler.OnActivity(msg)
		}
	}
}

// Close disconnects, cancels any scheduled reconnect and stops Run.
func (c *Controller) Close() error {
	err := c.Disconnect(true, c.joinTimeout)
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.done)
	})
	return err
}

// AttemptConnect connects and authorizes with creds, blocking until the
// server accepts the login or the attempt fails. Any previous connection is
// stopped and joined first.
func (c *Controller) AttemptConnect(ctx context.Context, creds *Credentials) error {
	c.attemptMu.Lock()
	defer c.attemptMu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.cancelReconnect()
	if err := c.Disconnect(true, c.joinTimeout); err != nil {
		c.logger.Warn("previous connection did not stop cleanly", "error", err)
	}

	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
	log := c.logger.With("credentials", creds)

	if c.trust != nil {
		ok, err := c.trust.PrepareTrust(ctx, creds.ServerID, creds.URL)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConnectFailed, err)
		}
		if !ok {
			log.Info("connection canceled at trust prompt")
			return ErrConnectCanceled
		}
	}

	id, authCh, err := c.startLink(ctx, creds)
	if err != nil {
		return err
	}
	log = log.With("conn_id", id)
	log.Info("waiting for authorization", "timeout", c.authorizeTimeout)

	timeout := c.clock.After(c.authorizeTimeout)
	var result error
	select {
	case result = <-authCh:
	case <-timeout:
		result = ErrAuthorizeTimeout
	case <-ctx.Done():
		result = ctx.Err()
	case <-c.done:
		result = ErrClosed
	}
	if result != nil {
		// authorize_success may have landed while the wait gave up.
		select {
		case late := <-authCh:
			if late == nil {
				result = nil
			}
		default:
		}
	}

	if result != nil {
		c.abandon(id, authCh)
		log.Warn("connection attempt failed", "error", result)
		return result
	}
	log.Info("authorized")
	c.pushClientOptions(creds.ServerID)
	return nil
}

func (c *Controller) startLink(ctx context.Context, creds *Credentials) (uint64, chan error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Disconnecting && c.link == nil {
		// An earlier Disconnect is still joining its detached task.
		_ = c.setState(Idle)
	}
	if err := c.setState(Connecting); err != nil {
		return 0, nil, err
	}
	c.connSeq++
	id := c.connSeq
	authCh := make(chan error, 1)
	link, err := c.opener.Open(ctx, OpenRequest{
		ConnID:      id,
		Credentials: creds,
		Events:      c.events,
		Done:        c.done,
	})
	if err != nil {
		_ = c.setState(Idle)
		return 0, nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	c.link = link
	c.authCh = authCh
	if err := c.setState(Authorizing); err != nil {
		return 0, nil, err
	}
	return id, authCh, nil
}

// abandon tears down a failed attempt. The link is stopped only if it is
// still attached; a link that already reported closing is not stopped again.
func (c *Controller) abandon(id uint64, authCh chan error) {
	c.mu.Lock()
	if c.authCh == authCh {
		c.authCh = nil
	}
	var link Link
	if c.link != nil && c.link.ID() == id {
		link = c.link
		c.link = nil
	}
	if c.state != Idle {
		_ = c.setState(Idle)
	}
	c.mu.Unlock()

	if link != nil {
		link.Stop()
		if !link.Wait(c.joinTimeout) {
			c.logger.Warn("connection task did not exit", "conn_id", id)
		}
	}
}

// Disconnect closes the current connection, if any, and cancels a
// scheduled reconnect. With wait set it joins the connection task for up
// to timeout.
func (c *Controller) Disconnect(wait bool, timeout time.Duration) error {
	c.cancelReconnect()

	c.mu.Lock()
	link := c.link
	if link == nil {
		c.mu.Unlock()
		return nil
	}
	c.link = nil
	seq := c.connSeq
	if err := c.setState(Disconnecting); err != nil {
		c.logger.Warn("disconnect from unexpected state", "error", err)
	}
	c.releaseAuthLocked(ErrConnectCanceled)
	c.resetSessionLocked()
	c.mu.Unlock()

	link.Stop()
	var err error
	if wait && !link.Wait(timeout) {
		err = fmt.Errorf("connection %d did not stop within %s", link.ID(), timeout)
	}

	c.mu.Lock()
	// A reconnect may have started while the old task was being joined.
	if c.link == nil && c.connSeq == seq && c.state != Idle {
		_ = c.setState(Idle)
	}
	c.mu.Unlock()
	return err
}

// setState must be called with mu held. Re-entering the current state is a no-op.
func (c *Controller) setState(to State) error {
	if c.state == to {
		return nil
	}
	if err := checkTransition(c.state, to); err != nil {
		return err
	}
	c.logger.Debug("state change", "from", c.state, "to", to)
	c.state = to
	return nil
}

// releaseAuthLocked resolves a pending authorize wait. mu must be held;
// the channel is buffered so this never blocks.
func (c *Controller) releaseAuthLocked(result error) {
	if c.authCh == nil {
		return
	}
	c.authCh <- result
	c.authCh = nil
}

func (c *Controller) resetSessionLocked() {
	c.pendingInput = ""
	c.menu = menuState{}
	c.pingStart = time.Time{}
}

func (c *Controller) currentLink(connID uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil && c.link.ID() == connID
}

func (c *Controller) handleEvent(ev transport.Event) {
	if !c.currentLink(ev.ConnID) {
		c.logger.Debug("dropping event from stale connection", "conn_id", ev.ConnID, "kind", ev.Kind)
		return
	}
	switch ev.Kind {
	case transport.EventOpened:
		c.logger.Debug("connection opened", "conn_id", ev.ConnID)
	case transport.EventActivity:
		c.handler.OnActivity(ev.Message)
	case transport.EventPacket:
		c.handlePacket(ev.ConnID, ev.Packet)
	case transport.EventClosed:
		c.handleClosed(ev)
	}
}

func (c *Controller) handleClosed(ev transport.Event) {
	c.mu.Lock()
	if c.link == nil || c.link.ID() != ev.ConnID {
		c.mu.Unlock()
		return
	}
	c.link = nil
	if c.state != Idle {
		if err := c.setState(Idle); err != nil {
			c.logger.Warn("unexpected close", "error", err)
		}
	}
	cause := ev.Err
	if cause == nil {
		cause = errors.New("connection closed by server")
	}
	c.releaseAuthLocked(fmt.Errorf("%w: %w", ErrConnectFailed, cause))
	c.resetSessionLocked()
	c.mu.Unlock()

	if !ev.Requested {
		c.logger.Warn("connection lost", "conn_id", ev.ConnID, "error", ev.Err)
		c.handler.OnConnectionLost(ev.Err)
	}
}

func (c *Controller) handlePacket(connID uint64, p packet.Packet) {
	switch p.Type() {
	case "authorize_success":
		c.onAuthorized(connID)
	case "request_input":
		id, _ := p.String("input_id")
		c.mu.Lock()
		c.pendingInput = id
		c.mu.Unlock()
	case "menu":
		c.mu.Lock()
		c.menu = newMenuState(p)
		c.mu.Unlock()
	case "clear_ui":
		c.mu.Lock()
		c.menu = menuState{}
		c.mu.Unlock()
	case "pong":
		c.onPong()
	case "get_playlist_duration":
		c.answerPlaylistDuration(p)
	}

	dispatch(c.handler, p)

	if p.Type() == "disconnect" {
		c.onServerDisconnect(connID, p)
	}
}

func (c *Controller) onAuthorized(connID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil || c.link.ID() != connID {
		return
	}
	if err := c.setState(Connected); err != nil {
		c.logger.Warn("ignoring authorize_success", "error", err)
		return
	}
	c.releaseAuthLocked(nil)
}

func (c *Controller) onPong() {
	c.mu.Lock()
	start := c.pingStart
	c.pingStart = time.Time{}
	c.mu.Unlock()
	if start.IsZero() {
		return
	}
	elapsed := c.clock.Now().Sub(start)
	c.handler.OnActivity(fmt.Sprintf("Ping: %dms", elapsed.Milliseconds()))
}

func (c *Controller) answerPlaylistDuration(p packet.Packet) {
	reply := packet.Packet{
		"type":          "playlist_duration_response",
		"playlist_id":   p["playlist_id"],
		"duration_type": "total",
		"duration":      0,
	}
	if id, ok := p.String("request_id"); ok {
		reply["request_id"] = id
	}
	if dt, ok := p.String("duration_type"); ok {
		reply["duration_type"] = dt
	}
	if err := c.send(reply); err != nil {
		c.logger.Warn("playlist duration reply failed", "error", err)
	}
}

func (c *Controller) onServerDisconnect(connID uint64, p packet.Packet) {
	c.mu.Lock()
	var link Link
	if c.link != nil && c.link.ID() == connID {
		link = c.link
		c.link = nil
		_ = c.setState(Disconnecting)
	}
	msg, _ := p.String("message")
	if msg == "" {
		msg = "server requested disconnect"
	}
	c.releaseAuthLocked(fmt.Errorf("%w: %s", ErrConnectFailed, msg))
	c.resetSessionLocked()
	creds := c.creds
	c.mu.Unlock()

	if link != nil {
		link.Stop()
		c.mu.Lock()
		_ = c.setState(Idle)
		c.mu.Unlock()
	}

	log := c.logger.With("conn_id", connID)
	if p.Bool("return_to_login") {
		log.Info("server disconnect, returning to login")
		c.handler.OnActivity("Disconnected. Returning to login.")
		return
	}
	if !p.Bool("reconnect") || creds == nil {
		log.Info("server disconnect")
		return
	}

	delay := defaultReconnectDelay
	if n, ok := p.Number("retry_after"); ok {
		delay = max(minReconnectDelay, time.Duration(math.Ceil(n))*time.Second)
	}
	if mode, ok := p.String("status_mode"); ok && mode != "" {
		c.handler.OnActivity(fmt.Sprintf("Server status is %s.", mode))
	}
	c.handler.OnActivity(fmt.Sprintf("Reconnecting in %d seconds...", int(delay/time.Second)))
	log.Info("server disconnect, reconnect scheduled", "delay", delay)
	c.scheduleReconnect(delay, creds)
}

func (c *Controller) scheduleReconnect(delay time.Duration, creds *Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconnect != nil {
		c.reconnect.Stop()
	}
	var timer *clock.Timer
	timer = c.clock.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.reconnect == timer {
			c.reconnect = nil
		}
		c.mu.Unlock()
		go c.reconnectWith(creds)
	})
	c.reconnect = timer
}

func (c *Controller) cancelReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

func (c *Controller) reconnectWith(creds *Credentials) {
	select {
	case <-c.done:
		return
	default:
	}
	c.notify("Reconnecting...")
	if err := c.AttemptConnect(c.ctx, creds); err != nil {
		c.logger.Warn("reconnect failed", "error", err)
		c.notify("Reconnect failed.")
		return
	}
	c.notify("Reconnected.")
}

// notify queues msg for OnActivity on the Run goroutine. It must not be
// called from that goroutine.
func (c *Controller) notify(msg string) {
	select {
	case c.notices <- msg:
	case <-c.done:
	}
}

func (c *Controller) pushClientOptions(serverID string) {
	if c.options == nil {
		return
	}
	opts, err := c.options.ClientOptions(serverID)
	if err != nil {
		c.logger.Warn("loading client options", "server_id", serverID, "error", err)
		return
	}
	if opts == nil {
		return
	}
	if err := c.send(packet.Packet{"type": "client_options", "options": opts}); err != nil {
		c.logger.Warn("sending client options", "error", err)
	}
}

// send validates and queues p on the current link. Validation failures
// are returned as activity-ready errors.
func (c *Controller) send(p packet.Packet) error {
	c.mu.Lock()
	link := c.link
	c.mu.Unlock()
	if link == nil {
		return ErrNotConnected
	}
	err := link.Send(p)
	if err == nil {
		return nil
	}
	var schemaErr *packet.SchemaError
	if errors.As(err, &schemaErr) || errors.Is(err, packet.ErrUnknownType) || errors.Is(err, packet.ErrMissingType) {
		return fmt.Errorf("blocked invalid outgoing packet #%d: %w", link.ValidationErrors(), err)
	}
	return err
}
