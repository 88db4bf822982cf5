// Package transport runs one background task per server connection. The
// task owns the WebSocket exclusively; callers reach it only through Send
// and observe it only through the event channel.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/awnumar/memguard"
	"github.com/gorilla/websocket"

	"github.com/chrisnestrud/PlayPalace11/packet"
)

var (
	// ErrNotConnected is returned by Send before the socket is open or after it closed.
	ErrNotConnected = errors.New("not connected")
	// ErrSendQueueFull is returned when the outbound queue cannot take another packet.
	ErrSendQueueFull = errors.New("send queue full")
)

const (
	defaultSendQueue = 64
	closeGrace       = time.Second
)

// Connector opens the (possibly TLS-secured) WebSocket for a server.
type Connector interface {
	Connect(ctx context.Context, serverID, rawURL string) (*websocket.Conn, error)
}

// Config describes one connection.
type Config struct {
	ConnID   uint64
	ServerID string
	URL      string
	Username string
	// Password is opened only long enough to build the authorize packet.
	Password *memguard.Enclave

	Connector Connector
	Validator *packet.Validator
	// Events receives every event for this connection, ending with one EventClosed.
	Events chan<- Event
	// Done stops event delivery when the receiver goes away.
	Done <-chan struct{}

	ProtocolVersion packet.ProtocolVersion
	SendQueue       int
	DebugPackets    bool
	Logger          *slog.Logger
}

// Transport is a handle on a running connection task.
type Transport struct {
	cfg    Config
	logger *slog.Logger

	outbound chan []byte
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	connected atomic.Bool
	requested atomic.Bool
	invalid   atomic.Int64
}

// Open starts the connection task and returns immediately. The outcome is
// reported on cfg.Events.
func Open(ctx context.Context, cfg Config) *Transport {
	if cfg.Validator == nil {
		cfg.Validator = packet.NewValidator()
	}
	if cfg.ProtocolVersion == (packet.ProtocolVersion{}) {
		cfg.ProtocolVersion = packet.DefaultProtocolVersion
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaultSendQueue
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	t := &Transport{
		cfg:      cfg,
		logger:   logger.With("conn_id", cfg.ConnID, "server_id", cfg.ServerID),
		outbound: make(chan []byte, cfg.SendQueue),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go t.run(context.WithoutCancel(ctx))
	return t
}

// ID returns the connection id events are tagged with.
func (t *Transport) ID() uint64 { return t.cfg.ConnID }

// Connected reports whether the socket is open and authorize has been sent.
func (t *Transport) Connected() bool { return t.connected.Load() }

// ValidationErrors returns how many packets failed schema validation in
// either direction.
func (t *Transport) ValidationErrors() int64 { return t.invalid.Load() }

// Send validates p and queues it for the connection task. It never waits
// on network I/O. An invalid packet is counted and never reaches the socket.
func (t *Transport) Send(p packet.Packet) error {
	if err := t.cfg.Validator.Validate(p, packet.Outgoing); err != nil {
		n := t.invalid.Add(1)
		t.logger.Warn("blocked invalid outgoing packet", "packet_type", p.Type(), "count", n, "error", err)
		return fmt.Errorf("send %q: %w", p.Type(), err)
	}
	if !t.connected.Load() {
		return ErrNotConnected
	}
	data, err := packet.Encode(p)
	if err != nil {
		return err
	}
	if t.cfg.DebugPackets {
		t.logger.Debug("queue packet", "packet_type", p.Type(), "packet", packet.Redact(p))
	}
	select {
	case <-t.done:
		return ErrNotConnected
	default:
	}
	select {
	case t.outbound <- data:
		return nil
	case <-t.done:
		return ErrNotConnected
	default:
		return ErrSendQueueFull
	}
}

// Stop asks the connection task to close. It does not wait.
func (t *Transport) Stop() {
	t.stopOnce.Do(func() {
		t.requested.Store(true)
		close(t.stop)
	})
}

// Wait blocks until the connection task has exited or timeout elapses. It
// reports whether the task exited.
func (t *Transport) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}

// Done is closed when the connection task has exited.
func (t *Transport) Done() <-chan struct{} { return t.done }

// Disconnect stops the task and, when wait is set, joins it for up to timeout.
func (t *Transport) Disconnect(wait bool, timeout time.Duration) bool {
	t.Stop()
	if !wait {
		return true
	}
	return t.Wait(timeout)
}

func (t *Transport) emit(ev Event) {
	ev.ConnID = t.cfg.ConnID
	select {
	case t.cfg.Events <- ev:
	case <-t.cfg.Done:
	}
}

func (t *Transport) run(ctx context.Context) {
	var (
		conn   *websocket.Conn
		runErr error
	)
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("connection task panic: %v", r)
			t.logger.Error("connection task panicked", "panic", r)
		}
		t.connected.Store(false)
		if conn != nil {
			conn.Close()
		}
		requested := t.requested.Load()
		if runErr != nil && !requested {
			t.logger.Warn("connection closed", "error", runErr)
		} else {
			t.logger.Info("connection closed", "requested", requested)
		}
		close(t.done)
		t.emit(Event{Kind: EventClosed, Err: runErr, Requested: requested})
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-t.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	data, err := t.authorizeFrame()
	if err != nil {
		runErr = err
		return
	}

	t.logger.Info("connecting", "url", t.cfg.URL)
	conn, err = t.cfg.Connector.Connect(ctx, t.cfg.ServerID, t.cfg.URL)
	if err != nil {
		if t.requested.Load() {
			return
		}
		runErr = err
		return
	}

	err = conn.WriteMessage(websocket.TextMessage, data)
	clear(data)
	if err != nil {
		runErr = fmt.Errorf("sending authorize: %w", err)
		return
	}
	t.connected.Store(true)
	t.logger.Info("authorize sent", "username", t.cfg.Username)
	t.emit(Event{Kind: EventOpened})

	runErr = t.loop(conn)
}

// authorizeFrame builds and encodes the authorize packet. The password
// string aliases the enclave's locked buffer, so everything that reads it
// runs before the buffer is destroyed.
func (t *Transport) authorizeFrame() ([]byte, error) {
	var password string
	if t.cfg.Password != nil {
		buf, err := t.cfg.Password.Open()
		if err != nil {
			return nil, fmt.Errorf("opening password enclave: %w", err)
		}
		defer buf.Destroy()
		password = buf.String()
	}
	auth := packet.Authorize(t.cfg.Username, password, t.cfg.ProtocolVersion)
	defer clear(auth)
	if err := t.cfg.Validator.Validate(auth, packet.Outgoing); err != nil {
		t.invalid.Add(1)
		return nil, fmt.Errorf("authorize packet rejected locally: %w", err)
	}
	return packet.Encode(auth)
}

type frame struct {
	data []byte
	err  error
}

// loop multiplexes inbound frames, queued sends and the stop signal. It
// returns nil for a requested stop or a normal remote close.
func (t *Transport) loop(conn *websocket.Conn) error {
	frames := make(chan frame)
	readerDone := make(chan struct{})
	defer close(readerDone)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			select {
			case frames <- frame{data: data, err: err}:
			case <-readerDone:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-t.stop:
			deadline := time.Now().Add(closeGrace)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return nil

		case data := <-t.outbound:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("writing packet: %w", err)
			}

		case f := <-frames:
			if f.err != nil {
				if websocket.IsCloseError(f.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return fmt.Errorf("reading packet: %w", f.err)
			}
			p, err := packet.Decode(f.data)
			if err != nil {
				return err
			}
			t.receive(p)
		}
	}
}

func (t *Transport) receive(p packet.Packet) {
	if err := t.cfg.Validator.Validate(p, packet.Incoming); err != nil {
		n := t.invalid.Add(1)
		t.logger.Warn("ignored invalid server packet", "packet_type", p.Type(), "count", n, "error", err)
		t.emit(Event{Kind: EventActivity, Message: fmt.Sprintf("Ignored invalid server packet #%d: %v", n, err)})
		return
	}
	if t.cfg.DebugPackets {
		t.logger.Debug("received packet", "packet_type", p.Type(), "packet", packet.Redact(p))
	}
	t.emit(Event{Kind: EventPacket, Packet: p})
}
