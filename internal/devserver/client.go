package devserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chrisnestrud/PlayPalace11/packet"
)

const writeWait = 10 * time.Second

type client struct {
	srv        *Server
	conn       *websocket.Conn
	remoteAddr string
	logger     *slog.Logger

	writeMu  sync.Mutex
	username string
	closed   bool
}

func newClient(srv *Server, conn *websocket.Conn, remoteAddr string) *client {
	return &client{
		srv:        srv,
		conn:       conn,
		remoteAddr: remoteAddr,
		logger:     srv.logger.With("remote_addr", remoteAddr),
	}
}

func (c *client) serve(ctx context.Context) {
	defer c.close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read failed", "error", err)
			}
			return
		}
		p, err := packet.Decode(data)
		if err != nil {
			c.logger.Warn("undecodable frame", "error", err)
			return
		}
		if err := c.srv.validator.Validate(p, packet.Outgoing); err != nil {
			c.logger.Warn("invalid client packet", "packet_type", p.Type(), "error", err)
			continue
		}
		if !c.handle(ctx, p) {
			return
		}
	}
}

// handle processes one packet and reports whether the connection stays open.
func (c *client) handle(ctx context.Context, p packet.Packet) bool {
	if c.username == "" {
		if p.Type() != "authorize" {
			c.logger.Warn("packet before authorize", "packet_type", p.Type())
			return true
		}
		return c.authorize(ctx, p)
	}

	switch p.Type() {
	case "ping":
		c.send(packet.Packet{"type": "pong"})
	case "chat":
		c.chat(p)
	case "list_online", "list_online_with_games":
		online := c.srv.Online()
		c.speak(fmt.Sprintf("%d online: %s", len(online), strings.Join(online, ", ")))
	case "slash_command":
		return c.command(p)
	case "editbox":
		c.speak("You entered: " + field(p, "text"))
	default:
		c.logger.Debug("packet ignored", "packet_type", p.Type())
	}
	return true
}

func (c *client) authorize(ctx context.Context, p packet.Packet) bool {
	username := field(p, "username")
	if blocked, retry := c.srv.limiter.check(username); blocked {
		c.srv.audit.logFailure(ctx, auditLoginRateLimited, c.remoteAddr, username)
		c.sendDisconnect(packet.Packet{
			"type":            "disconnect",
			"message":         fmt.Sprintf("Too many failed logins. Try again in %d seconds.", int(retry.Seconds())+1),
			"return_to_login": true,
		})
		return false
	}
	if !c.srv.checkPassword(username, field(p, "password")) {
		c.srv.limiter.recordFailure(username)
		c.srv.audit.logFailure(ctx, auditLoginFailure, c.remoteAddr, username)
		c.sendDisconnect(packet.Packet{
			"type":            "disconnect",
			"message":         "Invalid username or password.",
			"return_to_login": true,
		})
		return false
	}
	c.srv.limiter.recordSuccess(username)

	c.username = username
	c.srv.join(c)
	c.srv.audit.logEvent(ctx, auditLoginSuccess, c.remoteAddr, username)

	c.send(packet.Packet{"type": "authorize_success", "username": username, "version": ServerVersion})
	if c.srv.motd != "" {
		c.speak(c.srv.motd)
	}
	c.srv.broadcast(packet.Packet{"type": "speak", "text": username + " has connected."}, c)
	return true
}

func (c *client) chat(p packet.Packet) {
	out := packet.Packet{
		"type":    "chat",
		"convo":   field(p, "convo"),
		"sender":  c.username,
		"message": field(p, "message"),
	}
	if lang := field(p, "language"); lang != "" {
		out["language"] = lang
	}
	c.send(out)
	c.srv.broadcast(out, c)
}

// command runs a slash command. It reports whether the connection stays open.
func (c *client) command(p packet.Packet) bool {
	switch field(p, "command") {
	case "quit", "logout":
		c.sendDisconnect(packet.Packet{
			"type":            "disconnect",
			"message":         "Goodbye.",
			"return_to_login": true,
		})
		return false
	case "restart":
		c.sendDisconnect(packet.Packet{
			"type":        "disconnect",
			"message":     "Server restarting.",
			"reconnect":   true,
			"retry_after": DefaultRetryAfter,
			"status_mode": "restarting",
		})
		return false
	case "menu":
		c.send(packet.Packet{
			"type":    "menu",
			"menu_id": "main_menu",
			"items": []any{
				map[string]any{"id": "play", "text": "Play"},
				map[string]any{"id": "options", "text": "Options"},
				map[string]any{"id": "logout", "text": "Logout"},
			},
		})
	case "input":
		c.send(packet.Packet{"type": "request_input", "input_id": "dev_input", "prompt": "Say something"})
	default:
		c.speak("Unknown command: " + field(p, "command"))
	}
	return true
}

func (c *client) speak(text string) {
	c.send(packet.Packet{"type": "speak", "text": text})
}

// send writes p to the client. Packets that fail the incoming schema are
// logged and dropped.
func (c *client) send(p packet.Packet) {
	if err := c.srv.validator.Validate(p, packet.Incoming); err != nil {
		c.logger.Error("refusing to send invalid packet", "packet_type", p.Type(), "error", err)
		return
	}
	data, err := packet.Encode(p)
	if err != nil {
		c.logger.Error("encoding packet", "error", err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debug("write failed", "error", err)
	}
}

// sendDisconnect sends p and closes the connection with a normal close frame.
func (c *client) sendDisconnect(p packet.Packet) {
	c.send(p)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.closed = true
	c.conn.Close()
}

func (c *client) close() {
	if c.username != "" {
		c.srv.leave(c)
		c.srv.broadcast(packet.Packet{"type": "speak", "text": c.username + " has disconnected."}, c)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.closed {
		c.closed = true
		c.conn.Close()
	}
}

// field returns p[key] when it is a string.
func field(p packet.Packet, key string) string {
	s, _ := p.String(key)
	return s
}
