package devserver

import (
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisnestrud/PlayPalace11/internal/clock"
	"github.com/chrisnestrud/PlayPalace11/packet"
)

func startServer(t *testing.T, opts ...Option) (*Server, string) {
	t.Helper()
	s := New(opts...)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, url string) *testClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) write(p packet.Packet) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(p))
}

func (c *testClient) read() packet.Packet {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	p, err := packet.Decode(data)
	require.NoError(c.t, err)
	return p
}

// readType skips packets until one of the given type arrives.
func (c *testClient) readType(typ string) packet.Packet {
	c.t.Helper()
	for {
		if p := c.read(); p.Type() == typ {
			return p
		}
	}
}

func (c *testClient) login(username, password string) packet.Packet {
	c.t.Helper()
	c.write(packet.Authorize(username, password, packet.DefaultProtocolVersion))
	return c.read()
}

// expectClosed reads until the server closes the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			assert.True(c.t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			return
		}
	}
}

func TestHealth(t *testing.T) {
	s := New()
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestAuthorizeAndPing(t *testing.T) {
	_, url := startServer(t, WithMOTD("hello there"))
	c := dial(t, url)

	ok := c.login("alice", "pw")
	assert.Equal(t, "authorize_success", ok.Type())
	assert.Equal(t, "alice", field(ok, "username"))
	assert.Equal(t, ServerVersion, field(ok, "version"))
	assert.Equal(t, "hello there", field(c.readType("speak"), "text"))

	c.write(packet.Packet{"type": "ping"})
	assert.Equal(t, "pong", c.readType("pong").Type())
}

func TestPacketsBeforeAuthorizeIgnored(t *testing.T) {
	_, url := startServer(t)
	c := dial(t, url)

	c.write(packet.Packet{"type": "ping"})
	assert.Equal(t, "authorize_success", c.login("alice", "pw").Type())
}

func TestInvalidPacketIgnored(t *testing.T) {
	_, url := startServer(t)
	c := dial(t, url)
	c.login("alice", "pw")

	c.write(packet.Packet{"type": "chat", "convo": "local"})
	c.write(packet.Packet{"type": "no_such_packet"})
	c.write(packet.Packet{"type": "ping"})
	assert.Equal(t, "pong", c.readType("pong").Type())
}

func TestChatRelay(t *testing.T) {
	s, url := startServer(t)
	alice := dial(t, url)
	alice.login("alice", "pw")
	bob := dial(t, url)
	bob.login("bob", "pw")
	assert.Equal(t, []string{"alice", "bob"}, s.Online())

	alice.write(packet.Packet{"type": "chat", "convo": "global", "message": "hi bob", "language": "English"})

	got := bob.readType("chat")
	assert.Equal(t, "alice", field(got, "sender"))
	assert.Equal(t, "hi bob", field(got, "message"))
	assert.Equal(t, "global", field(got, "convo"))
	assert.Equal(t, "English", field(got, "language"))

	echo := alice.readType("chat")
	assert.Equal(t, "hi bob", field(echo, "message"))
}

func TestListOnline(t *testing.T) {
	_, url := startServer(t, WithMOTD(""))
	c := dial(t, url)
	c.login("alice", "pw")

	c.write(packet.Packet{"type": "list_online"})
	assert.Equal(t, "1 online: alice", field(c.readType("speak"), "text"))
}

func TestAccounts(t *testing.T) {
	_, url := startServer(t, WithAccounts(map[string]string{"alice": "secret"}))

	bad := dial(t, url)
	p := bad.login("alice", "wrong")
	assert.Equal(t, "disconnect", p.Type())
	assert.True(t, p.Bool("return_to_login"))
	bad.expectClosed()

	unknown := dial(t, url)
	assert.Equal(t, "disconnect", unknown.login("mallory", "secret").Type())

	good := dial(t, url)
	assert.Equal(t, "authorize_success", good.login("alice", "secret").Type())
}

func TestLoginRateLimit(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	_, url := startServer(t, WithAccounts(map[string]string{"alice": "secret"}), WithClock(clk))

	for range maxFailures {
		c := dial(t, url)
		assert.Equal(t, "Invalid username or password.", field(c.login("alice", "wrong"), "message"))
	}

	c := dial(t, url)
	p := c.login("alice", "secret")
	assert.Equal(t, "disconnect", p.Type())
	assert.Contains(t, field(p, "message"), "Too many failed logins")

	clk.Advance(baseLockout)
	c = dial(t, url)
	assert.Equal(t, "authorize_success", c.login("alice", "secret").Type())
}

func TestCommands(t *testing.T) {
	_, url := startServer(t)

	t.Run("restart", func(t *testing.T) {
		c := dial(t, url)
		c.login("alice", "pw")
		c.write(packet.Packet{"type": "slash_command", "command": "restart"})
		p := c.readType("disconnect")
		assert.True(t, p.Bool("reconnect"))
		n, ok := p.Number("retry_after")
		require.True(t, ok)
		assert.Equal(t, float64(DefaultRetryAfter), n)
		assert.Equal(t, "restarting", field(p, "status_mode"))
		c.expectClosed()
	})

	t.Run("quit", func(t *testing.T) {
		c := dial(t, url)
		c.login("alice", "pw")
		c.write(packet.Packet{"type": "slash_command", "command": "quit"})
		assert.True(t, c.readType("disconnect").Bool("return_to_login"))
		c.expectClosed()
	})

	t.Run("menu", func(t *testing.T) {
		c := dial(t, url)
		c.login("alice", "pw")
		c.write(packet.Packet{"type": "slash_command", "command": "menu"})
		p := c.readType("menu")
		assert.Equal(t, "main_menu", field(p, "menu_id"))
		assert.Len(t, p["items"], 3)
	})

	t.Run("input", func(t *testing.T) {
		c := dial(t, url)
		c.login("alice", "pw")
		c.write(packet.Packet{"type": "slash_command", "command": "input"})
		assert.Equal(t, "dev_input", field(c.readType("request_input"), "input_id"))
		c.write(packet.Packet{"type": "editbox", "input_id": "dev_input", "text": "typed"})
		assert.Equal(t, "You entered: typed", field(c.readType("speak"), "text"))
	})
}

func TestCloseDisconnectsClients(t *testing.T) {
	s, url := startServer(t)
	c := dial(t, url)
	c.login("alice", "pw")

	s.Close()
	p := c.readType("disconnect")
	assert.True(t, p.Bool("reconnect"))
	c.expectClosed()
}

func TestRateLimiterBackoff(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rl := newLoginRateLimiter(clk)

	for range maxFailures + 1 {
		rl.recordFailure("alice")
	}
	blocked, retry := rl.check("alice")
	assert.True(t, blocked)
	assert.Equal(t, 2*baseLockout, retry)

	rl.recordSuccess("alice")
	blocked, _ = rl.check("alice")
	assert.False(t, blocked)

	rl.recordFailure("bob")
	clk.Advance(attemptExpiry + time.Second)
	blocked, _ = rl.check("bob")
	assert.False(t, blocked)
	assert.Empty(t, rl.attempts)
}

func TestSelfSignedCertificate(t *testing.T) {
	cert, err := SelfSignedCertificate("localhost", "127.0.0.1")
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)
	assert.Equal(t, []string{"localhost"}, cert.Leaf.DNSNames)
	require.Len(t, cert.Leaf.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", cert.Leaf.IPAddresses[0].String())
	assert.NoError(t, cert.Leaf.VerifyHostname("localhost"))

	pool := x509.NewCertPool()
	pool.AddCert(cert.Leaf)
	_, err = cert.Leaf.Verify(x509.VerifyOptions{Roots: pool, DNSName: "localhost"})
	assert.NoError(t, err)
}
