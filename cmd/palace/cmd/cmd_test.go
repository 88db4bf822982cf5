package cmd

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisnestrud/PlayPalace11/config"
	"github.com/chrisnestrud/PlayPalace11/packet"
	"github.com/chrisnestrud/PlayPalace11/profile"
	"github.com/chrisnestrud/PlayPalace11/tlstrust"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	err := rootCmd.Execute()
	return out.String(), err
}

var idPattern = regexp.MustCompile(`\(([0-9a-f-]{36})\)`)

func extractID(t *testing.T, out string) string {
	t.Helper()
	m := idPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, "no id in %q", out)
	return m[1]
}

func testCertInfo() *tlstrust.CertificateInfo {
	return &tlstrust.CertificateInfo{
		Host:               "play.example",
		CommonName:         "play.example",
		Issuer:             "CN=play.example",
		ValidFrom:          time.Now().Add(-time.Hour),
		ValidTo:            time.Now().Add(time.Hour),
		FingerprintHex:     "ABCD",
		FingerprintDisplay: "AB:CD",
		MatchesHost:        true,
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestProfileCommands(t *testing.T) {
	t.Setenv(config.EnvVar, "")
	dir := t.TempDir()
	run := func(stdin string, args ...string) (string, error) {
		return runCLI(t, stdin, append([]string{"--data-dir", dir}, args...)...)
	}

	out, err := run("", "server", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No servers")

	_, err = run("", "server", "add", "Bad", "https://play.example")
	require.ErrorIs(t, err, profile.ErrInvalidServerURL)

	out, err = run("", "server", "add", "Home", "ws://127.0.0.1:8000")
	require.NoError(t, err)
	serverID := extractID(t, out)

	out, err = run("", "server", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Home")
	assert.Contains(t, out, "ws://127.0.0.1:8000")

	out, err = run("hunter2\n", "identity", "add", serverID, "alice")
	require.NoError(t, err)
	identityID := extractID(t, out)

	out, err = run("", "identity", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, identityID)

	_, err = run("", "options", "set", serverID, "audio.music_volume", "40")
	require.NoError(t, err)
	out, err = run("", "options", "show", serverID)
	require.NoError(t, err)
	assert.Contains(t, out, "music_volume: 40")
	assert.Contains(t, out, "chat_input_language: English")

	out, err = run("", "trust", "show", serverID)
	require.NoError(t, err)
	assert.Contains(t, out, "No certificate pinned")
	out, err = run("", "trust", "clear", serverID)
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")

	_, err = run("", "identity", "remove", identityID)
	require.NoError(t, err)
	_, err = run("", "server", "remove", serverID)
	require.NoError(t, err)
	out, err = run("", "server", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No servers")
}

func TestIdentityAddNoPassword(t *testing.T) {
	t.Setenv(config.EnvVar, "")
	dir := t.TempDir()
	out, err := runCLI(t, "", "--data-dir", dir, "server", "add", "Home", "ws://127.0.0.1:8000")
	require.NoError(t, err)

	_, err = runCLI(t, "", "--data-dir", dir, "identity", "add", extractID(t, out), "alice")
	require.ErrorIs(t, err, errNoInput)
}

func TestConsoleHandler(t *testing.T) {
	var buf bytes.Buffer
	h := newConsoleHandler(&buf, termenv.WithProfile(termenv.Ascii))

	h.OnAuthorizeSuccess(packet.Packet{"type": "authorize_success", "username": "alice", "version": "11.0.0"})
	h.OnChat(packet.Packet{"type": "chat", "convo": "global", "sender": "bob", "message": "hi"})
	h.OnChat(packet.Packet{"type": "chat", "convo": "local", "sender": "bob", "message": "psst"})
	h.OnSpeak(packet.Packet{"type": "speak", "text": "Welcome"})
	h.OnMenu(packet.Packet{"type": "menu", "menu_id": "main", "items": []any{
		map[string]any{"id": "play", "text": "Play"},
		"Quit",
	}})
	h.OnRequestInput(packet.Packet{"type": "request_input", "input_id": "i", "prompt": "Name", "default_value": "x"})
	h.OnActivity("Ping: 12ms")
	h.OnConnectionLost(errors.New("eof"))

	want := []string{
		"Logged in as alice (server 11.0.0).",
		"[global] bob: hi",
		"bob: psst",
		"Welcome",
		"Menu main:",
		"  1. Play",
		"  2. Quit",
		"Choose with /select <number>.",
		"Name [x]: (type your answer)",
		"* Ping: 12ms",
		"Connection lost: eof",
	}
	assert.Equal(t, strings.Join(want, "\n")+"\n", buf.String())
}

func TestTerminalPrompt(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"sure\n", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		prompt := terminalPrompt(newConsoleInput(strings.NewReader(tt.input)), &out)
		assert.Equal(t, tt.want, prompt.TrustCertificate(testCertInfo()), "input %q", tt.input)
		assert.Contains(t, out.String(), "AB:CD")
		assert.Contains(t, out.String(), "[y/N]")
	}
}

func TestTerminalPromptChangedCertificate(t *testing.T) {
	info := testCertInfo()
	info.PinnedFingerprint = "0102"
	info.MatchesHost = false

	var out bytes.Buffer
	terminalPrompt(newConsoleInput(strings.NewReader("n\n")), &out).TrustCertificate(info)
	assert.Contains(t, out.String(), "CHANGED")
	assert.Contains(t, out.String(), "01:02")
	assert.Contains(t, out.String(), "not issued for play.example")
}

type recordingInput struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingInput) HandleUserInput(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, strings.TrimSpace(line))
	return nil
}

func (r *recordingInput) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestPromptClaimsLineWhileInputLoopRuns(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	in := newConsoleInput(pr)
	defer in.Close()

	handler := &recordingInput{}
	loopDone := make(chan error, 1)
	go func() { loopDone <- inputLoop(t.Context(), handler, in, io.Discard) }()

	_, err := io.WriteString(pw, "hello\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(handler.got()) == 1 }, time.Second, 5*time.Millisecond)

	answered := make(chan bool, 1)
	go func() { answered <- terminalPrompt(in, io.Discard).TrustCertificate(testCertInfo()) }()
	require.Eventually(t, in.waiting, time.Second, 5*time.Millisecond)

	_, err = io.WriteString(pw, "y\n")
	require.NoError(t, err)
	select {
	case ok := <-answered:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("prompt did not receive the answer")
	}

	_, err = io.WriteString(pw, "bye\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(handler.got()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"hello", "bye"}, handler.got())

	require.NoError(t, pw.Close())
	select {
	case err := <-loopDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("input loop did not stop at end of input")
	}
}

func TestPromptReleasedOnClose(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	in := newConsoleInput(pr)

	answered := make(chan bool, 1)
	go func() { answered <- terminalPrompt(in, io.Discard).TrustCertificate(testCertInfo()) }()
	require.Eventually(t, in.waiting, time.Second, 5*time.Millisecond)

	in.Close()
	select {
	case ok := <-answered:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("prompt still waiting after Close")
	}
}

func TestReadPassword(t *testing.T) {
	pw, err := readPassword(strings.NewReader("s3cret\r\n"), io.Discard, "Password: ")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", string(pw))

	pw, err = readPassword(strings.NewReader("no-newline"), io.Discard, "Password: ")
	require.NoError(t, err)
	assert.Equal(t, "no-newline", string(pw))

	_, err = readPassword(strings.NewReader(""), io.Discard, "Password: ")
	require.ErrorIs(t, err, errNoInput)
}

func TestParseOptionValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"40", 40},
		{"true", true},
		{"English", "English"},
		{"", ""},
		{"1.5", 1.5},
	}
	for _, tt := range tests {
		got, err := parseOptionValue(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := parseOptionValue("[unclosed")
	require.Error(t, err)
}
