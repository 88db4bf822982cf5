package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chrisnestrud/PlayPalace11/packet"
	"github.com/chrisnestrud/PlayPalace11/transport"
)

type fakeLink struct {
	id        uint64
	events    chan<- transport.Event
	validator *packet.Validator

	mu       sync.Mutex
	sent     []packet.Packet
	stops    atomic.Int32
	invalid  atomic.Int64
	stopOnce sync.Once
	stopped  chan struct{}

	// gate, when set, holds Wait open until it is closed.
	gate chan struct{}
}

func (l *fakeLink) ID() uint64 { return l.id }

func (l *fakeLink) Send(p packet.Packet) error {
	if err := l.validator.Validate(p, packet.Outgoing); err != nil {
		l.invalid.Add(1)
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, p)
	return nil
}

func (l *fakeLink) Stop() {
	l.stops.Add(1)
	l.stopOnce.Do(func() { close(l.stopped) })
}

func (l *fakeLink) Wait(timeout time.Duration) bool {
	expired := time.After(timeout)
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-expired:
			return false
		}
	}
	select {
	case <-l.stopped:
		return true
	case <-expired:
		return false
	}
}

func (l *fakeLink) ValidationErrors() int64 { return l.invalid.Load() }

func (l *fakeLink) Sent() []packet.Packet {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]packet.Packet(nil), l.sent...)
}

func (l *fakeLink) lastSent(t *testing.T) packet.Packet {
	t.Helper()
	sent := l.Sent()
	require.NotEmpty(t, sent)
	return sent[len(sent)-1]
}

func (l *fakeLink) emitPacket(p packet.Packet) {
	l.events <- transport.Event{ConnID: l.id, Kind: transport.EventPacket, Packet: p}
}

func (l *fakeLink) emitClosed(err error) {
	l.events <- transport.Event{ConnID: l.id, Kind: transport.EventClosed, Err: err}
}

type fakeOpener struct {
	mu    sync.Mutex
	links []*fakeLink
	creds []*Credentials
	err   error
	gate  chan struct{}
}

func (o *fakeOpener) Open(_ context.Context, req OpenRequest) (Link, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	l := &fakeLink{
		id:        req.ConnID,
		events:    req.Events,
		validator: packet.NewValidator(),
		stopped:   make(chan struct{}),
		gate:      o.gate,
	}
	o.links = append(o.links, l)
	o.creds = append(o.creds, req.Credentials)
	return l, nil
}

func (o *fakeOpener) opened() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.links)
}

func (o *fakeOpener) waitLink(t *testing.T, n int) *fakeLink {
	t.Helper()
	require.Eventually(t, func() bool { return o.opened() >= n }, 2*time.Second, 5*time.Millisecond)
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.links[n-1]
}

type fakeTrust struct {
	answer bool
	err    error
	calls  atomic.Int32
}

func (f *fakeTrust) PrepareTrust(context.Context, string, string) (bool, error) {
	f.calls.Add(1)
	return f.answer, f.err
}

// recordingHandler counts every callback by the packet type it serves.
type recordingHandler struct {
	mu       sync.Mutex
	calls    map[string]int
	activity []string
	lost     []error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{calls: make(map[string]int)}
}

func (h *recordingHandler) record(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls[name]++
}

func (h *recordingHandler) count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[name]
}

func (h *recordingHandler) activities() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.activity...)
}

func (h *recordingHandler) hasActivity(msg string) bool {
	for _, a := range h.activities() {
		if a == msg {
			return true
		}
	}
	return false
}

func (h *recordingHandler) OnConnectionLost(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lost = append(h.lost, err)
}

func (h *recordingHandler) OnActivity(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activity = append(h.activity, msg)
}

func (h *recordingHandler) OnAuthorizeSuccess(packet.Packet)    { h.record("authorize_success") }
func (h *recordingHandler) OnMenu(packet.Packet)                { h.record("menu") }
func (h *recordingHandler) OnRequestInput(packet.Packet)        { h.record("request_input") }
func (h *recordingHandler) OnChat(packet.Packet)                { h.record("chat") }
func (h *recordingHandler) OnDisconnect(packet.Packet)          { h.record("disconnect") }
func (h *recordingHandler) OnServerStatus(packet.Packet)        { h.record("server_status") }
func (h *recordingHandler) OnPong(packet.Packet)                { h.record("pong") }
func (h *recordingHandler) OnClearUI(packet.Packet)             { h.record("clear_ui") }
func (h *recordingHandler) OnTableCreate(packet.Packet)         { h.record("table_create") }
func (h *recordingHandler) OnUpdateOptionsLists(packet.Packet)  { h.record("update_options_lists") }
func (h *recordingHandler) OnOpenClientOptions(packet.Packet)   { h.record("open_client_options") }
func (h *recordingHandler) OnOpenServerOptions(packet.Packet)   { h.record("open_server_options") }
func (h *recordingHandler) OnGameList(packet.Packet)            { h.record("game_list") }
func (h *recordingHandler) OnSpeak(packet.Packet)               { h.record("speak") }
func (h *recordingHandler) OnPlaySound(packet.Packet)           { h.record("play_sound") }
func (h *recordingHandler) OnPlayMusic(packet.Packet)           { h.record("play_music") }
func (h *recordingHandler) OnStopMusic(packet.Packet)           { h.record("stop_music") }
func (h *recordingHandler) OnPlayAmbience(packet.Packet)        { h.record("play_ambience") }
func (h *recordingHandler) OnStopAmbience(packet.Packet)        { h.record("stop_ambience") }
func (h *recordingHandler) OnAddPlaylist(packet.Packet)         { h.record("add_playlist") }
func (h *recordingHandler) OnStartPlaylist(packet.Packet)       { h.record("start_playlist") }
func (h *recordingHandler) OnRemovePlaylist(packet.Packet)      { h.record("remove_playlist") }
func (h *recordingHandler) OnGetPlaylistDuration(packet.Packet) { h.record("get_playlist_duration") }

type staticOptions map[string]any

func (s staticOptions) ClientOptions(string) (map[string]any, error) { return s, nil }
