package session

import (
	"github.com/chrisnestrud/PlayPalace11/packet"
)

// EventHandler receives session events on the goroutine running
// Controller.Run. Embed BaseHandler to implement only what you need.
type EventHandler interface {
	OnAuthorizeSuccess(p packet.Packet)
	// OnConnectionLost is called when a connection closes without being
	// asked to. err is nil for a clean remote close.
	OnConnectionLost(err error)
	// OnActivity carries notices for the user: dropped packets, reconnect
	// progress, ping times.
	OnActivity(msg string)

	OnMenu(p packet.Packet)
	OnRequestInput(p packet.Packet)
	OnChat(p packet.Packet)
	OnDisconnect(p packet.Packet)
	OnServerStatus(p packet.Packet)
	OnPong(p packet.Packet)
	OnClearUI(p packet.Packet)
	OnTableCreate(p packet.Packet)
	OnUpdateOptionsLists(p packet.Packet)
	OnOpenClientOptions(p packet.Packet)
	OnOpenServerOptions(p packet.Packet)
	OnGameList(p packet.Packet)
	OnSpeak(p packet.Packet)

	// Audio control, forwarded as-is.
	OnPlaySound(p packet.Packet)
	OnPlayMusic(p packet.Packet)
	OnStopMusic(p packet.Packet)
	OnPlayAmbience(p packet.Packet)
	OnStopAmbience(p packet.Packet)
	OnAddPlaylist(p packet.Packet)
	OnStartPlaylist(p packet.Packet)
	OnRemovePlaylist(p packet.Packet)
	OnGetPlaylistDuration(p packet.Packet)
}

// BaseHandler implements EventHandler with no-ops.
type BaseHandler struct{}

var _ EventHandler = BaseHandler{}

func (BaseHandler) OnAuthorizeSuccess(packet.Packet)    {}
func (BaseHandler) OnConnectionLost(error)              {}
func (BaseHandler) OnActivity(string)                   {}
func (BaseHandler) OnMenu(packet.Packet)                {}
func (BaseHandler) OnRequestInput(packet.Packet)        {}
func (BaseHandler) OnChat(packet.Packet)                {}
func (BaseHandler) OnDisconnect(packet.Packet)          {}
func (BaseHandler) OnServerStatus(packet.Packet)        {}
func (BaseHandler) OnPong(packet.Packet)                {}
func (BaseHandler) OnClearUI(packet.Packet)             {}
func (BaseHandler) OnTableCreate(packet.Packet)         {}
func (BaseHandler) OnUpdateOptionsLists(packet.Packet)  {}
func (BaseHandler) OnOpenClientOptions(packet.Packet)   {}
func (BaseHandler) OnOpenServerOptions(packet.Packet)   {}
func (BaseHandler) OnGameList(packet.Packet)            {}
func (BaseHandler) OnSpeak(packet.Packet)               {}
func (BaseHandler) OnPlaySound(packet.Packet)           {}
func (BaseHandler) OnPlayMusic(packet.Packet)           {}
func (BaseHandler) OnStopMusic(packet.Packet)           {}
func (BaseHandler) OnPlayAmbience(packet.Packet)        {}
func (BaseHandler) OnStopAmbience(packet.Packet)        {}
func (BaseHandler) OnAddPlaylist(packet.Packet)         {}
func (BaseHandler) OnStartPlaylist(packet.Packet)       {}
func (BaseHandler) OnRemovePlaylist(packet.Packet)      {}
func (BaseHandler) OnGetPlaylistDuration(packet.Packet) {}

// dispatch routes p to its handler method. It reports false for types
// with no handler.
func dispatch(h EventHandler, p packet.Packet) bool {
	switch p.Type() {
	case "authorize_success":
		h.OnAuthorizeSuccess(p)
	case "menu":
		h.OnMenu(p)
	case "request_input":
		h.OnRequestInput(p)
	case "chat":
		h.OnChat(p)
	case "disconnect":
		h.OnDisconnect(p)
	case "server_status":
		h.OnServerStatus(p)
	case "pong":
		h.OnPong(p)
	case "clear_ui":
		h.OnClearUI(p)
	case "table_create":
		h.OnTableCreate(p)
	case "update_options_lists":
		h.OnUpdateOptionsLists(p)
	case "open_client_options":
		h.OnOpenClientOptions(p)
	case "open_server_options":
		h.OnOpenServerOptions(p)
	case "game_list":
		h.OnGameList(p)
	case "speak":
		h.OnSpeak(p)
	case "play_sound":
		h.OnPlaySound(p)
	case "play_music":
		h.OnPlayMusic(p)
	case "stop_music":
		h.OnStopMusic(p)
	case "play_ambience":
		h.OnPlayAmbience(p)
	case "stop_ambience":
		h.OnStopAmbience(p)
	case "add_playlist":
		h.OnAddPlaylist(p)
	case "start_playlist":
		h.OnStartPlaylist(p)
	case "remove_playlist":
		h.OnRemovePlaylist(p)
	case "get_playlist_duration":
		h.OnGetPlaylistDuration(p)
	default:
		return false
	}
	return true
}
