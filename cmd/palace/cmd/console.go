package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/muesli/termenv"

	"github.com/chrisnestrud/PlayPalace11/packet"
	"github.com/chrisnestrud/PlayPalace11/session"
)

// consoleHandler renders server packets as lines of text.
type consoleHandler struct {
	session.BaseHandler

	mu   sync.Mutex
	out  io.Writer
	term *termenv.Output
}

// newConsoleHandler writes to out. Styling follows the terminal's color
// profile and is dropped when out is not a terminal.
func newConsoleHandler(out io.Writer, opts ...termenv.OutputOption) *consoleHandler {
	return &consoleHandler{out: out, term: termenv.NewOutput(out, opts...)}
}

func (h *consoleHandler) bold(s string) string { return h.term.String(s).Bold().String() }

func (h *consoleHandler) colored(color, s string) string {
	return h.term.String(s).Foreground(h.term.Color(color)).String()
}

func (h *consoleHandler) println(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.out, format+"\n", args...)
}

func str(p packet.Packet, key string) string {
	s, _ := p.String(key)
	return s
}

func (h *consoleHandler) OnAuthorizeSuccess(p packet.Packet) {
	msg := "Logged in"
	if u := str(p, "username"); u != "" {
		msg += " as " + u
	}
	if v := str(p, "version"); v != "" {
		msg += " (server " + v + ")"
	}
	h.println("%s.", msg)
}

func (h *consoleHandler) OnConnectionLost(err error) {
	if err != nil {
		h.println("%s", h.colored("1", fmt.Sprintf("Connection lost: %v", err)))
		return
	}
	h.println("%s", h.colored("1", "Connection lost."))
}

func (h *consoleHandler) OnActivity(msg string) { h.println("%s", h.colored("3", "* "+msg)) }

func (h *consoleHandler) OnSpeak(p packet.Packet) { h.println("%s", str(p, "text")) }

func (h *consoleHandler) OnChat(p packet.Packet) {
	prefix := ""
	if convo := str(p, "convo"); convo != "" && convo != "local" {
		prefix = "[" + convo + "] "
	}
	if sender := str(p, "sender"); sender != "" {
		h.println("%s%s: %s", prefix, h.bold(sender), str(p, "message"))
		return
	}
	h.println("%s%s", prefix, str(p, "message"))
}

func (h *consoleHandler) OnMenu(p packet.Packet) {
	items, _ := p["items"].([]any)
	var b strings.Builder
	if id := str(p, "menu_id"); id != "" {
		fmt.Fprintf(&b, "Menu %s:", id)
	} else {
		b.WriteString("Menu:")
	}
	for i, it := range items {
		text := ""
		switch v := it.(type) {
		case map[string]any:
			text, _ = v["text"].(string)
		case string:
			text = v
		}
		fmt.Fprintf(&b, "\n  %d. %s", i+1, text)
	}
	if len(items) > 0 {
		b.WriteString("\nChoose with /select <number>.")
	}
	h.println("%s", b.String())
}

func (h *consoleHandler) OnRequestInput(p packet.Packet) {
	prompt := str(p, "prompt")
	if prompt == "" {
		prompt = "Input requested"
	}
	if def := str(p, "default_value"); def != "" {
		prompt += " [" + def + "]"
	}
	h.println("%s: (type your answer)", prompt)
}

func (h *consoleHandler) OnDisconnect(p packet.Packet) {
	if msg := str(p, "message"); msg != "" {
		h.println("Server: %s", msg)
	}
}

func (h *consoleHandler) OnServerStatus(p packet.Packet) {
	status := str(p, "mode")
	if msg := str(p, "message"); msg != "" {
		status += ": " + msg
	}
	h.println("Server status %s", status)
}

func (h *consoleHandler) OnTableCreate(p packet.Packet) {
	h.println("%s created a %s table.", str(p, "host"), str(p, "game"))
}

func (h *consoleHandler) OnGameList(p packet.Packet) {
	games, _ := p["games"].([]any)
	h.println("%d games available.", len(games))
}

func (h *consoleHandler) OnClearUI(packet.Packet) { h.println("--") }
