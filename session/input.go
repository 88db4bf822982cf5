package session

import (
	"errors"
	"strconv"
	"strings"

	"github.com/chrisnestrud/PlayPalace11/packet"
)

var (
	// ErrEmptyMessage is returned for /local or /global without text.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrInvalidSelection is returned when /select is not given a positive number.
	ErrInvalidSelection = errors.New("selection must be a positive number")
	// ErrNoMenu is returned for menu commands while no menu is shown.
	ErrNoMenu = errors.New("no menu is open")
	// ErrMissingKey is returned for /keybind without a key.
	ErrMissingKey = errors.New("no key given")
)

type menuItem struct {
	id   string
	text string
}

// menuState is the last menu the server showed.
type menuState struct {
	id          string
	items       []menuItem
	selectionID string
	position    int
	hasPosition bool
}

func newMenuState(p packet.Packet) menuState {
	m := menuState{}
	m.id, _ = p.String("menu_id")
	m.selectionID, _ = p.String("selection_id")
	if pos, ok := p.Number("position"); ok {
		m.position = int(pos)
		m.hasPosition = true
	}
	raw, _ := p["items"].([]any)
	for _, entry := range raw {
		switch item := entry.(type) {
		case string:
			m.items = append(m.items, menuItem{text: item})
		case map[string]any:
			id, _ := item["id"].(string)
			text, _ := item["text"].(string)
			m.items = append(m.items, menuItem{id: id, text: text})
		default:
			m.items = append(m.items, menuItem{})
		}
	}
	return m
}

// context resolves the 1-based focused index and item id for a keybind.
// Zero index means unknown.
func (m menuState) context() (int, string) {
	itemID := m.selectionID
	if itemID != "" {
		for i, item := range m.items {
			if item.id == itemID {
				return i + 1, itemID
			}
		}
	}
	if m.hasPosition {
		candidate := m.position + 1
		if candidate >= 1 && candidate <= len(m.items) {
			if id := m.items[candidate-1].id; id != "" {
				itemID = id
			}
			return candidate, itemID
		}
	}
	return 0, itemID
}

// HandleUserInput turns one line of user input into a packet. A pending
// input request takes the line verbatim; otherwise plain text is local
// chat and a leading slash selects a command.
func (c *Controller) HandleUserInput(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	c.mu.Lock()
	if id := c.pendingInput; id != "" {
		c.pendingInput = ""
		c.mu.Unlock()
		return c.send(packet.Packet{"type": "editbox", "text": line, "input_id": id})
	}
	menu := c.menu
	c.mu.Unlock()

	if !strings.HasPrefix(line, "/") {
		return c.sendChat("local", line)
	}

	command, rest, _ := strings.Cut(line, " ")
	command = strings.ToLower(command)
	rest = strings.TrimSpace(rest)

	switch command {
	case "/ping":
		c.mu.Lock()
		c.pingStart = c.clock.Now()
		c.mu.Unlock()
		return c.send(packet.Packet{"type": "ping"})
	case "/online":
		return c.send(packet.Packet{"type": "list_online"})
	case "/online_games":
		return c.send(packet.Packet{"type": "list_online_with_games"})
	case "/escape":
		p := packet.Packet{"type": "escape"}
		if menu.id != "" {
			p["menu_id"] = menu.id
		}
		return c.send(p)
	case "/local", "/global":
		if rest == "" {
			return ErrEmptyMessage
		}
		return c.sendChat(strings.TrimPrefix(command, "/"), rest)
	case "/select":
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return ErrInvalidSelection
		}
		if menu.id == "" {
			return ErrNoMenu
		}
		p := packet.Packet{"type": "menu", "menu_id": menu.id, "selection": n}
		if n <= len(menu.items) && menu.items[n-1].id != "" {
			p["selection_id"] = menu.items[n-1].id
		}
		return c.send(p)
	case "/keybind", "/key":
		return c.sendKeybind(rest, menu)
	default:
		return c.send(packet.Packet{
			"type":    "slash_command",
			"command": strings.TrimPrefix(command, "/"),
			"args":    rest,
		})
	}
}

func (c *Controller) sendChat(convo, message string) error {
	return c.send(packet.Packet{
		"type":     "chat",
		"convo":    convo,
		"message":  message,
		"language": c.chatLanguage(),
	})
}

func (c *Controller) sendKeybind(spec string, menu menuState) error {
	parts := strings.Fields(strings.ToLower(spec))
	if len(parts) == 0 {
		return ErrMissingKey
	}
	modifiers := make(map[string]bool, len(parts)-1)
	for _, m := range parts[1:] {
		modifiers[m] = true
	}
	p := packet.Packet{
		"type":    "keybind",
		"key":     parts[0],
		"control": modifiers["ctrl"] || modifiers["control"],
		"alt":     modifiers["alt"],
		"shift":   modifiers["shift"],
	}
	if menu.id != "" {
		p["menu_id"] = menu.id
	}
	index, itemID := menu.context()
	if index > 0 {
		p["menu_index"] = index
	}
	if itemID != "" {
		p["menu_item_id"] = itemID
	}
	return c.send(p)
}

func (c *Controller) chatLanguage() string {
	c.mu.Lock()
	creds := c.creds
	c.mu.Unlock()
	if c.options == nil || creds == nil {
		return defaultChatLanguage
	}
	opts, err := c.options.ClientOptions(creds.ServerID)
	if err != nil {
		return defaultChatLanguage
	}
	social, _ := opts["social"].(map[string]any)
	if lang, ok := social["chat_input_language"].(string); ok && lang != "" {
		return lang
	}
	return defaultChatLanguage
}

// PendingInput returns the input id awaiting a reply, if any.
func (c *Controller) PendingInput() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingInput
}
