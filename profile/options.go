package profile

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/chrisnestrud/PlayPalace11/session"
	"github.com/chrisnestrud/PlayPalace11/storage"
)

var _ session.OptionsSource = (*Store)(nil)

// ErrInvalidOptionPath is returned for empty or malformed dotted paths.
var ErrInvalidOptionPath = errors.New("invalid option path")

// DefaultClientOptions returns a fresh copy of the built-in client options.
func DefaultClientOptions() map[string]any {
	return map[string]any{
		"audio": map[string]any{
			"music_volume":    20,
			"ambience_volume": 20,
		},
		"social": map[string]any{
			"mute_global_chat":                        false,
			"mute_table_chat":                         false,
			"include_language_filters_for_table_chat": false,
			"chat_input_language":                     "English",
			"language_subscriptions":                  map[string]any{},
		},
		"interface": map[string]any{
			"invert_multiline_enter_behavior": false,
			"play_typing_sounds":              true,
		},
	}
}

// ClientOptions returns the defaults with serverID's overrides merged in.
func (s *Store) ClientOptions(serverID string) (map[string]any, error) {
	overrides, err := s.optionOverrides(serverID)
	if err != nil {
		return nil, err
	}
	return deepMerge(DefaultClientOptions(), overrides), nil
}

// SetClientOption stores an override at a dotted path such as
// "social.chat_input_language".
func (s *Store) SetClientOption(serverID, path string, value any) error {
	keys := strings.Split(path, ".")
	for _, k := range keys {
		if k == "" {
			return fmt.Errorf("%w: %q", ErrInvalidOptionPath, path)
		}
	}
	overrides, err := s.optionOverrides(serverID)
	if err != nil {
		return err
	}
	node := overrides
	for _, k := range keys[:len(keys)-1] {
		next, ok := node[k].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[k] = next
		}
		node = next
	}
	node[keys[len(keys)-1]] = value
	return s.putJSON(typeOptions, serverID, overrides)
}

// ReplaceClientOptions stores opts as serverID's complete override set.
func (s *Store) ReplaceClientOptions(serverID string, opts map[string]any) error {
	return s.putJSON(typeOptions, serverID, opts)
}

func (s *Store) optionOverrides(serverID string) (map[string]any, error) {
	overrides := make(map[string]any)
	err := s.getJSON(typeOptions, serverID, &overrides)
	if errors.Is(err, storage.ErrNotFound) {
		return make(map[string]any), nil
	}
	if err != nil {
		return nil, err
	}
	return overrides, nil
}

// deepMerge copies override into base, recursing into nested maps.
func deepMerge(base, override map[string]any) map[string]any {
	out := maps.Clone(base)
	for k, v := range override {
		if sub, ok := v.(map[string]any); ok {
			if baseSub, ok := out[k].(map[string]any); ok {
				out[k] = deepMerge(baseSub, sub)
				continue
			}
		}
		out[k] = v
	}
	return out
}
