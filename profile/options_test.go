package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisnestrud/PlayPalace11/storage/memory"
)

func TestClientOptionsDefaults(t *testing.T) {
	s := newTestStore(t, memory.NewRepository(), testKey(t))

	opts, err := s.ClientOptions("srv")
	require.NoError(t, err)
	assert.Equal(t, DefaultClientOptions(), opts)
}

func TestSetClientOptionMerges(t *testing.T) {
	s := newTestStore(t, memory.NewRepository(), testKey(t))

	require.NoError(t, s.SetClientOption("srv", "social.chat_input_language", "Français"))
	require.NoError(t, s.SetClientOption("srv", "audio.music_volume", 55))

	opts, err := s.ClientOptions("srv")
	require.NoError(t, err)
	social := opts["social"].(map[string]any)
	assert.Equal(t, "Français", social["chat_input_language"])
	assert.Equal(t, false, social["mute_global_chat"])
	audio := opts["audio"].(map[string]any)
	assert.EqualValues(t, 55, audio["music_volume"])
	assert.EqualValues(t, 20, audio["ambience_volume"])

	other, err := s.ClientOptions("other")
	require.NoError(t, err)
	assert.Equal(t, "English", other["social"].(map[string]any)["chat_input_language"])
}

func TestSetClientOptionRejectsBadPath(t *testing.T) {
	s := newTestStore(t, memory.NewRepository(), testKey(t))
	for _, path := range []string{"", "audio.", ".x", "a..b"} {
		assert.ErrorIs(t, s.SetClientOption("srv", path, 1), ErrInvalidOptionPath, path)
	}
}

func TestDefaultClientOptionsIsFresh(t *testing.T) {
	a := DefaultClientOptions()
	a["audio"].(map[string]any)["music_volume"] = 99
	b := DefaultClientOptions()
	assert.Equal(t, 20, b["audio"].(map[string]any)["music_volume"])
}

func TestReplaceClientOptions(t *testing.T) {
	s := newTestStore(t, memory.NewRepository(), testKey(t))
	require.NoError(t, s.SetClientOption("srv", "audio.music_volume", 5))
	require.NoError(t, s.ReplaceClientOptions("srv", map[string]any{"interface": map[string]any{"play_typing_sounds": false}}))

	opts, err := s.ClientOptions("srv")
	require.NoError(t, err)
	assert.Equal(t, 20, opts["audio"].(map[string]any)["music_volume"])
	assert.Equal(t, false, opts["interface"].(map[string]any)["play_typing_sounds"])
}
