package ui

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/groovebox/pkg/queue"
)

func playingState() *State {
	return &State{
		Phase:   PhasePlaying,
		GuildID: "guild-1",
		NowPlaying: &queue.SongRecord{
			Title:        "Bohemian Rhapsody",
			Artist:       "Queen",
			DurationMs:   354000,
			ThumbnailURL: "https://i.ytimg.com/vi/abc/default.jpg",
			SourceURL:    "https://www.youtube.com/watch?v=fJ9rUzIMcZQ",
			RequestedBy:  queue.Requester{UserID: "u1", DisplayName: "alex"},
		},
		Elapsed:          95 * time.Second,
		QueueTitles:      []string{"Track A", "Track B"},
		TotalTracks:      6,
		VolumePct:        80,
		Connected:        true,
		QueueDisplayMode: DisplayChat,
	}
}

func findButton(t *testing.T, payload *Payload, customID string) discordgo.Button {
	t.Helper()
	for _, component := range payload.Components {
		row, ok := component.(discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if button, ok := inner.(discordgo.Button); ok && button.CustomID == customID {
				return button
			}
		}
	}
	t.Fatalf("button %s not found", customID)
	return discordgo.Button{}
}

func findMenu(payload *Payload) (discordgo.SelectMenu, bool) {
	for _, component := range payload.Components {
		row, ok := component.(discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if menu, ok := inner.(discordgo.SelectMenu); ok {
				return menu, true
			}
		}
	}
	return discordgo.SelectMenu{}, false
}

func TestRenderPlaying(t *testing.T) {
	payload := Render(playingState())
	require.Len(t, payload.Embeds, 1)
	embed := payload.Embeds[0]

	assert.Equal(t, "🎵 Now Playing", embed.Title)
	assert.Equal(t, colorGreen, embed.Color)
	assert.Contains(t, embed.Description, "Queen - Bohemian Rhapsody")
	assert.Contains(t, embed.Description, "youtube.com/watch")
	require.NotNil(t, embed.Thumbnail)

	var duration, volume, upNext string
	for _, field := range embed.Fields {
		switch field.Name {
		case "Duration":
			duration = field.Value
		case "Volume":
			volume = field.Value
		case "📝 Up Next":
			upNext = field.Value
		}
	}
	assert.Equal(t, "1:35 / 5:54", duration)
	assert.Contains(t, volume, "80%")
	assert.Contains(t, upNext, "1. Track A")
	assert.Contains(t, upNext, "... and 4 more")
}

func TestRenderPlayingButtons(t *testing.T) {
	payload := Render(playingState())

	assert.False(t, findButton(t, payload, IDPlayPause).Disabled)
	assert.Equal(t, "⏸️ Pause", findButton(t, payload, IDPlayPause).Label)
	assert.False(t, findButton(t, payload, IDSkip).Disabled)
	assert.False(t, findButton(t, payload, IDStop).Disabled)
	assert.False(t, findButton(t, payload, IDShuffle).Disabled)
	assert.False(t, findButton(t, payload, IDAddSong).Disabled)
}

func TestRenderPausedFlipsPlayPause(t *testing.T) {
	state := playingState()
	state.Phase = PhasePaused

	payload := Render(state)
	assert.Equal(t, colorGray, payload.Embeds[0].Color)
	assert.Equal(t, "⏸️ Paused", payload.Embeds[0].Title)

	button := findButton(t, payload, IDPlayPause)
	assert.Equal(t, "▶️ Resume", button.Label)
	assert.Equal(t, discordgo.SuccessButton, button.Style)
	assert.False(t, button.Disabled)
}

func TestRenderIdleDisablesPlaybackButtons(t *testing.T) {
	state := &State{Phase: PhaseIdle, Connected: true, VolumePct: 80}

	payload := Render(state)
	assert.Equal(t, "💤 Idle", payload.Embeds[0].Title)

	assert.True(t, findButton(t, payload, IDPlayPause).Disabled)
	assert.True(t, findButton(t, payload, IDSkip).Disabled)
	assert.True(t, findButton(t, payload, IDStop).Disabled)
	assert.True(t, findButton(t, payload, IDShuffle).Disabled, "shuffle needs two queued tracks")
	assert.False(t, findButton(t, payload, IDVolumeUp).Disabled, "volume works while connected")
	assert.False(t, findButton(t, payload, IDAddSong).Disabled)
}

func TestRenderIdleDisconnected(t *testing.T) {
	payload := Render(&State{Phase: PhaseIdle})

	assert.Equal(t, "👋 Disconnected", payload.Embeds[0].Title)
	assert.True(t, findButton(t, payload, IDVolumeUp).Disabled)
	assert.False(t, findButton(t, payload, IDAddSong).Disabled, "add song always works")
}

func TestRenderShuffleNeedsTwoTracks(t *testing.T) {
	state := playingState()
	state.QueueTitles = []string{"only one"}

	payload := Render(state)
	assert.True(t, findButton(t, payload, IDShuffle).Disabled)
}

func TestRenderQuerying(t *testing.T) {
	state := &State{
		Phase:       PhaseQuerying,
		SearchQuery: "bohemian rhapsody live",
		GifURL:      "https://example.com/loading.gif",
	}

	payload := Render(state)
	embed := payload.Embeds[0]
	assert.Equal(t, colorBlurple, embed.Color)
	assert.Contains(t, embed.Description, "bohemian rhapsody live")
	require.NotNil(t, embed.Image)
	assert.Equal(t, "https://example.com/loading.gif", embed.Image.URL)
}

func TestRenderLoading(t *testing.T) {
	state := playingState()
	state.Phase = PhaseLoading
	state.GifURL = "https://example.com/spinner.gif"

	payload := Render(state)
	embed := payload.Embeds[0]
	assert.Equal(t, colorOrange, embed.Color)
	assert.Contains(t, embed.Description, "Bohemian Rhapsody")
	require.NotNil(t, embed.Image)
}

func TestRenderError(t *testing.T) {
	state := &State{
		Phase:        PhaseError,
		ErrorMessage: "the video is unavailable in this region",
		ErrorCode:    "MEDIA_UNAVAILABLE",
	}

	payload := Render(state)
	embed := payload.Embeds[0]
	assert.Equal(t, colorRed, embed.Color)
	assert.Equal(t, "❌ Playback Error", embed.Title)
	assert.Contains(t, embed.Description, "unavailable")
	require.NotNil(t, embed.Footer)
	assert.Equal(t, "MEDIA_UNAVAILABLE", embed.Footer.Text)
}

func TestMenuModeRendersQueueSelect(t *testing.T) {
	state := playingState()
	state.QueueDisplayMode = DisplayMenu

	payload := Render(state)

	menu, ok := findMenu(payload)
	require.True(t, ok)
	assert.Equal(t, IDQueueSelect, menu.CustomID)
	assert.Contains(t, menu.Placeholder, "6 track(s)")
	require.Len(t, menu.Options, 2)
	assert.Equal(t, "Track A", menu.Options[0].Label)
	assert.Equal(t, "0", menu.Options[0].Value)

	// Menu mode moves the queue out of the embed.
	for _, field := range payload.Embeds[0].Fields {
		assert.NotEqual(t, "📝 Up Next", field.Name)
	}
}

func TestChatModeHasNoMenu(t *testing.T) {
	payload := Render(playingState())
	_, ok := findMenu(payload)
	assert.False(t, ok)
}

func TestVolumeBar(t *testing.T) {
	tests := []struct {
		name   string
		pct    int
		muted  bool
		expect string
	}{
		{"full", 100, false, "🔊 ▰▰▰▰▰▰▰▰▰▰ 100%"},
		{"eighty", 80, false, "🔊 ▰▰▰▰▰▰▰▰▱▱ 80%"},
		{"rounds up", 55, false, "🔊 ▰▰▰▰▰▰▱▱▱▱ 55%"},
		{"zero", 0, false, "🔊 ▱▱▱▱▱▱▱▱▱▱ 0%"},
		{"clamped high", 140, false, "🔊 ▰▰▰▰▰▰▰▰▰▰ 100%"},
		{"clamped low", -5, false, "🔊 ▱▱▱▱▱▱▱▱▱▱ 0%"},
		{"muted", 80, true, "🔇 muted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, VolumeBar(tt.pct, tt.muted))
		})
	}
}

func TestSelectGIF(t *testing.T) {
	custom := []string{"https://example.com/a.gif", "https://example.com/b.gif"}

	assert.Equal(t, custom[0], SelectGIF(custom, true, 0))
	assert.Equal(t, custom[1], SelectGIF(custom, true, 1))
	assert.Equal(t, custom[0], SelectGIF(custom, true, 2), "rotation wraps")

	defaults := DefaultLoadingGIFs()
	assert.Equal(t, defaults[0], SelectGIF(custom, false, 0), "custom set ignored unless enabled")
	assert.Equal(t, defaults[0], SelectGIF(nil, true, 0), "empty custom set falls back")
}

func TestFmtDuration(t *testing.T) {
	assert.Equal(t, "0:05", fmtDuration(5*time.Second))
	assert.Equal(t, "3:04", fmtDuration(184*time.Second))
	assert.Equal(t, "1:01:05", fmtDuration(3665*time.Second))
	assert.Equal(t, "0:00", fmtDuration(-time.Second))
}

func TestAddSongModalShape(t *testing.T) {
	modal := AddSongModal()
	assert.Equal(t, discordgo.InteractionResponseModal, modal.Type)
	assert.Equal(t, IDAddSongModal, modal.Data.CustomID)

	row, ok := modal.Data.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	input, ok := row.Components[0].(discordgo.TextInput)
	require.True(t, ok)
	assert.Equal(t, IDSongQuery, input.CustomID)
	assert.True(t, input.Required)
}
