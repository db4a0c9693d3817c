package ui

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Stable custom ids for the unified control surface. The dispatcher keys
// its component handlers on these.
const (
	IDPlayPause    = "unified_play_pause"
	IDSkip         = "unified_skip"
	IDStop         = "unified_stop"
	IDShuffle      = "unified_shuffle"
	IDVolumeDown   = "unified_vol_down"
	IDVolumeUp     = "unified_vol_up"
	IDMute         = "unified_mute"
	IDAddSong      = "unified_add_song"
	IDAddSongModal = "unified_add_song_modal"
	IDSongQuery    = "song_query"
	IDQueueSelect  = "unified_queue_select"
)

// volumeBarSegments is the fixed width of the rendered volume bar.
const volumeBarSegments = 10

// queueMenuCap caps select menu options (platform limit is 25).
const queueMenuCap = 25

// VolumeBar renders volumePct as ten blocks plus a speaker glyph.
func VolumeBar(volumePct int, muted bool) string {
	if muted {
		return "🔇 muted"
	}
	if volumePct < 0 {
		volumePct = 0
	}
	if volumePct > 100 {
		volumePct = 100
	}
	filled := (volumePct + volumeBarSegments/2) / volumeBarSegments
	if filled > volumeBarSegments {
		filled = volumeBarSegments
	}
	bar := strings.Repeat("▰", filled) + strings.Repeat("▱", volumeBarSegments-filled)
	return fmt.Sprintf("🔊 %s %d%%", bar, volumePct)
}

// SelectGIF picks a loading image deterministically. tick is any
// monotonically increasing counter; the default set is used unless the
// guild opted into custom gifs and has some stored.
func SelectGIF(custom []string, useCustom bool, tick int) string {
	pool := defaultLoadingGIFs
	if useCustom && len(custom) > 0 {
		pool = custom
	}
	if len(pool) == 0 {
		return ""
	}
	if tick < 0 {
		tick = -tick
	}
	return pool[tick%len(pool)]
}

// defaultLoadingGIFs is the fallback loading artwork rotation.
var defaultLoadingGIFs = []string{
	"https://media.tenor.com/Gg9UZmzREbUAAAAC/music-loading.gif",
	"https://media.tenor.com/PVDz0eJYDb4AAAAC/vinyl-spinning.gif",
	"https://media.tenor.com/nxvyYQ1GgLgAAAAC/cat-headphones.gif",
	"https://media.tenor.com/ceKLeqAzUcEAAAAC/equalizer-bars.gif",
}

// DefaultLoadingGIFs returns a copy of the built-in rotation.
func DefaultLoadingGIFs() []string {
	return append([]string(nil), defaultLoadingGIFs...)
}

// controlRows builds the button rows of the unified control surface with
// disabled flags derived from the state.
func controlRows(s *State) []discordgo.MessageComponent {
	active := s.activeAudio()

	playPause := discordgo.Button{
		Label:    "⏸️ Pause",
		Style:    discordgo.PrimaryButton,
		CustomID: IDPlayPause,
		Disabled: !active,
	}
	if s.Phase == PhasePaused {
		playPause.Label = "▶️ Resume"
		playPause.Style = discordgo.SuccessButton
	}

	muteLabel := "🔇 Mute"
	if s.Muted {
		muteLabel = "🔊 Unmute"
	}

	sessionLive := active || s.Connected

	rows := []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				playPause,
				discordgo.Button{
					Label:    "⏭️ Skip",
					Style:    discordgo.SecondaryButton,
					CustomID: IDSkip,
					Disabled: !active,
				},
				discordgo.Button{
					Label:    "⏹️ Stop",
					Style:    discordgo.DangerButton,
					CustomID: IDStop,
					Disabled: !active,
				},
				discordgo.Button{
					Label:    "🔀 Shuffle",
					Style:    discordgo.SecondaryButton,
					CustomID: IDShuffle,
					Disabled: len(s.QueueTitles) < 2,
				},
			},
		},
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "🔉 Vol -",
					Style:    discordgo.SecondaryButton,
					CustomID: IDVolumeDown,
					Disabled: !sessionLive,
				},
				discordgo.Button{
					Label:    "🔊 Vol +",
					Style:    discordgo.SecondaryButton,
					CustomID: IDVolumeUp,
					Disabled: !sessionLive,
				},
				discordgo.Button{
					Label:    muteLabel,
					Style:    discordgo.SecondaryButton,
					CustomID: IDMute,
					Disabled: !sessionLive,
				},
				discordgo.Button{
					Label:    "➕ Add Song",
					Style:    discordgo.SuccessButton,
					CustomID: IDAddSong,
				},
			},
		},
	}

	if s.QueueDisplayMode == DisplayMenu && len(s.QueueTitles) > 0 {
		rows = append(rows, discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{queueMenu(s)},
		})
	}

	return rows
}

// queueMenu renders the up-next window as a select menu.
func queueMenu(s *State) discordgo.SelectMenu {
	options := make([]discordgo.SelectMenuOption, 0, len(s.QueueTitles))
	for i, title := range s.QueueTitles {
		if i >= queueMenuCap {
			break
		}
		options = append(options, discordgo.SelectMenuOption{
			Label: truncate(title, 100),
			Value: fmt.Sprintf("%d", i),
		})
	}

	return discordgo.SelectMenu{
		MenuType:    discordgo.StringSelectMenu,
		CustomID:    IDQueueSelect,
		Placeholder: fmt.Sprintf("Queue: %d track(s)", s.TotalTracks),
		Options:     options,
	}
}

// AddSongModal is the modal opened by the add-song button.
func AddSongModal() *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: IDAddSongModal,
			Title:    "Add a song",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    IDSongQuery,
							Label:       "Song name or link",
							Style:       discordgo.TextInputShort,
							Placeholder: "Search term, YouTube or Spotify URL",
							Required:    true,
							MaxLength:   400,
						},
					},
				},
			},
		},
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
