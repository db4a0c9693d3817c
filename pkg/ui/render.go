package ui

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	colorBlurple = 0x7289da
	colorGreen   = 0x00ff00
	colorRed     = 0xff0000
	colorOrange  = 0xffaa00
	colorGray    = 0x808080
)

// queuePreviewCap bounds the up-next field so the embed stays short.
const queuePreviewCap = 10

// Render maps a State to the message payload for the playback controls
// message. It is a pure function; the same state always renders the same
// payload (modulo the embed timestamp).
func Render(s *State) *Payload {
	var embed *discordgo.MessageEmbed
	switch s.Phase {
	case PhaseQuerying:
		embed = renderQuerying(s)
	case PhaseLoading:
		embed = renderLoading(s)
	case PhasePlaying:
		embed = renderPlaying(s)
	case PhasePaused:
		embed = renderPaused(s)
	case PhaseError:
		embed = renderError(s)
	default:
		embed = renderIdle(s)
	}

	return &Payload{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: controlRows(s),
	}
}

func renderQuerying(s *State) *discordgo.MessageEmbed {
	description := "Searching..."
	if s.SearchQuery != "" {
		description = fmt.Sprintf("Searching for **%s**", truncate(s.SearchQuery, 200))
	}
	embed := baseEmbed("🔎 Looking It Up", description, colorBlurple)
	if s.GifURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: s.GifURL}
	}
	return embed
}

func renderLoading(s *State) *discordgo.MessageEmbed {
	description := "Preparing audio..."
	if s.NowPlaying != nil {
		description = fmt.Sprintf("Preparing **%s**", s.NowPlaying.Title)
	}
	embed := baseEmbed("⏳ Loading", description, colorOrange)
	if s.GifURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: s.GifURL}
	}
	return embed
}

func renderPlaying(s *State) *discordgo.MessageEmbed {
	embed := baseEmbed("🎵 Now Playing", nowPlayingLine(s), colorGreen)
	decorateTrackEmbed(embed, s)
	return embed
}

func renderPaused(s *State) *discordgo.MessageEmbed {
	embed := baseEmbed("⏸️ Paused", nowPlayingLine(s), colorGray)
	decorateTrackEmbed(embed, s)
	return embed
}

func renderIdle(s *State) *discordgo.MessageEmbed {
	if s.Connected {
		return baseEmbed("💤 Idle",
			"The queue is empty. Add a song to keep the music going!", colorBlurple)
	}
	return baseEmbed("👋 Disconnected",
		"Not connected to a voice channel. Use /play to start a session.", colorGray)
}

func renderError(s *State) *discordgo.MessageEmbed {
	description := s.ErrorMessage
	if description == "" {
		description = "Something went wrong during playback."
	}
	embed := baseEmbed("❌ Playback Error", truncate(description, 1000), colorRed)
	if s.ErrorCode != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: s.ErrorCode}
	}
	return embed
}

func baseEmbed(title, description string, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

func nowPlayingLine(s *State) string {
	if s.NowPlaying == nil {
		return "Unknown track"
	}
	title := s.NowPlaying.Title
	if s.NowPlaying.Artist != "" {
		title = fmt.Sprintf("%s - %s", s.NowPlaying.Artist, title)
	}
	if s.NowPlaying.SourceURL != "" {
		return fmt.Sprintf("[%s](%s)", title, s.NowPlaying.SourceURL)
	}
	return title
}

// decorateTrackEmbed adds artwork, requester, duration, volume, and the
// queue preview shared by the playing and paused variants.
func decorateTrackEmbed(embed *discordgo.MessageEmbed, s *State) {
	song := s.NowPlaying
	if song != nil && song.ThumbnailURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: song.ThumbnailURL}
	}

	if song != nil && song.RequestedBy.DisplayName != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Requested by",
			Value:  song.RequestedBy.DisplayName,
			Inline: true,
		})
	}

	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:   "Duration",
		Value:  durationField(s),
		Inline: true,
	})

	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:   "Volume",
		Value:  VolumeBar(s.VolumePct, s.Muted),
		Inline: false,
	})

	if s.QueueDisplayMode != DisplayMenu && len(s.QueueTitles) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "📝 Up Next",
			Value:  queuePreview(s),
			Inline: false,
		})
	}
}

func durationField(s *State) string {
	var total time.Duration
	if s.NowPlaying != nil {
		total = s.NowPlaying.Duration()
	}
	switch {
	case total > 0 && s.Elapsed > 0:
		return fmt.Sprintf("%s / %s", fmtDuration(s.Elapsed), fmtDuration(total))
	case total > 0:
		return fmtDuration(total)
	default:
		return "live / unknown"
	}
}

func queuePreview(s *State) string {
	text := ""
	for i, title := range s.QueueTitles {
		if i >= queuePreviewCap {
			break
		}
		text += fmt.Sprintf("%d. %s\n", i+1, truncate(title, 80))
	}
	shown := len(s.QueueTitles)
	if shown > queuePreviewCap {
		shown = queuePreviewCap
	}
	if s.TotalTracks > shown {
		text += fmt.Sprintf("... and %d more", s.TotalTracks-shown)
	}
	return text
}

// fmtDuration renders m:ss, or h:mm:ss past an hour.
func fmtDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	totalSeconds := int(d.Seconds())
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60

	if minutes < 60 {
		return fmt.Sprintf("%d:%02d", minutes, seconds)
	}

	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
}
