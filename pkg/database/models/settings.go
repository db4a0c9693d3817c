package models

import "time"

// Access levels for slash commands, message components, and bot voice controls
const (
	AccessServerOwner = "server_owner"
	AccessRoles       = "roles"
	AccessEveryone    = "everyone"
)

// Queue display modes
const (
	QueueDisplayChat = "chat"
	QueueDisplayMenu = "menu"
)

// Duration limit defaults. MaxDurationSeconds = 0 disables the limit.
const (
	DefaultVoiceTimeoutMinutes = 5
	DefaultMaxDurationSeconds  = 900
)

// GuildSettings holds per-guild configuration
type GuildSettings struct {
	GuildID             string     `gorm:"primaryKey" json:"guild_id"`
	VoiceChannelID      string     `json:"voice_channel_id"`
	VoiceTimeoutMinutes int        `gorm:"not null;default:5" json:"voice_timeout_minutes"`
	QueueDisplayMode    string     `gorm:"not null;default:'chat'" json:"queue_display_mode"`
	SlashCommandsAccess string     `gorm:"not null;default:'everyone'" json:"slash_commands_access"`
	ComponentsAccess    string     `gorm:"not null;default:'everyone'" json:"components_access"`
	BotControlsAccess   string     `gorm:"not null;default:'everyone'" json:"bot_controls_access"`
	SlashCommandsRoles  StringList `gorm:"type:text[]" json:"slash_commands_roles"`
	ComponentsRoles     StringList `gorm:"type:text[]" json:"components_roles"`
	BotControlsRoles    StringList `gorm:"type:text[]" json:"bot_controls_roles"`
	MaxDurationSeconds  int        `gorm:"not null;default:900" json:"max_duration_seconds"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for GuildSettings
func (GuildSettings) TableName() string {
	return "guild_settings"
}

// DefaultGuildSettings returns the settings row used when a guild has no
// stored configuration yet.
func DefaultGuildSettings(guildID string) *GuildSettings {
	return &GuildSettings{
		GuildID:             guildID,
		VoiceTimeoutMinutes: DefaultVoiceTimeoutMinutes,
		QueueDisplayMode:    QueueDisplayChat,
		SlashCommandsAccess: AccessEveryone,
		ComponentsAccess:    AccessEveryone,
		BotControlsAccess:   AccessEveryone,
		MaxDurationSeconds:  DefaultMaxDurationSeconds,
	}
}

// MaxDuration returns the configured duration limit, or zero when unlimited
func (s *GuildSettings) MaxDuration() time.Duration {
	if s.MaxDurationSeconds <= 0 {
		return 0
	}
	return time.Duration(s.MaxDurationSeconds) * time.Second
}

// VoiceTimeout returns the idle disconnect delay
func (s *GuildSettings) VoiceTimeout() time.Duration {
	minutes := s.VoiceTimeoutMinutes
	if minutes <= 0 {
		minutes = DefaultVoiceTimeoutMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// Clone returns a deep copy so cached rows can be handed out without
// aliasing the role slices.
func (s *GuildSettings) Clone() *GuildSettings {
	if s == nil {
		return nil
	}
	out := *s
	out.SlashCommandsRoles = append(StringList(nil), s.SlashCommandsRoles...)
	out.ComponentsRoles = append(StringList(nil), s.ComponentsRoles...)
	out.BotControlsRoles = append(StringList(nil), s.BotControlsRoles...)
	return &out
}
