package faults

import (
	"fmt"
	"time"
)

// userMessages maps fault codes to short, user-facing replies. Codes without
// an entry fall back to a generic message per category.
var userMessages = map[string]string{
	CodeMediaUnsupportedURL:   "❌ That link isn't supported. Try a YouTube or Spotify URL, or a search query.",
	CodeMediaUnavailable:      "❌ That track is unavailable or restricted.",
	CodeMediaProcessTimeout:   "⏱️ Took too long to fetch that. Please try again.",
	CodeMediaBinaryMissing:    "❌ Audio tooling is missing on the server. Tell an admin.",
	CodeMediaResolveFailed:    "❌ Couldn't find anything for that request.",
	CodeSessionNotInVoice:     "🔊 Join a voice channel first.",
	CodeSessionVoiceFailed:    "❌ Couldn't connect to the voice channel.",
	CodeSessionNoPermission:   "🚫 You don't have permission to do that here.",
	CodeQueueDuplicate:        "ℹ️ That song is already in the queue.",
	CodeQueueEmpty:            "ℹ️ The queue is empty.",
	CodeQueueFull:             "❌ The queue is full right now.",
	CodeValidationInvalidQuery: "❌ That doesn't look like a playable query.",
	CodeValidationInvalidURL:   "❌ That URL doesn't look valid.",
	CodeValidationInvalidVolume: "❌ Volume must be between 0 and 100.",
	CodeNetworkAuthFailed:       "❌ Catalog authentication failed. Try again in a minute.",
	CodeNetworkServiceUnavailable: "❌ The music catalog is unreachable right now.",
	CodePlatformUnknownInteraction: "❌ Unknown interaction. The control panel may be stale; run /components to refresh it.",
	CodeSystemRateLimited:          "🐢 Slow down a little.",
}

var categoryFallbacks = map[Category]string{
	CategoryMedia:      "❌ Something went wrong fetching that media.",
	CategorySession:    "❌ Session error. Try again.",
	CategoryQueue:      "❌ Queue operation failed.",
	CategoryValidation: "❌ Invalid input.",
	CategoryNetwork:    "❌ Network error talking to an upstream service.",
	CategoryPlatform:   "❌ Discord rejected that operation.",
	CategorySystem:     "❌ Internal error. It has been logged.",
}

// UserMessage renders err as a short reply suitable for an ephemeral
// interaction response. Faults with known codes get specific wording; the
// duration-limit and rate-limit codes interpolate their details.
func UserMessage(err error) string {
	f, ok := As(err)
	if !ok {
		return "❌ Something went wrong."
	}

	switch f.Code {
	case CodeMediaDurationLimit:
		dur, _ := f.Details["duration"].(time.Duration)
		limit, _ := f.Details["limit"].(time.Duration)
		if dur > 0 && limit > 0 {
			return fmt.Sprintf("⏱️ Duration limit exceeded (%s > %s).", formatDuration(dur), formatDuration(limit))
		}
		return "⏱️ That track is longer than this server's duration limit."
	case CodeSystemRateLimited, CodeNetworkRateLimited:
		if retryAfter, ok := f.Details["retry_after"].(time.Duration); ok && retryAfter > 0 {
			return fmt.Sprintf("🐢 Slow down a little. Try again in %s.", formatDuration(retryAfter))
		}
	}

	if msg, ok := userMessages[f.Code]; ok {
		return msg
	}
	if msg, ok := categoryFallbacks[f.Category]; ok {
		return msg
	}
	return "❌ Something went wrong."
}

// formatDuration renders a duration as "3m 30s" style text for user messages.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	if d < time.Hour {
		if seconds == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
