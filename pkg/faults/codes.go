package faults

// Stable fault codes. These are part of the logging and user-messaging
// contract; renaming one is a breaking change.
const (
	// MEDIA
	CodeMediaUnsupportedURL   = "MEDIA_UNSUPPORTED_URL"
	CodeMediaUnavailable      = "MEDIA_UNAVAILABLE"
	CodeMediaDurationLimit    = "MEDIA_DURATION_LIMIT_EXCEEDED"
	CodeMediaArtifactMissing  = "MEDIA_ARTIFACT_MISSING"
	CodeMediaProcessTimeout   = "MEDIA_PROCESSING_TIMEOUT"
	CodeMediaBinaryMissing    = "MEDIA_BINARY_MISSING"
	CodeMediaResolveFailed    = "MEDIA_RESOLVE_FAILED"
	CodeMediaPlaylistTooLarge = "MEDIA_PLAYLIST_TRUNCATED"

	// SESSION
	CodeSessionNotFound        = "SESSION_NOT_FOUND"
	CodeSessionCreateFailed    = "SESSION_CREATION_FAILED"
	CodeSessionVoiceFailed     = "SESSION_VOICE_CONNECTION_FAILED"
	CodeSessionNoPermission    = "SESSION_MISSING_PERMISSIONS"
	CodeSessionChannelNotFound = "SESSION_CHANNEL_NOT_FOUND"
	CodeSessionUserNotFound    = "SESSION_USER_NOT_FOUND"
	CodeSessionNotInVoice      = "SESSION_NOT_IN_VOICE_CHANNEL"

	// QUEUE
	CodeQueueFull            = "QUEUE_FULL"
	CodeQueueDuplicate       = "QUEUE_DUPLICATE_SONG"
	CodeQueueEmpty           = "QUEUE_EMPTY"
	CodeQueueInvalidPosition = "QUEUE_INVALID_POSITION"
	CodeQueuePersistFailed   = "QUEUE_PERSIST_FAILED"
	CodeQueuePreloadFailed   = "QUEUE_PRELOAD_FAILED"

	// VALIDATION
	CodeValidationInvalidID       = "VALIDATION_INVALID_ID"
	CodeValidationInvalidQuery    = "VALIDATION_INVALID_QUERY"
	CodeValidationInvalidURL      = "VALIDATION_INVALID_URL"
	CodeValidationMissingField    = "VALIDATION_MISSING_FIELD"
	CodeValidationInvalidDuration = "VALIDATION_INVALID_DURATION"
	CodeValidationInvalidVolume   = "VALIDATION_INVALID_VOLUME"

	// NETWORK
	CodeNetworkTimeout            = "NETWORK_REQUEST_TIMEOUT"
	CodeNetworkConnectionFailed   = "NETWORK_CONNECTION_FAILED"
	CodeNetworkRateLimited        = "NETWORK_RATE_LIMITED"
	CodeNetworkServiceUnavailable = "NETWORK_SERVICE_UNAVAILABLE"
	CodeNetworkInvalidResponse    = "NETWORK_INVALID_RESPONSE"
	CodeNetworkAuthFailed         = "NETWORK_AUTH_FAILED"
	CodeNetworkServerError        = "NETWORK_SERVER_ERROR"

	// PLATFORM
	CodePlatformUnknownMessage     = "PLATFORM_UNKNOWN_MESSAGE"
	CodePlatformUnknownChannel     = "PLATFORM_UNKNOWN_CHANNEL"
	CodePlatformUnknownGuild       = "PLATFORM_UNKNOWN_GUILD"
	CodePlatformUnknownUser        = "PLATFORM_UNKNOWN_USER"
	CodePlatformNoPermission       = "PLATFORM_MISSING_PERMISSIONS"
	CodePlatformInvalidBody        = "PLATFORM_INVALID_BODY"
	CodePlatformInteractionExpired = "PLATFORM_INTERACTION_EXPIRED"
	CodePlatformWebhookExpired     = "PLATFORM_WEBHOOK_EXPIRED"
	CodePlatformUnknownInteraction = "PLATFORM_UNKNOWN_INTERACTION"

	// SYSTEM
	CodeSystemMemoryLimit       = "SYSTEM_MEMORY_LIMIT"
	CodeSystemFilesystem        = "SYSTEM_FILESYSTEM"
	CodeSystemSubprocessCreate  = "SYSTEM_SUBPROCESS_CREATE_FAILED"
	CodeSystemSubprocessKill    = "SYSTEM_SUBPROCESS_KILL_FAILED"
	CodeSystemTempCleanupFailed = "SYSTEM_TEMP_CLEANUP_FAILED"
	CodeSystemConfig            = "SYSTEM_CONFIG"
	CodeSystemRateLimited       = "SYSTEM_RATE_LIMITED"
)

// retryableCodes are transient failures worth another attempt.
var retryableCodes = map[string]bool{
	CodeNetworkTimeout:            true,
	CodeNetworkConnectionFailed:   true,
	CodeNetworkServiceUnavailable: true,
	CodeNetworkServerError:        true,
	CodeSystemSubprocessCreate:    true,
}

// silentCodes are expected outcomes of normal user behavior and are only
// logged at debug level.
var silentCodes = map[string]bool{
	CodeQueueDuplicate:         true,
	CodeValidationInvalidQuery: true,
}

// criticalCodes are logged at error level and abort startup when raised
// during initialization.
var criticalCodes = map[string]bool{
	CodeSystemMemoryLimit:   true,
	CodeSessionCreateFailed: true,
	CodeMediaBinaryMissing:  true,
	CodeSystemConfig:        true,
}

// IsRetryable reports whether err carries a transient code.
func IsRetryable(err error) bool {
	return retryableCodes[CodeOf(err)]
}

// IsSilent reports whether err should skip warn/error logging.
func IsSilent(err error) bool {
	return silentCodes[CodeOf(err)]
}

// IsCritical reports whether err carries a startup-aborting code.
func IsCritical(err error) bool {
	return criticalCodes[CodeOf(err)]
}
