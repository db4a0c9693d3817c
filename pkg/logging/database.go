package logging

import (
	"time"
)

// DatabaseLogger wraps a base logger and persists warn/error entries through
// a LogRepository. Persistence is asynchronous and never fails the caller;
// info/debug entries stay in-process only, which keeps hot playback paths off
// the database.
type DatabaseLogger struct {
	base       Logger
	component  string
	context    map[string]interface{}
	repository LogRepository
}

// NewDatabaseLogger creates a new database-backed logger around base
func NewDatabaseLogger(base Logger, component string, repository LogRepository) *DatabaseLogger {
	return &DatabaseLogger{
		base:       base,
		component:  component,
		context:    make(map[string]interface{}),
		repository: repository,
	}
}

// Info logs an info message
func (d *DatabaseLogger) Info(msg string, fields map[string]interface{}) {
	d.base.Info(msg, d.mergeContext(fields))
}

// Error logs an error message and persists it
func (d *DatabaseLogger) Error(msg string, err error, fields map[string]interface{}) {
	merged := d.mergeContext(fields)
	d.base.Error(msg, err, merged)

	errorStr := ""
	if err != nil {
		errorStr = err.Error()
	}
	d.persistLog("ERROR", msg, errorStr, merged)
}

// Warn logs a warning message and persists it
func (d *DatabaseLogger) Warn(msg string, fields map[string]interface{}) {
	merged := d.mergeContext(fields)
	d.base.Warn(msg, merged)
	d.persistLog("WARN", msg, "", merged)
}

// Debug logs a debug message
func (d *DatabaseLogger) Debug(msg string, fields map[string]interface{}) {
	d.base.Debug(msg, d.mergeContext(fields))
}

// WithPipeline creates a new logger with pipeline context
func (d *DatabaseLogger) WithPipeline(pipeline string) Logger {
	newContext := copyFields(d.context)
	newContext["pipeline"] = pipeline

	return &DatabaseLogger{
		base:       d.base,
		component:  d.component,
		context:    newContext,
		repository: d.repository,
	}
}

// WithContext creates a new logger with additional context
func (d *DatabaseLogger) WithContext(ctx map[string]interface{}) Logger {
	newContext := copyFields(d.context)
	for k, v := range ctx {
		newContext[k] = v
	}

	return &DatabaseLogger{
		base:       d.base,
		component:  d.component,
		context:    newContext,
		repository: d.repository,
	}
}

// persistLog saves the entry without blocking the caller. A failed save is
// reported through the base logger only, to avoid recursion.
func (d *DatabaseLogger) persistLog(level, message, errorStr string, fields map[string]interface{}) {
	if d.repository == nil {
		return
	}

	entry := LogEntry{
		Component: d.component,
		Level:     level,
		Message:   message,
		Error:     errorStr,
		Fields:    fields,
	}

	if guildID, ok := fields["guild_id"].(string); ok {
		entry.GuildID = guildID
	}
	if userID, ok := fields["user_id"].(string); ok {
		entry.UserID = userID
	}
	if channelID, ok := fields["channel_id"].(string); ok {
		entry.ChannelID = channelID
	}
	entry.Fields["logged_at"] = time.Now()

	go func() {
		if saveErr := d.repository.SaveLog(entry); saveErr != nil {
			d.base.Error("Failed to persist log entry", saveErr, map[string]interface{}{
				"original_message": message,
				"original_level":   level,
			})
		}
	}()
}

// mergeContext combines the logger context with call-site fields
func (d *DatabaseLogger) mergeContext(fields map[string]interface{}) map[string]interface{} {
	if len(d.context) == 0 && fields != nil {
		return fields
	}
	merged := copyFields(d.context)
	for k, v := range fields {
		merged[k] = v
	}
	return merged
}

func copyFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
