package logging

import (
	"fmt"
)

// PipelineLogger wraps a base logger with a named sub-pipeline context
type PipelineLogger struct {
	base     Logger
	pipeline string
	context  map[string]interface{}
}

// NewPipelineLogger creates a new pipeline-specific logger
func NewPipelineLogger(base Logger, pipeline string) *PipelineLogger {
	return &PipelineLogger{
		base:     base,
		pipeline: pipeline,
		context:  make(map[string]interface{}),
	}
}

// Info logs informational messages with pipeline context
func (p *PipelineLogger) Info(msg string, fields map[string]interface{}) {
	p.base.Info(fmt.Sprintf("[%s] %s", p.pipeline, msg), p.enrichFields(fields))
}

// Error logs error messages with pipeline context
func (p *PipelineLogger) Error(msg string, err error, fields map[string]interface{}) {
	p.base.Error(fmt.Sprintf("[%s] %s", p.pipeline, msg), err, p.enrichFields(fields))
}

// Warn logs warning messages with pipeline context
func (p *PipelineLogger) Warn(msg string, fields map[string]interface{}) {
	p.base.Warn(fmt.Sprintf("[%s] %s", p.pipeline, msg), p.enrichFields(fields))
}

// Debug logs debug messages with pipeline context
func (p *PipelineLogger) Debug(msg string, fields map[string]interface{}) {
	p.base.Debug(fmt.Sprintf("[%s] %s", p.pipeline, msg), p.enrichFields(fields))
}

// WithPipeline creates a new logger with updated pipeline context
func (p *PipelineLogger) WithPipeline(pipeline string) Logger {
	return &PipelineLogger{
		base:     p.base,
		pipeline: pipeline,
		context:  p.copyContext(),
	}
}

// WithContext creates a new logger with additional context fields
func (p *PipelineLogger) WithContext(ctx map[string]interface{}) Logger {
	newContext := p.copyContext()
	for k, v := range ctx {
		newContext[k] = v
	}

	return &PipelineLogger{
		base:     p.base,
		pipeline: p.pipeline,
		context:  newContext,
	}
}

// enrichFields combines pipeline context with provided fields
func (p *PipelineLogger) enrichFields(fields map[string]interface{}) map[string]interface{} {
	enriched := make(map[string]interface{})

	for k, v := range p.context {
		enriched[k] = v
	}
	for k, v := range fields {
		enriched[k] = v
	}
	enriched["pipeline"] = p.pipeline

	return enriched
}

// copyContext creates a copy of the current context
func (p *PipelineLogger) copyContext() map[string]interface{} {
	newContext := make(map[string]interface{})
	for k, v := range p.context {
		newContext[k] = v
	}
	return newContext
}

// SessionLogger carries per-guild session context
type SessionLogger struct {
	*PipelineLogger
	guildID string
}

// NewSessionLogger creates a logger for one guild's session engine
func NewSessionLogger(base Logger, guildID string) *SessionLogger {
	pipelineLogger := NewPipelineLogger(base, "engine")

	sessionContext := map[string]interface{}{
		"guild_id": guildID,
	}

	return &SessionLogger{
		PipelineLogger: pipelineLogger.WithContext(sessionContext).(*PipelineLogger),
		guildID:        guildID,
	}
}

// WithUser adds user context to the session logger
func (s *SessionLogger) WithUser(userID string) Logger {
	return s.WithContext(map[string]interface{}{
		"user_id": userID,
	})
}

// WithTrack adds track context to the session logger
func (s *SessionLogger) WithTrack(streamKey string) Logger {
	return s.WithContext(map[string]interface{}{
		"stream_key": streamKey,
	})
}

// CommandLogger carries the command name for interaction handlers
type CommandLogger struct {
	*PipelineLogger
	commandName string
}

// NewCommandLogger creates a new command logger
func NewCommandLogger(base Logger, commandName string) *CommandLogger {
	pipelineLogger := NewPipelineLogger(base, "commands")

	commandContext := map[string]interface{}{
		"command": commandName,
	}

	return &CommandLogger{
		PipelineLogger: pipelineLogger.WithContext(commandContext).(*PipelineLogger),
		commandName:    commandName,
	}
}

// WithInteraction adds interaction context to the command logger
func (c *CommandLogger) WithInteraction(guildID, userID, channelID string) Logger {
	return c.WithContext(map[string]interface{}{
		"guild_id":   guildID,
		"user_id":    userID,
		"channel_id": channelID,
	})
}
