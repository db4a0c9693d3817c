package logging

import (
	"sync"
)

// DefaultLoggerFactory implements LoggerFactory using zap loggers
type DefaultLoggerFactory struct {
	loggers map[string]Logger
	mu      sync.RWMutex
}

// NewLoggerFactory creates a new logger factory
func NewLoggerFactory() LoggerFactory {
	return &DefaultLoggerFactory{
		loggers: make(map[string]Logger),
	}
}

// CreateLogger creates a basic logger for the specified component
func (f *DefaultLoggerFactory) CreateLogger(component string) Logger {
	f.mu.Lock()
	defer f.mu.Unlock()

	if logger, exists := f.loggers[component]; exists {
		return logger
	}

	logger := NewZapLogger(component)
	f.loggers[component] = logger
	return logger
}

// CreateSessionLogger creates a logger scoped to one guild's session engine
func (f *DefaultLoggerFactory) CreateSessionLogger(guildID string) Logger {
	baseLogger := f.CreateLogger("session")
	return NewSessionLogger(baseLogger, guildID)
}

// CreateCommandLogger creates a logger for interaction command handlers
func (f *DefaultLoggerFactory) CreateCommandLogger(commandName string) Logger {
	baseLogger := f.CreateLogger("commands")
	return NewCommandLogger(baseLogger, commandName)
}

// CreateQueueLogger creates a logger scoped to one guild's queue
func (f *DefaultLoggerFactory) CreateQueueLogger(guildID string) Logger {
	baseLogger := f.CreateLogger("queue")
	return baseLogger.WithContext(map[string]interface{}{"guild_id": guildID})
}

// DatabaseLoggerFactory extends the default factory with database persistence
type DatabaseLoggerFactory struct {
	*DefaultLoggerFactory
	repository LogRepository
}

// NewDatabaseLoggerFactory creates a logger factory whose loggers persist
// warn and error entries through the given repository
func NewDatabaseLoggerFactory(repository LogRepository) LoggerFactory {
	return &DatabaseLoggerFactory{
		DefaultLoggerFactory: &DefaultLoggerFactory{
			loggers: make(map[string]Logger),
		},
		repository: repository,
	}
}

// CreateLogger creates a database-backed logger for the specified component
func (f *DatabaseLoggerFactory) CreateLogger(component string) Logger {
	f.mu.Lock()
	defer f.mu.Unlock()

	if logger, exists := f.loggers[component]; exists {
		return logger
	}

	baseLogger := NewZapLogger(component)
	dbLogger := NewDatabaseLogger(baseLogger, component, f.repository)
	f.loggers[component] = dbLogger
	return dbLogger
}

// CreateSessionLogger creates a database-backed guild session logger
func (f *DatabaseLoggerFactory) CreateSessionLogger(guildID string) Logger {
	baseLogger := f.CreateLogger("session")
	return NewSessionLogger(baseLogger, guildID)
}

// CreateCommandLogger creates a database-backed command logger
func (f *DatabaseLoggerFactory) CreateCommandLogger(commandName string) Logger {
	baseLogger := f.CreateLogger("commands")
	return NewCommandLogger(baseLogger, commandName)
}

// CreateQueueLogger creates a database-backed guild queue logger
func (f *DatabaseLoggerFactory) CreateQueueLogger(guildID string) Logger {
	baseLogger := f.CreateLogger("queue")
	return baseLogger.WithContext(map[string]interface{}{"guild_id": guildID})
}

// Global logger factory singleton
var (
	globalFactory LoggerFactory
	factoryOnce   sync.Once
	factoryMu     sync.RWMutex
)

// GetGlobalLoggerFactory returns the global logger factory instance
func GetGlobalLoggerFactory() LoggerFactory {
	factoryMu.RLock()
	if globalFactory != nil {
		defer factoryMu.RUnlock()
		return globalFactory
	}
	factoryMu.RUnlock()

	factoryOnce.Do(func() {
		factoryMu.Lock()
		defer factoryMu.Unlock()
		if globalFactory == nil {
			globalFactory = NewLoggerFactory()
		}
	})
	return globalFactory
}

// SetGlobalLoggerFactory sets the global logger factory. Called once at
// startup, before any component asks for a logger.
func SetGlobalLoggerFactory(factory LoggerFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	globalFactory = factory
}
