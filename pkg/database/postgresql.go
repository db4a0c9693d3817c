package database

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewGormDB creates a new GORM database connection using the provided DSN.
// A connect timeout is appended when the DSN does not carry one.
func NewGormDB(dsn string, connectTimeout time.Duration) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("database DSN is not set")
	}

	dsn = ensureConnectTimeout(dsn, connectTimeout)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	return db, nil
}

// ensureConnectTimeout appends connect_timeout to a DSN that lacks one.
// Both URL and key=value DSN forms are handled.
func ensureConnectTimeout(dsn string, timeout time.Duration) string {
	if timeout <= 0 {
		return dsn
	}
	seconds := int(timeout.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	if strings.Contains(dsn, "connect_timeout") {
		return dsn
	}

	if strings.Contains(dsn, "://") {
		if u, err := url.Parse(dsn); err == nil {
			q := u.Query()
			q.Set("connect_timeout", fmt.Sprintf("%d", seconds))
			u.RawQuery = q.Encode()
			return u.String()
		}
		return dsn
	}

	return fmt.Sprintf("%s connect_timeout=%d", dsn, seconds)
}

// TunePool sizes the connection pool from the guild count. Called again
// after the gateway reports ready, once the real count is known.
func TunePool(db *gorm.DB, guildCount int, connMaxIdle time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(clamp(2*guildCount, 5, 20))
	sqlDB.SetMaxIdleConns(clamp(guildCount, 2, 5))
	sqlDB.SetConnMaxIdleTime(connMaxIdle)
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
