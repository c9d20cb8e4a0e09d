package accesskit

import (
	"time"

	"github.com/fernandezvara/dbkit"
)

// PoolConfig holds connection pool settings for BunStore.
type PoolConfig struct {
	MaxOpenConnections    int
	MaxIdleConnections    int
	ConnectionMaxLifetime time.Duration
	ConnectionMaxIdleTime time.Duration
}

// DefaultPoolConfig returns the settings used when none are configured.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConnections:    25,
		MaxIdleConnections:    5,
		ConnectionMaxLifetime: 30 * time.Minute,
		ConnectionMaxIdleTime: 5 * time.Minute,
	}
}

// ConfigurePool updates the database connection pool settings. Zero fields
// keep the defaults.
func (s *BunStore) ConfigurePool(config PoolConfig) error {
	db, ok := s.db.(*dbkit.DBKit)
	if !ok {
		return NewError(ErrStorage, "connection pool configuration requires a dbkit.DBKit instance")
	}
	bunDB := db.Bun()
	if bunDB == nil {
		return NewError(ErrStorage, "database instance not available")
	}

	def := DefaultPoolConfig()
	if config.MaxOpenConnections <= 0 {
		config.MaxOpenConnections = def.MaxOpenConnections
	}
	if config.MaxIdleConnections <= 0 {
		config.MaxIdleConnections = def.MaxIdleConnections
	}
	if config.MaxIdleConnections > config.MaxOpenConnections {
		config.MaxIdleConnections = config.MaxOpenConnections
	}
	if config.ConnectionMaxLifetime <= 0 {
		config.ConnectionMaxLifetime = def.ConnectionMaxLifetime
	}
	if config.ConnectionMaxIdleTime <= 0 {
		config.ConnectionMaxIdleTime = def.ConnectionMaxIdleTime
	}

	bunDB.SetMaxOpenConns(config.MaxOpenConnections)
	bunDB.SetMaxIdleConns(config.MaxIdleConnections)
	bunDB.SetConnMaxLifetime(config.ConnectionMaxLifetime)
	bunDB.SetConnMaxIdleTime(config.ConnectionMaxIdleTime)
	return nil
}

// PoolStats returns connection pool statistics. ok is false when the store
// is bound to a transaction.
func (s *BunStore) PoolStats() (stats dbkit.PoolStats, ok bool) {
	db, isKit := s.db.(*dbkit.DBKit)
	if !isKit {
		return dbkit.PoolStats{}, false
	}
	return dbkit.PoolStatsFromSQL(db.Stats()), true
}
