package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// Durations past which a finished operation or query logs a warning rather
// than a debug line.
const (
	slowOperation = 30 * time.Second
	slowQuery     = 5 * time.Second
)

// OperationTimer measures one operation, defer-style:
//
//	defer utils.OperationTimer("retention_cleanup", log)()
func OperationTimer(operation string, log zerolog.Logger) func() {
	start := time.Now()

	return func() {
		duration := time.Since(start)

		if duration > slowOperation {
			log.Warn().
				Str("operation", operation).
				Dur("duration_ms", duration).
				Msg("Slow operation detected")
			return
		}

		log.Debug().
			Str("operation", operation).
			Dur("duration_ms", duration).
			Msg("Operation completed")
	}
}

// MeasureDBQuery measures one database statement. The returned func takes the
// affected row count so bulk writes surface their volume next to the timing.
func MeasureDBQuery(queryName string, log zerolog.Logger) func(rowsAffected int64) {
	start := time.Now()

	return func(rowsAffected int64) {
		duration := time.Since(start)

		log.Debug().
			Str("query", queryName).
			Dur("duration_ms", duration).
			Int64("rows_affected", rowsAffected).
			Msg("Database query completed")

		if duration > slowQuery {
			log.Warn().
				Str("query", queryName).
				Dur("duration", duration).
				Int64("rows_affected", rowsAffected).
				Msg("Slow database query detected")
		}
	}
}
