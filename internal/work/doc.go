// Package work implements the background work processor: a single-worker,
// event-driven job system with priorities, dependencies and timing windows.
//
// # Work Type Architecture
//
// The processor executes background jobs based on:
//   - Event triggers (completions cleared when state changes)
//   - Timing windows (maintenance window, off-peak, per-service monitoring)
//   - Intervals (minimum time between executions)
//
// # Interval Design
//
// Intervals are operationally chosen and hardcoded:
//
//   - rules:refresh: 24 hours - safety net behind the file watcher; a stale
//     matrix silently corrupts every verdict
//   - sweep:compliance: 24 hours - one deep roster sweep a day; the monitor's
//     own 30-minute incremental sweep covers the live path
//   - coverage:refresh: 1 hour - full-day recompute per watched service; the
//     live monitor tick covers the current interval
//   - retention:cleanup: 24 hours - daily trim keeps the audit and cache
//     tables from growing without bound
//   - backup:daily / backup:upload / backup:rotate: 24 hours - standard
//     nightly backup chain
//
// Event triggers clear completions to force earlier re-runs (a reloaded rule
// matrix makes the sweep stale immediately); the manual execute API bypasses
// intervals entirely.
//
// # Timing Windows
//
// Work types declare when they may run:
//   - MaintenanceWindow: only inside the nightly window (backups, retention)
//   - OffPeak: deferred while live monitoring or bulk validation is active
//   - WhileWatched: per-service work, only while that service is monitored
//   - AnyTime: no constraint (rules:refresh)
//
// This keeps heavy recomputes away from the intraday monitoring path while
// critical refreshes stay immediate.
package work
