// Package scheduler fires named jobs on cron specs (robfig/cron, optional
// seconds field) in a configured timezone. A job still running when its next
// trigger arrives is skipped, never queued.
package scheduler
