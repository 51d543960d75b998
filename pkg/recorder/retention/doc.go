// Package retention deletes run records past their retention period or
// beyond a maximum count, optionally on a cron schedule.
package retention
