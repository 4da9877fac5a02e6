// Package tasks feeds the dashboard's task list from the media-sync daemon.
//
// The task feed:
//   - Snapshots a Source on an interval, immediately on start
//   - Publishes only when the list actually changed
//   - Reads the daemon's sync_tasks table (PGSource) or generates a demo
//     list without a database (MockSource)
package tasks
