// Package database provides the connection pool for the media-sync daemon's
// PostgreSQL database.
//
// The daemon owns the schema and all writes. This process opens a small
// pool for the task feed; sessions are forced read-only on connect.
package database
