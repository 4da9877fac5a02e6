// Package model defines the wire protocol and shared data types for the
// media-sync dashboard event stream.
//
// Both peers import this package: the realtime client decodes EventFrame and
// encodes ControlFrame, the hub does the reverse.
//
// Conventions:
//   - Timestamps: int64 microseconds since Unix epoch
//   - JSON keys: camelCase (the dashboard renders these verbatim)
//   - Event frames carry at most one category field; receivers ignore frames
//     with no known field
package model
