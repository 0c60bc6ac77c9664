// Package api defines the shared data types for the task timer backend
//
// This package contains the task row with its embedded timer state, timer
// snapshots and update requests, notifications, and the HTTP and WebSocket
// message envelopes exchanged with clients
package api
