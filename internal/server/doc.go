// Package server implements the HTTP API of the timer service
//
// This package provides REST endpoints for task timers, notifications and
// health checks, plus a WebSocket endpoint that streams timer snapshots and
// notifications to subscribed clients. The acting user is taken from the
// X-User-ID header set by the authenticating gateway
package server
