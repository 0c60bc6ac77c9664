// Package taskquest holds build identity shared by the service binaries
package taskquest

// Name is the service name reported in logs and health checks
const Name = "taskquest"

// Version is overridden at build time with -ldflags
var Version = "dev"
