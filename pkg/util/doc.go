// Package util provides small generic data structures shared across the
// timer backend
package util
