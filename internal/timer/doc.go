// Package timer implements the accounting rules for per-task Pomodoro
// timers
//
// Every function in this package is pure: it receives a timer state and an
// explicit reference time and returns the normalized state together with a
// flag reporting whether the countdown just crossed zero. Persistence,
// notification and push are left to the callers
package timer
