// Package rtlog centralizes structured logging on top of go-ethereum's log
// package so every component logs through the same leveled, key-value
// surface instead of ad hoc fmt.Printf/log.Printf calls.
package rtlog

import "github.com/ethereum/go-ethereum/log"

// New returns a component-scoped logger, e.g. rtlog.New("filter", "kind", "log").
func New(component string, ctx ...any) log.Logger {
	return log.New(append([]any{"component", component}, ctx...)...)
}
