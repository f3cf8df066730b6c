// Package handlers holds the built-in message type → notification mappings.
package handlers

import (
	"vn.io.arda/realtime/internal/classify/registry"
)

// Default returns a registry with every built-in handler bound.
func Default() *registry.Registry {
	r := registry.New()
	Register(r)
	return r
}

// Register binds the built-in handlers onto r, so callers can layer their own
// types on top of the defaults.
func Register(r *registry.Registry) {
	registerRequests(r)
	registerEvents(r)
	registerSystem(r)
	r.Register("notification", handleDirect)
	r.SetFallback(handleUnclassified)
}
