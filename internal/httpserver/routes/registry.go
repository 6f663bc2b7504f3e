// Package routes mounts the daemon's HTTP surface. Each file registers one
// group of routes from init.
package routes

import (
	"fmt"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/balmgr/internal/httpserver/deps"
)

// Registrar mounts one group of routes.
type Registrar func(r chi.Router, d deps.Deps)

var registry = map[string]Registrar{}

// Register adds a named group. Registering a name twice panics.
func Register(name string, reg Registrar) {
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("routes: %q registered twice", name))
	}
	registry[name] = reg
}

// RegisterAll mounts every group on r in name order. Called once from httpserver.New.
func RegisterAll(r chi.Router, d deps.Deps) {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		registry[name](r, d)
	}
}
