// Package routes declares HTTP endpoints as nested prefix groups and
// registers them on a ServeMux.
package routes

import (
	"net/http"

	"github.com/JaimeStill/lexis/pkg/middleware"
)

// Route binds an HTTP method and path pattern to a handler.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

// Group shares a path prefix and middleware across its routes and children.
// Child groups inherit the parent's middleware outside their own.
type Group struct {
	Prefix     string
	Middleware []middleware.Func
	Routes     []Route
	Children   []Group
}

// Register adds every route in groups to mux and returns the registered
// patterns in registration order.
func Register(mux *http.ServeMux, groups ...Group) []string {
	var patterns []string
	for _, g := range groups {
		patterns = register(mux, "", nil, g, patterns)
	}
	return patterns
}

func register(mux *http.ServeMux, parent string, inherited []middleware.Func, g Group, out []string) []string {
	prefix := parent + g.Prefix
	chain := append(append([]middleware.Func{}, inherited...), g.Middleware...)

	stack := middleware.New()
	stack.Use(chain...)

	for _, r := range g.Routes {
		pattern := r.Method + " " + prefix + r.Pattern
		mux.Handle(pattern, stack.Apply(r.Handler))
		out = append(out, pattern)
	}
	for _, child := range g.Children {
		out = register(mux, prefix, chain, child, out)
	}
	return out
}
