// Package middleware provides the HTTP middleware stack used by API modules.
package middleware

import "net/http"

// Func wraps an http.Handler.
type Func = func(http.Handler) http.Handler

// System is an ordered middleware stack. The first registered middleware
// runs outermost.
type System interface {
	Use(mw ...Func)
	Apply(handler http.Handler) http.Handler
	Len() int
}

type stack struct {
	fns []Func
}

// New creates an empty middleware System.
func New() System {
	return &stack{}
}

func (s *stack) Use(mw ...Func) {
	s.fns = append(s.fns, mw...)
}

func (s *stack) Len() int {
	return len(s.fns)
}

func (s *stack) Apply(handler http.Handler) http.Handler {
	for i := len(s.fns) - 1; i >= 0; i-- {
		handler = s.fns[i](handler)
	}
	return handler
}
