// Package trac is the allocation front end: public entry points that
// route raw-memory requests to backing memory kinds, account every live
// allocation and trace large ones with symbolic call stacks.
//
// Callers deal in machine addresses. Until Setup has run, and again
// after Teardown, every entry point passes straight through to the
// underlying allocator; in between, each goroutine lazily binds a
// handler that owns its allocation table and trace log. A nesting flag
// per goroutine keeps the library's own allocations out of the routing
// path.
package trac
