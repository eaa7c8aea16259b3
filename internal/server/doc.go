// Package server exposes migration runs and the journal over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering. Requests no route matches
// get a 404 in HTML, JSON or plain text, depending on the Accept header.
//
// # Migration Handler
//
// [MigrationHandler] serves:
//   - POST /migrations : start a run in the background (409 while one is active)
//   - GET /items, GET /items/{id} : read the journal
//   - GET /runs : run history
//   - GET /health : liveness and item counts
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
