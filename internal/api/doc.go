// Package api implements the AuthZEN HTTP binding of the PDP.
//
// # Endpoints
//
// Access evaluation:
//   - POST /access/v1/evaluation - Single decision
//   - POST /access/v1/evaluations - Batched decisions with evaluation semantics
//
// Search:
//   - POST /access/v1/search/subject - Subjects allowed on a resource
//   - POST /access/v1/search/resource - Resources a subject may act on
//   - POST /access/v1/search/action - Actions a subject may perform
//
// Metadata and probes:
//   - GET /.well-known/authzen-configuration - PDP metadata document
//   - GET /health - Liveness
//
// # Request IDs
//
// An X-Request-ID header is echoed on the response and attached to the
// decision log. Requests without one get a generated id.
//
// # Error Handling
//
// Errors return {"error": "<message>"} with the status mapped from the
// authzen error code. Internal errors are logged but not exposed to clients.
package api
