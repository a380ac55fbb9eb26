// Package httpapi exposes the engine's operations over REST.
//
// Every library operation maps 1:1 to an endpoint, and the engine's error
// taxonomy maps to distinct status codes so callers can react precisely:
// 404 not found, 403 unauthorized, 409 invalid transition, 412 version
// conflict, 422 validation failure, 410 terminal workflow.
//
// Actor identity is resolved per request by an injected IdentityResolver;
// the API trusts the resolution exactly as the engine does.
package httpapi
