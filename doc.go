// Package authcore provides an embeddable authentication engine with
// JWT access tokens, rotating opaque refresh tokens, and Redis-backed
// sessions with refresh reuse detection.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder],
// [Config], and value types. Internal coordination — refresh token
// wire format, rate limiting, audit dispatch — lives under internal/
// and is never exported.
//
// # Performance contract
//
// ValidateAccess is the hot path: it verifies signature and expiry
// locally and never touches Redis. Login, Refresh, and account
// operations each take a small bounded number of Redis round-trips.
package authcore
