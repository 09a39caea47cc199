// Package session stores refresh sessions in Redis and implements
// atomic refresh rotation with reuse detection. Sessions hold only the
// SHA-256 of the refresh secret; the rotation compare-and-swap runs as
// a single Lua script so at most one concurrent refresh can win.
package session
