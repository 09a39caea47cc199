// Package jwt issues and verifies the short-lived, stateless access
// tokens, with kid-routed key rotation (current + previous key).
package jwt
