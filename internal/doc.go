// Package internal holds shared crypto-random helpers: session IDs,
// refresh secrets, and the opaque refresh-token wire format. Nothing in
// here is part of the public API.
package internal
