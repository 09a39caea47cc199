// Package rate implements Redis-backed fixed-window rate limiting for
// authentication flows.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - ac:rl:li:  — login per-identifier
//   - ac:rl:lip: — login per-IP
//   - ac:rl:rf:  — refresh per-session
package rate
