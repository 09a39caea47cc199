// Package password implements the credential hasher: argon2id with
// per-call random salts, PHC-encoded records, constant-time
// verification, and a rehash check for parameter upgrades.
//
// Only the encoded record ever crosses a persistence boundary; raw
// secrets exist transiently on the stack during Hash and Verify.
package password
