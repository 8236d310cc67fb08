// Package identity stores user credentials.
//
// An Identity is keyed by its username; uniqueness is enforced on the
// normalized (trimmed, lower-cased) form so "Alice" and "alice" collide.
// Stores only hold already-hashed passwords and never see plaintext.
//
// Two Store implementations are provided: MemoryStore for tests and
// single-process runs, and PostgresStore for durable deployments.
package identity
