// Package password hashes and verifies user passwords.
//
// New hashes use Argon2id (PHC-style encoded string) or bcrypt, picked by
// Config.Algorithm. Verify reads the scheme from the stored hash, so both
// kinds stay verifiable after the setting changes.
//
// Stored hashes are treated as untrusted input: Verify rejects malformed
// strings and parameters far above the configured cost.
//
// Hasher bounds how many hash/verify calls run at once.
package password
