// Package session implements registration and password login.
//
// Register hashes the password and inserts the identity atomically.
// Login verifies credentials and issues a bearer token. Unknown users and
// wrong passwords produce the same ErrInvalidCredentials; the distinction
// only shows up in logs. Repeated failures for one username are throttled
// through a bounded in-memory LRU.
//
// Transport (HTTP) integration lives in auth/api.
package session
