package identity

import (
	"context"
	"strings"
	"time"
)

// Identity is a registered user.
// PasswordHash is an encoded digest; plaintext never reaches a Store.
type Identity struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Store is the credential persistence boundary.
type Store interface {
	// InsertIfAbsent stores id unless its normalized username exists.
	// The check and the insert are one atomic step; a lost race returns ConflictError.
	InsertIfAbsent(ctx context.Context, id Identity) error

	// Lookup returns the identity for username (normalized) or NotFoundError.
	Lookup(ctx context.Context, username string) (Identity, error)
}

// prepare validates id and fills defaults shared by all stores.
func prepare(op string, id Identity) (Identity, string, error) {
	id.Username = strings.TrimSpace(id.Username)
	if id.Username == "" {
		return Identity{}, "", invalid(op, "username is required")
	}
	if strings.TrimSpace(id.PasswordHash) == "" {
		return Identity{}, "", invalid(op, "password hash is required")
	}
	if id.CreatedAt.IsZero() {
		id.CreatedAt = time.Now().UTC()
	}
	return id, NormalizeUsername(id.Username), nil
}
