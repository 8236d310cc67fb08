// Package token issues and verifies signed bearer tokens.
//
// Tokens are HS256 JWTs carrying sub, iss, iat and exp. The signing secret
// comes from LOGVAULT_TOKEN_SECRET and must be at least MinSecretBytes long;
// there is no built-in fallback. Rotating the secret invalidates every
// outstanding token.
//
// Verify reports exactly one of ErrMalformed, ErrBadSignature or ErrExpired
// on failure. Callers decide how much of that to expose.
package token
