package token

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the verified contents of a token.
type Claims struct {
	Subject   string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Manager signs and verifies tokens with a single HMAC secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	parser *jwt.Parser
}

func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Manager{
		secret: secret,
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
			// exp/iat/iss are checked in Verify against the caller's clock.
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Issue mints a token for subject valid from now until now+TTL.
func (m *Manager) Issue(subject string, now time.Time) (string, Claims, error) {
	if strings.TrimSpace(subject) == "" {
		return "", Claims{}, ErrEmptySubject
	}

	// NumericDate has second precision; truncate so returned claims match the token.
	iat := now.UTC().Truncate(time.Second)
	exp := iat.Add(m.ttl)

	rc := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, rc).SignedString(m.secret)
	if err != nil {
		return "", Claims{}, err
	}

	return signed, Claims{
		Subject:   subject,
		Issuer:    m.issuer,
		IssuedAt:  iat,
		ExpiresAt: exp,
	}, nil
}

// Verify checks signature, issuer and expiry at time now.
// Returns ErrMalformed, ErrBadSignature or ErrExpired on failure.
func (m *Manager) Verify(raw string, now time.Time) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrMalformed
	}

	if err := checkSignatureSegment(raw); err != nil {
		return Claims{}, err
	}

	var rc jwt.RegisteredClaims
	_, err := m.parser.ParseWithClaims(raw, &rc, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if strings.TrimSpace(rc.Subject) == "" || rc.Issuer != m.issuer || rc.ExpiresAt == nil {
		return Claims{}, ErrMalformed
	}

	exp := rc.ExpiresAt.Time.UTC()
	if !now.UTC().Before(exp) {
		return Claims{}, ErrExpired
	}

	claims := Claims{
		Subject:   rc.Subject,
		Issuer:    rc.Issuer,
		ExpiresAt: exp,
	}
	if rc.IssuedAt != nil {
		claims.IssuedAt = rc.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// checkSignatureSegment reports ErrBadSignature for a well-formed token whose
// signature segment is not canonical base64url. The jwt parser would call
// that malformed; any altered signature must read as a bad signature.
func checkSignatureSegment(raw string) error {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return ErrMalformed
	}
	enc := base64.RawURLEncoding.Strict()
	if _, err := enc.DecodeString(parts[0]); err != nil {
		return ErrMalformed
	}
	if _, err := enc.DecodeString(parts[1]); err != nil {
		return ErrMalformed
	}
	if _, err := enc.DecodeString(parts[2]); err != nil {
		return ErrBadSignature
	}
	return nil
}

// mapJWTError collapses jwt library errors into the package's three kinds.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrMalformed
	}
}
