package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultSessionTTL = 30 * time.Minute
)

var (
	// ErrInvalidPassphrase indicates the unlock passphrase did not match.
	ErrInvalidPassphrase = errors.New("auth: invalid passphrase")
	// ErrInvalidSessionToken indicates a malformed or tampered session token.
	ErrInvalidSessionToken = errors.New("auth: invalid session token")
	// ErrExpiredSessionToken indicates the session token has expired.
	ErrExpiredSessionToken = errors.New("auth: session token expired")

	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingUnlockSecret  = errors.New("unlock secret must be provided")
	errMissingSubjectClaim  = errors.New("subject claim must be provided")
)

// UnlockIssuerConfig configures the local session gate.
type UnlockIssuerConfig struct {
	UnlockSecret  string
	SigningSecret []byte
	Issuer        string
	Audience      string
	SessionTTL    time.Duration
	Clock         func() time.Time
}

// UnlockIssuer exchanges the device unlock secret for short-lived session
// JWTs and validates them on subsequent requests. It is the service-side
// counterpart of the client's local unlock screen.
type UnlockIssuer struct {
	config UnlockIssuerConfig
	clock  func() time.Time
}

// NewUnlockIssuer constructs an UnlockIssuer with sane defaults.
func NewUnlockIssuer(cfg UnlockIssuerConfig) (*UnlockIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	if cfg.UnlockSecret == "" {
		return nil, errMissingUnlockSecret
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &UnlockIssuer{
		config: UnlockIssuerConfig{
			UnlockSecret:  cfg.UnlockSecret,
			SigningSecret: append([]byte(nil), cfg.SigningSecret...),
			Issuer:        cfg.Issuer,
			Audience:      cfg.Audience,
			SessionTTL:    ttl,
			Clock:         clock,
		},
		clock: clock,
	}, nil
}

// Unlock verifies the passphrase and issues a signed session token plus its
// expiry in seconds for the given user.
func (i *UnlockIssuer) Unlock(passphrase string, userID int64) (string, int64, error) {
	if err := i.verifyPassphrase(passphrase); err != nil {
		return "", 0, err
	}
	if userID <= 0 {
		return "", 0, errMissingSubjectClaim
	}

	sessionID, err := uuid.NewV7()
	if err != nil {
		return "", 0, err
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.config.SessionTTL).UTC()

	registered := jwt.RegisteredClaims{
		ID:        sessionID.String(),
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    i.config.Issuer,
		Audience:  []string{i.config.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, registered)
	signed, err := token.SignedString(i.config.SigningSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateToken ensures the session JWT is well formed and returns the user id.
func (i *UnlockIssuer) ValidateToken(tokenString string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidSessionToken, token.Method.Alg())
			}
			return i.config.SigningSecret, nil
		},
		jwt.WithAudience(i.config.Audience),
		jwt.WithIssuer(i.config.Issuer),
		jwt.WithTimeFunc(i.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpiredSessionToken
		}
		return 0, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if claims.Subject == "" {
		return 0, errMissingSubjectClaim
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidSessionToken)
	}
	return userID, nil
}

// verifyPassphrase compares digests so the comparison is constant time and
// independent of input length.
func (i *UnlockIssuer) verifyPassphrase(passphrase string) error {
	expected := sha256.Sum256([]byte(i.config.UnlockSecret))
	supplied := sha256.Sum256([]byte(passphrase))
	if subtle.ConstantTimeCompare(expected[:], supplied[:]) != 1 {
		return ErrInvalidPassphrase
	}
	return nil
}
