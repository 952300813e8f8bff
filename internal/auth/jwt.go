package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleBridge is the only role allowed to open the bridge websocket
const RoleBridge = "bridge"

const defaultTokenTTL = 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid bridge credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	BridgeID string `json:"bridge_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator exchanges the bridge shared secret for short lived HS256 tokens
type Authenticator struct {
	jwtSecret    []byte
	sharedSecret []byte
	ttl          time.Duration
	now          func() time.Time
}

// NewAuthenticator requires both secrets. A zero ttl means 24h.
func NewAuthenticator(jwtSecret, sharedSecret string, ttl time.Duration) (*Authenticator, error) {
	if jwtSecret == "" {
		return nil, errors.New("JWT secret is required")
	}
	if sharedSecret == "" {
		return nil, errors.New("bridge shared secret is required")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Authenticator{
		jwtSecret:    []byte(jwtSecret),
		sharedSecret: []byte(sharedSecret),
		ttl:          ttl,
		now:          time.Now,
	}, nil
}

// Login checks the shared secret and issues a bridge token
func (a *Authenticator) Login(bridgeID, secret string) (string, time.Time, error) {
	if bridgeID == "" || subtle.ConstantTimeCompare([]byte(secret), a.sharedSecret) != 1 {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return a.GenerateBridgeToken(bridgeID)
}

// GenerateBridgeToken generates a JWT token for bridge authentication
func (a *Authenticator) GenerateBridgeToken(bridgeID string) (string, time.Time, error) {
	now := a.now()
	expiresAt := now.Add(a.ttl)
	claims := &JWTClaims{
		BridgeID: bridgeID,
		Role:     RoleBridge,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   bridgeID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (a *Authenticator) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
