package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTokenTTL = 24 * time.Hour

// Claims identify the account a request acts as. ActingFor is set by the auth service
// for sitters and duals; the engine treats it as opaque.
type Claims struct {
	AccountID uint `json:"account_id"`
	ActingFor uint `json:"acting_for,omitempty"`
	jwt.RegisteredClaims
}

// EffectiveAccountID is the account whose villages the request may command.
func (c *Claims) EffectiveAccountID() uint {
	if c.ActingFor != 0 {
		return c.ActingFor
	}
	return c.AccountID
}

// GenerateJWT creates a new JWT token for an account
func GenerateJWT(accountID, actingFor uint, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	claims := &Claims{
		AccountID: accountID,
		ActingFor: actingFor,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateJWT validates and parses a JWT token
func ValidateJWT(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.AccountID == 0 {
		return nil, fmt.Errorf("token carries no account")
	}
	return claims, nil
}
