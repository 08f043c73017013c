package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var JWTSecret []byte

// SetSecret sets the JWT secret key (e.g., from config)
func SetSecret(secret string) {
	JWTSecret = []byte(secret)
}

// Claims represents the JWT payload
type Claims struct {
	OperatorID int64 `json:"operator_id"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for an admin API operator
func GenerateToken(operatorID int64, ttl time.Duration) (string, error) {
	if len(JWTSecret) == 0 {
		return "", errors.New("JWT secret not set")
	}

	now := time.Now()
	claims := Claims{
		OperatorID: operatorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(JWTSecret)
}

// ValidateToken parses and verifies a JWT string
func ValidateToken(tokenStr string) (*Claims, error) {
	if len(JWTSecret) == 0 {
		return nil, errors.New("JWT secret not set")
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	return claims, nil
}
