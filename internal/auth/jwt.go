package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"autoelite.com/storefront/internal/config"
	"autoelite.com/storefront/internal/store"
)

const tokenTTL = 12 * time.Hour

type Claims struct {
	Role store.UserRole `json:"role"`
	jwt.RegisteredClaims
}

func GenerateJWT(userID string, role store.UserRole) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

// ValidateJWT returns the subject and role carried by a valid token.
func ValidateJWT(tokenString string) (string, store.UserRole, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return "", "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", "", fmt.Errorf("invalid token")
	}
	if claims.Role != store.RoleAdmin && claims.Role != store.RoleSeller {
		return "", "", fmt.Errorf("invalid token role %q", claims.Role)
	}
	return claims.Subject, claims.Role, nil
}
