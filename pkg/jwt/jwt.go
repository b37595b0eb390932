package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleClaim rol con su alcance (CENTRAL | STORE).
type RoleClaim struct {
	Name  string `json:"name"`
	Scope string `json:"scope"`
}

// Claims incluye los claims estándar JWT más el actor: id, roles y tiendas asignadas.
// El middleware arma el Actor sin consultar la DB.
type Claims struct {
	jwt.RegisteredClaims
	ActorID  string      `json:"actor_id"`
	Roles    []RoleClaim `json:"roles"`
	StoreIDs []string    `json:"store_ids,omitempty"`
}

// Generate genera un token HS256 firmado con el actor.
func Generate(secret, issuer string, expMinutes int, actorID string, roles []RoleClaim, storeIDs []string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt: secret vacío")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expMinutes) * time.Minute)),
		},
		ActorID:  actorID,
		Roles:    roles,
		StoreIDs: storeIDs,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse valida el token y devuelve los claims.
// Retorna error si el token es inválido, expirado o tiene firma incorrecta.
func Parse(secret, tokenString string) (*Claims, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt: secret vacío")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("método de firma inesperado: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ActorID == "" {
		return nil, fmt.Errorf("claims inválidos")
	}
	return claims, nil
}
