package http

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/pkg/jwt"
)

// LocalActor clave de Locals con el entity.Actor autenticado.
const LocalActor = "actor"

// AuthMiddleware valida el Bearer Token JWT y deja el Actor (id, roles, tiendas) en c.Locals.
func AuthMiddleware(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return unauthorized("Authorization header requerido")
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return unauthorized("formato: Bearer <token>")
		}
		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			return unauthorized("token vacío")
		}
		claims, err := jwt.Parse(jwtSecret, tokenString)
		if err != nil {
			return unauthorized("token inválido o expirado")
		}
		actor := entity.Actor{ID: claims.ActorID, StoreIDs: claims.StoreIDs}
		for _, r := range claims.Roles {
			actor.Roles = append(actor.Roles, entity.Role{Name: r.Name, Scope: r.Scope})
		}
		c.Locals(LocalActor, actor)
		return c.Next()
	}
}

func unauthorized(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
}

// GetActor devuelve el Actor del contexto (después del middleware de auth).
func GetActor(c *fiber.Ctx) (entity.Actor, bool) {
	actor, ok := c.Locals(LocalActor).(entity.Actor)
	return actor, ok && actor.ID != ""
}

// actorOf como GetActor, pero UNAUTHORIZED si no hay actor.
func actorOf(c *fiber.Ctx) (entity.Actor, error) {
	actor, ok := GetActor(c)
	if !ok {
		return entity.Actor{}, unauthorized("token inválido")
	}
	return actor, nil
}
