package auth

import (
	"context"
	"errors"
	"slices"
	"strings"

	"restoran-menu/internal/audit"
	"restoran-menu/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Principal: token'ı doğrulanmış isteğin sahibi.
type Principal struct {
	UserID uint
	Name   string
	Role   models.UserRole
}

const principalKey = "auth.principal"

// JWTMiddleware, Bearer token'ı doğrular; kullanıcıyı hem fiber locals'a hem
// de isteğin context'ine (audit aktörü olarak) yazar.
func JWTMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, err := bearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		p, err := parseToken(secret, raw)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Geçersiz veya süresi dolmuş token")
		}

		c.Locals(principalKey, p)
		c.SetUserContext(audit.WithActor(c.UserContext(), audit.Actor{UserID: p.UserID, UserName: p.Name}))
		return c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("Authorization header eksik")
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", errors.New("Authorization formatı 'Bearer <token>' olmalı")
	}
	return token, nil
}

func PrincipalFrom(c *fiber.Ctx) (*Principal, bool) {
	p, ok := c.Locals(principalKey).(*Principal)
	return p, ok
}

// RequestContext: servis çağrılarında kullanılacak context. Middleware'in
// eklediği aktörü taşır; her çağrıya yeni bir audit işlem kimliği verir.
func RequestContext(c *fiber.Ctx) context.Context {
	return audit.WithOperation(c.UserContext())
}

func RequireRole(allowed ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := PrincipalFrom(c)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "Rol bilgisi alınamadı")
		}
		if !slices.Contains(allowed, p.Role) {
			return fiber.NewError(fiber.StatusForbidden, "Bu işlem için yetkiniz yok")
		}
		return c.Next()
	}
}
