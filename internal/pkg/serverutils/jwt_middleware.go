package serverutils

import (
	"errors"
	"strings"

	"chat-session-be/internal/model"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrAuthDisabled = errors.New("authentication is not configured")
	ErrInvalidToken = errors.New("invalid token")
)

// ParseUserToken validates an HMAC-signed token and maps its claims to a user.
func ParseUserToken(tokenStr, secret string) (*model.User, error) {
	if secret == "" {
		return nil, ErrAuthDisabled
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, ErrInvalidToken
	}

	user := &model.User{Identifier: userID, Metadata: map[string]interface{}{}}
	if name, ok := claims["name"].(string); ok {
		user.DisplayName = name
	}
	if role, ok := claims["role"].(string); ok {
		user.Metadata["role"] = role
	}
	return user, nil
}

// BearerToken extracts the token from the query string or Authorization header.
func BearerToken(ctx *fiber.Ctx) string {
	// Priority 1: Query Param (Browser standard)
	if token := ctx.Query("token"); token != "" {
		return token
	}
	// Priority 2: Authorization Header
	authHeader := ctx.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(authHeader, "Bearer ") {
		return authHeader[7:]
	}
	return ""
}

// JwtMiddleware rejects requests without a valid token and stores the user
// in Locals("user").
func JwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := BearerToken(ctx)
		if tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token"})
		}

		user, err := ParseUserToken(tokenStr, secret)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}

		ctx.Locals("user", user)
		return ctx.Next()
	}
}
