package middleware

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// ParseToken validates a signed token and returns its claims.
func ParseToken(tokenString, jwtSecret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid or expired token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// CasbinMiddleware checks permissions for the request using JWT claims
func CasbinMiddleware(enforcer *casbin.Enforcer, jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// 1. Extract Token
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "missing Authorization header"})
		}

		tokenString := strings.Replace(authHeader, "Bearer ", "", 1)

		// 2. Parse Token
		claims, err := ParseToken(tokenString, jwtSecret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": err.Error()})
		}

		// 3. User Identity for Casbin
		// The role is the Casbin subject: policies are defined per role,
		// not per user.
		role, _ := claims["role"].(string)

		// JWT numbers decode as float64
		var userID uint
		if id, ok := claims["id"].(float64); ok {
			userID = uint(id)
		}
		if userID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "invalid token claims"})
		}

		username, _ := claims["username"].(string)
		email, _ := claims["email"].(string)

		// Store user info in context for downstream handlers
		c.Locals("user_id", userID)
		c.Locals("email", email)
		c.Locals("username", username)
		c.Locals("role", role)

		// 4. Check Permission
		obj := c.Path()
		act := c.Method()

		permit, err := enforcer.Enforce(role, obj, act)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "permission check failed"})
		}

		if permit {
			return c.Next()
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   fmt.Sprintf("role %s is not allowed to %s %s", role, act, obj),
		})
	}
}
