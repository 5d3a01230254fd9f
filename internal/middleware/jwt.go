package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/sciencefair-api/internal/models"
	"github.com/noah-isme/sciencefair-api/internal/utils"
)

const identityLocalKey = "identity"

// JWTProtected returns a middleware that validates JWT bearer tokens and binds the caller identity.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := bearerToken(c)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		identity, ok := identityFromClaims(claims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "token carries no subject")
		}

		c.Locals(identityLocalKey, identity)
		c.Locals("user_id", identity.UserID)
		if identity.Role != "" {
			c.Locals("user_role", string(identity.Role))
		}

		return c.Next()
	}
}

// IdentityFromContext returns the identity bound by JWTProtected.
func IdentityFromContext(c *fiber.Ctx) (models.Identity, bool) {
	identity, ok := c.Locals(identityLocalKey).(models.Identity)
	return identity, ok
}

// SetIdentity binds an identity to the request. Used by tests and trusted internal callers.
func SetIdentity(c *fiber.Ctx, identity models.Identity) {
	c.Locals(identityLocalKey, identity)
	c.Locals("user_id", identity.UserID)
	c.Locals("user_role", string(identity.Role))
}

// bearerToken reads the token from the Authorization header, falling back to the
// access_token query parameter because browsers cannot set headers on websocket upgrades.
func bearerToken(c *fiber.Ctx) (string, error) {
	authorization := c.Get("Authorization")
	if authorization == "" {
		if token := strings.TrimSpace(c.Query("access_token")); token != "" {
			return token, nil
		}
		return "", fmt.Errorf("authorization header missing")
	}

	const bearer = "Bearer "
	if !strings.HasPrefix(strings.ToLower(authorization), strings.ToLower(bearer)) {
		return "", fmt.Errorf("invalid authorization header")
	}

	tokenString := strings.TrimSpace(authorization[len(bearer):])
	if tokenString == "" {
		return "", fmt.Errorf("invalid token")
	}

	return tokenString, nil
}

func identityFromClaims(claims jwt.MapClaims) (models.Identity, bool) {
	userID := firstClaim(claims, "sub", "user_id", "id")
	if userID == "" {
		return models.Identity{}, false
	}

	role := models.ParseRole(extractUserRoleFromClaims(claims))
	attrs := map[string]string{
		"project_id": firstClaim(claims, "project_id"),
		"class_id":   firstClaim(claims, "class_id"),
		"category":   firstClaim(claims, "category"),
	}

	return models.Identity{
		UserID:      userID,
		Email:       firstClaim(claims, "email"),
		DisplayName: firstClaim(claims, "name", "display_name"),
		Role:        role,
		Affiliation: models.NewAffiliation(role, attrs),
	}, true
}

func firstClaim(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if value, ok := claims[key]; ok {
			if normalized := claimString(value); normalized != "" {
				return normalized
			}
		}
	}
	return ""
}

func claimString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v < 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

func extractUserRoleFromClaims(claims jwt.MapClaims) string {
	candidates := []string{"role", "roles"}
	for _, key := range candidates {
		if value, ok := claims[key]; ok {
			if role := normalizeRole(value); role != "" {
				return role
			}
		}
	}
	return ""
}

func normalizeRole(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				role := strings.ToLower(strings.TrimSpace(str))
				if role != "" {
					return role
				}
			}
		}
	default:
		return ""
	}
	return ""
}
