package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sciencefair-api/internal/models"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func identityApp(captured *models.Identity) *fiber.App {
	app := fiber.New()
	app.Get("/me", JWTProtected(testSecret), func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		*captured = identity
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestJWTProtectedBuildsStudentIdentity(t *testing.T) {
	var identity models.Identity
	app := identityApp(&identity)

	token := signToken(t, jwt.MapClaims{
		"sub":        "stu-42",
		"email":      "ana@example.com",
		"name":       "Ana",
		"role":       "Student",
		"project_id": "proj-7",
		"exp":        time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Equal(t, "stu-42", identity.UserID)
	require.Equal(t, models.RoleStudent, identity.Role)
	require.Equal(t, "Ana", identity.Name())
	require.Equal(t, models.StudentAffiliation{ProjectID: "proj-7"}, identity.Affiliation)
	require.Equal(t, "proj-7", identity.ProjectID())
}

func TestJWTProtectedAcceptsNumericSubjectAndQueryToken(t *testing.T) {
	var identity models.Identity
	app := identityApp(&identity)

	token := signToken(t, jwt.MapClaims{
		"sub":      float64(12),
		"roles":    []interface{}{"judge"},
		"category": "physics",
	})

	req := httptest.NewRequest(http.MethodGet, "/me?access_token="+token, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Equal(t, "12", identity.UserID)
	require.Equal(t, models.RoleJudge, identity.Role)
	require.Equal(t, models.JudgeAffiliation{Category: "physics"}, identity.Affiliation)
}

func TestJWTProtectedRejectsInvalidTokens(t *testing.T) {
	var identity models.Identity
	app := identityApp(&identity)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"})
	foreignToken, err := foreign.SignedString([]byte("other"))
	require.NoError(t, err)

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"bad signature":  "Bearer " + foreignToken,
		"no subject":     "Bearer " + signToken(t, jwt.MapClaims{"role": "admin"}),
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}
