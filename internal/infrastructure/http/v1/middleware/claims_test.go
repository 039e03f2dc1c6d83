package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/actor"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return raw
}

func newClaimsRouter(extra ...gin.HandlerFunc) (*gin.Engine, *actor.Actor) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandler())
	router.Use(Claims())

	captured := &actor.Actor{}
	handlers := append(extra, func(c *gin.Context) {
		if a := actor.FromContext(c.Request.Context()); a != nil {
			*captured = *a
		}
		c.Status(http.StatusOK)
	})
	router.GET("/probe", handlers...)
	return router, captured
}

func TestClaimsDecodesActor(t *testing.T) {
	router, captured := newClaimsRouter()

	token := signedToken(t, jwt.MapClaims{
		"sub":                "user-1",
		"email":              "staff@warehouse.local",
		"preferred_username": "staff1",
		"roles":              []any{"warehouse_staff", "viewer"},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", captured.Subject)
	assert.Equal(t, "staff@warehouse.local", captured.Email)
	assert.Equal(t, []actor.Role{actor.RoleWarehouseStaff, actor.RoleViewer}, captured.Roles)
}

func TestClaimsRoleShapes(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   []actor.Role
	}{
		{
			name:   "single role string",
			claims: jwt.MapClaims{"sub": "u", "role": "admin"},
			want:   []actor.Role{actor.RoleAdmin},
		},
		{
			name: "realm access",
			claims: jwt.MapClaims{
				"sub":          "u",
				"realm_access": map[string]any{"roles": []any{"orders"}},
			},
			want: []actor.Role{actor.RoleOrderService},
		},
		{
			name:   "aliases resolve, unknowns drop",
			claims: jwt.MapClaims{"sub": "u", "roles": []any{"administrator", "ghost_role"}},
			want:   []actor.Role{actor.RoleAdmin},
		},
		{
			// An "administrator" claim maps via the alias table; a check for
			// admin must never pass by substring containment of raw claims.
			name:   "no substring matching",
			claims: jwt.MapClaims{"sub": "u", "roles": []any{"not_an_admin_xyz"}},
			want:   []actor.Role{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, captured := newClaimsRouter()
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/probe", nil)
			req.Header.Set("Authorization", "Bearer "+signedToken(t, tt.claims))
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			if len(tt.want) == 0 {
				assert.Empty(t, captured.Roles)
			} else {
				assert.Equal(t, tt.want, captured.Roles)
			}
		})
	}
}

func TestClaimsMalformedToken(t *testing.T) {
	router, _ := newClaimsRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClaimsMissingHeaderPassesThrough(t *testing.T) {
	router, captured := newClaimsRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, captured.Subject)
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"wrong role", "viewer", http.StatusForbidden},
		{"matching role", "admin", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newClaimsRouter(RequireRole(actor.RoleAdmin))

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/probe", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{
					"sub":   "u",
					"roles": []any{tt.token},
				}))
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
