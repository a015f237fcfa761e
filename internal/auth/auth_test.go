package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatehub/server/config"
	"estatehub/server/internal/models"
)

func testIssuer() *Issuer {
	return NewIssuer(config.AuthConfig{
		JWTSecret: "0123456789abcdef0123",
		TokenTTL:  time.Hour,
		Issuer:    "estatehub-test",
	})
}

func TestPassword(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
}

func TestIssuer_RoundTrip(t *testing.T) {
	issuer := testIssuer()
	agency := uint(4)
	user := &models.User{ID: 12, Role: models.RoleAgent, AgencyID: &agency}

	token, expiresAt, err := issuer.Issue(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, uint(12), claims.UserID)
	assert.Equal(t, models.RoleAgent, claims.Role)
	require.NotNil(t, claims.AgencyID)
	assert.Equal(t, uint(4), *claims.AgencyID)
	assert.Nil(t, claims.DeveloperID)
}

func TestIssuer_Rejects(t *testing.T) {
	issuer := testIssuer()
	token, _, err := issuer.Issue(&models.User{ID: 1, Role: models.RoleBuyer})
	require.NoError(t, err)

	other := NewIssuer(config.AuthConfig{JWTSecret: "another-secret-value", TokenTTL: time.Hour, Issuer: "estatehub-test"})
	_, err = other.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := testIssuer()
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = expired.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	issuer := testIssuer()
	m := NewMiddleware(issuer, logrus.New())

	router := gin.New()
	router.GET("/me", m.Required(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": FromContext(c).UserID})
	})
	router.GET("/crm", m.Required(), RequireRoles(models.RoleAgencyAdmin, models.RoleAgent), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	buyer, _, err := issuer.Issue(&models.User{ID: 1, Role: models.RoleBuyer})
	require.NoError(t, err)
	agent, _, err := issuer.Issue(&models.User{ID: 2, Role: models.RoleAgent})
	require.NoError(t, err)
	admin, _, err := issuer.Issue(&models.User{ID: 3, Role: models.RoleAdmin})
	require.NoError(t, err)

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"missing token", "/me", "", http.StatusUnauthorized},
		{"garbage token", "/me", "abc", http.StatusUnauthorized},
		{"valid token", "/me", buyer, http.StatusOK},
		{"wrong role", "/crm", buyer, http.StatusForbidden},
		{"allowed role", "/crm", agent, http.StatusNoContent},
		{"admin bypass", "/crm", admin, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
