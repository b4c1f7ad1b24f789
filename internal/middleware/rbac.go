package middleware

import (
	"context"
	"net/http"

	"github.com/examlock/examlock-backend/internal/model"
	"github.com/examlock/examlock-backend/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RoleSource reads the current role set from the durable store. The JWT's
// roles snapshot may be stale: an admin may have stripped a role since the
// token was issued, so role-sensitive routes re-check here instead of
// trusting the claims.
type RoleSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// RequireRole checks that the caller currently holds at least one of the
// given roles, reading fresh from the store.
func RequireRole(users RoleSource, roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
			return
		}

		for _, want := range roles {
			if model.HasRole(user.Roles, want) {
				c.Next()
				return
			}
		}

		response.AbortFail(c, http.StatusForbidden, response.ErrRoleRequired)
	}
}
