package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/saludpro/backoffice-api/internal/repository"
	"github.com/saludpro/backoffice-api/internal/service/rbac"
	"github.com/saludpro/backoffice-api/pkg/auth"
	apperrors "github.com/saludpro/backoffice-api/pkg/errors"
	"github.com/saludpro/backoffice-api/pkg/httputil"
)

const (
	ContextUserID    = "userID"
	ContextUserEmail = "userEmail"
	ContextUserRoles = "userRoles"
)

type AuthMiddleware struct {
	jwtService  auth.JWTService
	userRepo    repository.UserRepository
	rbacService *rbac.Service
}

func NewAuthMiddleware(jwtService auth.JWTService, userRepo repository.UserRepository, rbacService *rbac.Service) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService:  jwtService,
		userRepo:    userRepo,
		rbacService: rbacService,
	}
}

// Authenticate verifies the JWT token and sets user info in context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}

		claims, err := m.jwtService.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ContextUserID, claims.UserID.String())
		c.Set(ContextUserEmail, claims.Email)
		c.Set(ContextUserRoles, claims.Roles)
		c.Next()
	}
}

// RequireRoles authorizes the request against the database, not the token:
// role grants and account state are checked fresh so a deactivation or a
// role revocation takes effect on the next request, not on token expiry.
func (m *AuthMiddleware) RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := UserIDFromContext(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
			return
		}

		user, err := m.userRepo.Get(c.Request.Context(), userID)
		if err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				httputil.RespondWithError(c, apperrors.E(apperrors.KindForbidden))
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
			return
		}
		if user.IsDeleted || !user.IsActive {
			httputil.RespondWithError(c, apperrors.E(apperrors.KindForbidden))
			c.Abort()
			return
		}

		hasRole, err := m.rbacService.HasAnyRole(c.Request.Context(), userID, roles)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to check roles"})
			return
		}
		if !hasRole {
			httputil.RespondWithError(c, apperrors.E(apperrors.KindForbidden))
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequirePermission authorizes against a single resource:action grant.
func (m *AuthMiddleware) RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := UserIDFromContext(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
			return
		}

		hasPermission, err := m.rbacService.HasPermission(c.Request.Context(), userID, permission)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to check permission"})
			return
		}
		if !hasPermission {
			httputil.RespondWithError(c, apperrors.E(apperrors.KindForbidden))
			c.Abort()
			return
		}

		c.Next()
	}
}

// UserIDFromContext returns the authenticated user's ID.
func UserIDFromContext(c *gin.Context) (uuid.UUID, error) {
	return uuid.Parse(c.GetString(ContextUserID))
}
