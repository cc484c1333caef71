package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/invoicing_backend/config"
	"github.com/mmdatafocus/invoicing_backend/models"
	"github.com/mmdatafocus/invoicing_backend/utils"
	"github.com/sirupsen/logrus"
)

const GinKeyMemberRole = "member_role"

// OrganizationMiddleware admits members of the :orgId organization and puts the
// organization id in the request context, which scopes every query after it.
// Non-members get 404 so organization ids cannot be probed.
func OrganizationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		organizationId := strings.TrimSpace(c.Param("orgId"))
		if organizationId == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "organization id is required"})
			return
		}
		ctx := c.Request.Context()
		userId, ok := utils.GetUserIdFromContext(ctx)
		if !ok || userId == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		member, err := models.GetMembership(ctx, organizationId, userId)
		if err != nil {
			if errors.Is(err, utils.ErrNotFound) {
				config.GetLogger().WithFields(logrus.Fields{
					"field":           "OrganizationMiddleware",
					"organization_id": organizationId,
					"user_id":         userId,
				}).Warn("organization access denied")
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "organization not found"})
				return
			}
			c.AbortWithStatusJSON(utils.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Set(GinKeyMemberRole, string(member.Role))
		c.Request = c.Request.WithContext(utils.SetOrganizationIdInContext(ctx, organizationId))
		c.Next()
	}
}

// RequireOwner must run after OrganizationMiddleware.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(GinKeyMemberRole) != string(models.MemberRoleOwner) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "organization owners only"})
			return
		}
		c.Next()
	}
}
