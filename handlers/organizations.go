package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/invoicing_backend/models"
	"github.com/mmdatafocus/invoicing_backend/utils"
)

func listOrganizationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgs, err := models.ListMyOrganizations(c.Request.Context())
		if err != nil {
			respondError(c, "listOrganizationsHandler", err)
			return
		}
		c.JSON(http.StatusOK, orgs)
	}
}

func createOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewOrganization
		if !bindJSON(c, &input) {
			return
		}
		org, err := models.CreateOrganization(c.Request.Context(), &input)
		if err != nil {
			respondError(c, "createOrganizationHandler", err)
			return
		}
		c.JSON(http.StatusCreated, org)
	}
}

func getOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		organizationId, _ := utils.GetOrganizationIdFromContext(ctx)
		org, err := models.GetOrganization(ctx, organizationId)
		if err != nil {
			respondError(c, "getOrganizationHandler", err)
			return
		}
		c.JSON(http.StatusOK, org)
	}
}

func updateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewOrganization
		if !bindJSON(c, &input) {
			return
		}
		org, err := models.UpdateOrganization(c.Request.Context(), &input)
		if err != nil {
			respondError(c, "updateOrganizationHandler", err)
			return
		}
		c.JSON(http.StatusOK, org)
	}
}

func listMembersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		members, err := models.ListOrganizationMembers(c.Request.Context())
		if err != nil {
			respondError(c, "listMembersHandler", err)
			return
		}
		c.JSON(http.StatusOK, members)
	}
}

func addMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewOrganizationMember
		if !bindJSON(c, &input) {
			return
		}
		member, err := models.AddOrganizationMember(c.Request.Context(), &input)
		if err != nil {
			respondError(c, "addMemberHandler", err)
			return
		}
		c.JSON(http.StatusCreated, member)
	}
}

func removeMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId, ok := paramId(c, "userId")
		if !ok {
			return
		}
		if err := models.RemoveOrganizationMember(c.Request.Context(), userId); err != nil {
			respondError(c, "removeMemberHandler", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
