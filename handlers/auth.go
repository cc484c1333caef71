package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/invoicing_backend/models"
	"github.com/mmdatafocus/invoicing_backend/utils"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func signupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewSignup
		if !bindJSON(c, &input) {
			return
		}
		info, err := models.Signup(c.Request.Context(), &input)
		if err != nil {
			respondError(c, "signupHandler", err)
			return
		}
		c.JSON(http.StatusCreated, info)
	}
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input loginRequest
		if !bindJSON(c, &input) {
			return
		}
		info, err := models.Login(c.Request.Context(), input.Username, input.Password)
		if err != nil {
			respondError(c, "loginHandler", err)
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := models.Logout(c.Request.Context()); err != nil {
			respondError(c, "logoutHandler", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func changePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input changePasswordRequest
		if !bindJSON(c, &input) {
			return
		}
		user, err := models.ChangePassword(c.Request.Context(), input.OldPassword, input.NewPassword)
		if err != nil {
			respondError(c, "changePasswordHandler", err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func meHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		username, _ := utils.GetUsernameFromContext(ctx)
		user, err := models.GetUserByUsername(ctx, username)
		if err != nil {
			respondError(c, "meHandler", err)
			return
		}
		orgs, err := models.ListMyOrganizations(ctx)
		if err != nil {
			respondError(c, "meHandler", err)
			return
		}
		me := *user
		me.PrepareGive()
		c.JSON(http.StatusOK, gin.H{"user": me, "organizations": orgs})
	}
}
