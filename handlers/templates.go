package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/invoicing_backend/models"
)

type globalTemplateRequest struct {
	models.NewTemplate
	IsDefault bool `json:"is_default"`
}

func setDefaultTemplateHandler() gin.HandlerFunc {
	return byIdHandler("setDefaultTemplateHandler", models.SetDefaultTemplate)
}

func unsetDefaultTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := models.UnsetDefaultTemplate(c.Request.Context()); err != nil {
			respondError(c, "unsetDefaultTemplateHandler", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func createGlobalTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input globalTemplateRequest
		if !bindJSON(c, &input) {
			return
		}
		template, err := models.CreateGlobalTemplate(c.Request.Context(), &input.NewTemplate, input.IsDefault)
		if err != nil {
			respondError(c, "createGlobalTemplateHandler", err)
			return
		}
		c.JSON(http.StatusCreated, template)
	}
}
