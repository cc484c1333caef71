package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Shared shapes for the plain organization-scoped CRUD routes.

func createHandler[In any, Out any](funcName string, create func(context.Context, *In) (Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input In
		if !bindJSON(c, &input) {
			return
		}
		out, err := create(c.Request.Context(), &input)
		if err != nil {
			respondError(c, funcName, err)
			return
		}
		c.JSON(http.StatusCreated, out)
	}
}

func updateHandler[In any, Out any](funcName string, update func(context.Context, int, *In) (Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		var input In
		if !bindJSON(c, &input) {
			return
		}
		out, err := update(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, funcName, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// byIdHandler serves get, delete and the default switches.
func byIdHandler[Out any](funcName string, fn func(context.Context, int) (Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		out, err := fn(c.Request.Context(), id)
		if err != nil {
			respondError(c, funcName, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func listHandler[Out any](funcName string, list func(context.Context) (Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := list(c.Request.Context())
		if err != nil {
			respondError(c, funcName, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// listByNameHandler passes the optional ?name= filter.
func listByNameHandler[Out any](funcName string, list func(context.Context, *string) (Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := list(c.Request.Context(), queryString(c, "name"))
		if err != nil {
			respondError(c, funcName, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}
