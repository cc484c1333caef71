package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/invoicing_backend/middlewares"
	"github.com/mmdatafocus/invoicing_backend/models"
)

// RegisterRoutes mounts the REST API under /api. SessionMiddleware must already be installed.
func RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")
	api.POST("/signup", signupHandler())
	api.POST("/login", loginHandler())

	authed := api.Group("", middlewares.RequireAuth())
	authed.POST("/logout", logoutHandler())
	authed.POST("/change-password", changePasswordHandler())
	authed.GET("/me", meHandler())
	authed.GET("/organizations", listOrganizationsHandler())
	authed.POST("/organizations", createOrganizationHandler())

	admin := api.Group("/admin", middlewares.RequireAdmin())
	admin.GET("/templates", listHandler("listGlobalTemplatesHandler", models.ListGlobalTemplates))
	admin.POST("/templates", createGlobalTemplateHandler())
	admin.DELETE("/templates/:id", byIdHandler("deleteGlobalTemplateHandler", models.DeleteGlobalTemplate))

	org := authed.Group("/organizations/:orgId", middlewares.OrganizationMiddleware())
	org.GET("", getOrganizationHandler())
	org.PUT("", middlewares.RequireOwner(), updateOrganizationHandler())
	org.GET("/members", listMembersHandler())
	org.POST("/members", middlewares.RequireOwner(), addMemberHandler())
	org.DELETE("/members/:userId", middlewares.RequireOwner(), removeMemberHandler())

	customers := org.Group("/customers")
	customers.GET("", listByNameHandler("listCustomersHandler", models.ListCustomers))
	customers.POST("", createHandler("createCustomerHandler", models.CreateCustomer))
	customers.GET("/:id", byIdHandler("getCustomerHandler", models.GetCustomer))
	customers.PUT("/:id", updateHandler("updateCustomerHandler", models.UpdateCustomer))
	customers.DELETE("/:id", byIdHandler("deleteCustomerHandler", models.DeleteCustomer))

	products := org.Group("/products")
	products.GET("", listByNameHandler("listProductsHandler", models.ListProducts))
	products.POST("", createHandler("createProductHandler", models.CreateProduct))
	products.GET("/:id", byIdHandler("getProductHandler", models.GetProduct))
	products.PUT("/:id", updateHandler("updateProductHandler", models.UpdateProduct))
	products.DELETE("/:id", byIdHandler("deleteProductHandler", models.DeleteProduct))

	vatRates := org.Group("/vat-rates")
	vatRates.GET("", listHandler("listVatRatesHandler", models.ListVatRates))
	vatRates.POST("", createHandler("createVatRateHandler", models.CreateVatRate))
	vatRates.GET("/:id", byIdHandler("getVatRateHandler", models.GetVatRate))
	vatRates.PUT("/:id", updateHandler("updateVatRateHandler", models.UpdateVatRate))
	vatRates.DELETE("/:id", byIdHandler("deleteVatRateHandler", models.DeleteVatRate))
	vatRates.PUT("/:id/default", byIdHandler("setDefaultVatRateHandler", models.SetDefaultVatRate))

	templates := org.Group("/templates")
	templates.GET("", listHandler("listTemplatesHandler", models.ListTemplates))
	templates.POST("", createHandler("createTemplateHandler", models.CreateTemplate))
	templates.GET("/:id", byIdHandler("getTemplateHandler", models.GetTemplate))
	templates.PUT("/:id", updateHandler("updateTemplateHandler", models.UpdateTemplate))
	templates.DELETE("/:id", byIdHandler("deleteTemplateHandler", models.DeleteTemplate))
	templates.PUT("/:id/default", setDefaultTemplateHandler())
	templates.DELETE("/:id/default", unsetDefaultTemplateHandler())

	invoices := org.Group("/invoices")
	invoices.GET("", listInvoicesHandler())
	invoices.POST("", createHandler("createInvoiceHandler", models.CreateInvoice))
	invoices.GET("/export", exportInvoicesHandler())
	invoices.GET("/:id", byIdHandler("getInvoiceHandler", models.GetInvoice))
	invoices.PUT("/:id", updateHandler("updateInvoiceHeaderHandler", models.UpdateInvoiceHeader))
	invoices.PUT("/:id/items", replaceInvoiceItemsHandler())
	invoices.PUT("/:id/status", setInvoiceStatusHandler())
	invoices.DELETE("/:id", byIdHandler("deleteInvoiceHandler", models.DeleteInvoice))
	invoices.GET("/:id/document", invoiceDocumentHandler())
	invoices.POST("/:id/render", renderInvoiceHandler())

	renders := org.Group("/render-requests")
	renders.GET("/:id", byIdHandler("getRenderRequestHandler", models.GetRenderRequest))
	renders.POST("/:id/replay", byIdHandler("replayRenderRequestHandler", models.ReplayRenderRequest))
}
