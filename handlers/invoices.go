package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/invoicing_backend/models"
	"github.com/mmdatafocus/invoicing_backend/models/reports"
	"github.com/mmdatafocus/invoicing_backend/utils"
)

type replaceItemsRequest struct {
	Items []models.NewInvoiceItem `json:"items"`
}

type setStatusRequest struct {
	Status models.InvoiceStatus `json:"status" binding:"required"`
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func invoiceStatusQuery(c *gin.Context) *models.InvoiceStatus {
	v := queryString(c, "status")
	if v == nil {
		return nil
	}
	status := models.InvoiceStatus(*v)
	return &status
}

func listInvoicesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		customerId, err := queryInt(c, "customer_id")
		if err != nil {
			respondError(c, "listInvoicesHandler", err)
			return
		}
		limit, err := queryInt(c, "limit")
		if err != nil {
			respondError(c, "listInvoicesHandler", err)
			return
		}
		page, err := models.ListInvoices(c.Request.Context(), &models.InvoiceFilter{
			Status:     invoiceStatusQuery(c),
			CustomerId: customerId,
			After:      queryString(c, "after"),
			Limit:      utils.DereferencePtr(limit),
		})
		if err != nil {
			respondError(c, "listInvoicesHandler", err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func replaceInvoiceItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		var input replaceItemsRequest
		if !bindJSON(c, &input) {
			return
		}
		invoice, err := models.ReplaceInvoiceItems(c.Request.Context(), id, input.Items)
		if err != nil {
			respondError(c, "replaceInvoiceItemsHandler", err)
			return
		}
		c.JSON(http.StatusOK, invoice)
	}
}

func setInvoiceStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		var input setStatusRequest
		if !bindJSON(c, &input) {
			return
		}
		invoice, err := models.SetInvoiceStatus(c.Request.Context(), id, input.Status)
		if err != nil {
			respondError(c, "setInvoiceStatusHandler", err)
			return
		}
		c.JSON(http.StatusOK, invoice)
	}
}

// invoiceDocumentHandler returns the resolved render representation.
// ?template_id= previews another template without storing it.
func invoiceDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		templateId, err := queryInt(c, "template_id")
		if err != nil {
			respondError(c, "invoiceDocumentHandler", err)
			return
		}
		doc, err := models.BuildInvoiceDocument(c.Request.Context(), id, templateId)
		if err != nil {
			respondError(c, "invoiceDocumentHandler", err)
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

func renderInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		templateId, err := queryInt(c, "template_id")
		if err != nil {
			respondError(c, "renderInvoiceHandler", err)
			return
		}
		req, err := models.RequestInvoiceRender(c.Request.Context(), id, templateId)
		if err != nil {
			respondError(c, "renderInvoiceHandler", err)
			return
		}
		c.JSON(http.StatusAccepted, req)
	}
}

func exportInvoicesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		from, err := queryDate(c, "from")
		if err != nil {
			respondError(c, "exportInvoicesHandler", err)
			return
		}
		to, err := queryDate(c, "to")
		if err != nil {
			respondError(c, "exportInvoicesHandler", err)
			return
		}
		rows, err := reports.GetInvoiceRegister(c.Request.Context(), reports.InvoiceRegisterFilter{
			FromDate: from,
			ToDate:   to,
			Status:   invoiceStatusQuery(c),
		})
		if err != nil {
			respondError(c, "exportInvoicesHandler", err)
			return
		}
		filename := fmt.Sprintf("invoices-%s.xlsx", time.Now().UTC().Format(dateLayout))
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Header("Content-Type", xlsxContentType)
		c.Status(http.StatusOK)
		if err := reports.WriteInvoiceRegister(c.Writer, rows); err != nil {
			// headers are already sent
			_ = c.Error(err)
		}
	}
}
