package models_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/mmdatafocus/invoicing_backend/config"
	"github.com/mmdatafocus/invoicing_backend/models"
	"github.com/mmdatafocus/invoicing_backend/models/reports"
	"github.com/mmdatafocus/invoicing_backend/utils"
)

func TestInvoiceDocument_NothingResolvable(t *testing.T) {
	ctx := setupIntegration(t)
	orgCtx, _ := signupOrganization(t, ctx, "doc-empty", "")

	invoice, err := models.CreateInvoice(orgCtx, &models.NewInvoice{})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	// No explicit, stored, organization or global template exists.
	if _, err := models.BuildInvoiceDocument(orgCtx, invoice.ID, nil); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected NotFound without any template, got %v", err)
	}
	if _, err := models.RequestInvoiceRender(orgCtx, invoice.ID, nil); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected render request to fail with NotFound, got %v", err)
	}
}

func TestInvoiceDocument_ReadOnlyAndComplete(t *testing.T) {
	ctx := setupIntegration(t)
	orgCtx, _ := signupOrganization(t, ctx, "doc", "gbp")

	global, err := models.CreateGlobalTemplate(ctx, &models.NewTemplate{Name: "Standard"}, true)
	if err != nil {
		t.Fatalf("CreateGlobalTemplate: %v", err)
	}
	preview, err := models.CreateTemplate(orgCtx, &models.NewTemplate{Name: "Preview"})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	invoice, err := models.CreateInvoice(orgCtx, &models.NewInvoice{
		Items: []models.NewInvoiceItem{
			{Description: "Consulting", Quantity: dec("2"), UnitPrice: decPtr("50.00"), TaxRate: decPtr("10")},
			{Description: "Book", Quantity: dec("1"), UnitPrice: decPtr("30.00"), TaxRate: decPtr("0")},
		},
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	doc, err := models.BuildInvoiceDocument(orgCtx, invoice.ID, &preview.ID)
	if err != nil {
		t.Fatalf("BuildInvoiceDocument: %v", err)
	}
	if doc.Invoice.Currency != "GBP" {
		t.Fatalf("expected currency GBP, got %q", doc.Invoice.Currency)
	}
	if doc.Template.ID != preview.ID || doc.Template.Source != models.TemplateSourceExplicit {
		t.Fatalf("expected explicit template %d, got %d from %s", preview.ID, doc.Template.ID, doc.Template.Source)
	}
	assertDecimal(t, "document subtotal", doc.Invoice.Subtotal, "130")
	assertDecimal(t, "document tax", doc.Invoice.TaxTotal, "10")
	assertDecimal(t, "document total", doc.Invoice.Total, "140")
	if len(doc.Items) != 2 || len(doc.TaxBreakdown) != 2 {
		t.Fatalf("expected 2 items and 2 tax groups, got %d and %d", len(doc.Items), len(doc.TaxBreakdown))
	}

	req, err := models.RequestInvoiceRender(orgCtx, invoice.ID, &preview.ID)
	if err != nil {
		t.Fatalf("RequestInvoiceRender: %v", err)
	}
	if req.TemplateId != preview.ID || req.PublishStatus != models.OutboxPublishStatusPending || len(req.Document) == 0 {
		t.Fatalf("unexpected render request %+v", req)
	}

	// Neither path stores the previewed template.
	stored, err := models.GetInvoice(orgCtx, invoice.ID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if stored.TemplateId != nil {
		t.Fatalf("render paths must not store a template, got %d", *stored.TemplateId)
	}
	doc, err = models.BuildInvoiceDocument(orgCtx, invoice.ID, nil)
	if err != nil {
		t.Fatalf("BuildInvoiceDocument: %v", err)
	}
	if doc.Template.ID != global.ID || doc.Template.Source != models.TemplateSourceGlobalDefault {
		t.Fatalf("expected global default %d, got %d from %s", global.ID, doc.Template.ID, doc.Template.Source)
	}

	rows, err := reports.GetInvoiceRegister(orgCtx, reports.InvoiceRegisterFilter{})
	if err != nil {
		t.Fatalf("GetInvoiceRegister: %v", err)
	}
	if len(rows) != 1 || rows[0].InvoiceNumber != invoice.InvoiceNumber {
		t.Fatalf("expected the register to list invoice %s, got %d rows", invoice.InvoiceNumber, len(rows))
	}
	assertDecimal(t, "register total", rows[0].Total, "140")
	var buf bytes.Buffer
	if err := reports.WriteInvoiceRegister(&buf, rows); err != nil {
		t.Fatalf("WriteInvoiceRegister: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected a workbook")
	}
}

func TestInvoiceDocument_StaleTotalsConflict(t *testing.T) {
	ctx := setupIntegration(t)
	orgCtx, _ := signupOrganization(t, ctx, "doc-stale", "")
	if _, err := models.CreateGlobalTemplate(ctx, &models.NewTemplate{Name: "Standard"}, true); err != nil {
		t.Fatalf("CreateGlobalTemplate: %v", err)
	}
	invoice, err := models.CreateInvoice(orgCtx, &models.NewInvoice{
		Items: []models.NewInvoiceItem{{Quantity: dec("1"), UnitPrice: decPtr("10"), TaxRate: decPtr("0")}},
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	// Simulate a write that changed the totals without the items.
	if err := config.GetDB().WithContext(orgCtx).Model(&models.Invoice{}).
		Where("id = ?", invoice.ID).
		Update("total", dec("11")).Error; err != nil {
		t.Fatalf("corrupt totals: %v", err)
	}
	if _, err := models.BuildInvoiceDocument(orgCtx, invoice.ID, nil); !errors.Is(err, utils.ErrConflict) {
		t.Fatalf("expected Conflict for totals that do not match the items, got %v", err)
	}
	if _, err := models.RequestInvoiceRender(orgCtx, invoice.ID, nil); !errors.Is(err, utils.ErrConflict) {
		t.Fatalf("render request must refuse stale totals, got %v", err)
	}
}
