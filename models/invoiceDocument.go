package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/invoicing_backend/config"
	"github.com/mmdatafocus/invoicing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceDocument is everything the rendering service needs: the currency and
// template are always resolved and the totals match the items.
type InvoiceDocument struct {
	Organization DocumentOrganization `json:"organization"`
	Customer     *DocumentCustomer    `json:"customer"`
	Invoice      DocumentInvoice      `json:"invoice"`
	Items        []DocumentItem       `json:"items"`
	TaxBreakdown []TaxGroup           `json:"tax_breakdown"`
	Template     DocumentTemplate     `json:"template"`
}

type DocumentOrganization struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	TaxId   string `json:"tax_id"`
	LogoUrl string `json:"logo_url"`
}

type DocumentCustomer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	TaxId   string `json:"tax_id"`
}

type DocumentInvoice struct {
	ID            int             `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       *time.Time      `json:"due_date"`
	Status        InvoiceStatus   `json:"status"`
	Currency      string          `json:"currency"`
	Notes         string          `json:"notes"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	Total         decimal.Decimal `json:"total"`
}

type DocumentItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type DocumentTemplate struct {
	ID     int            `json:"id"`
	Name   string         `json:"name"`
	Source TemplateSource `json:"source"`
	Config datatypes.JSON `json:"config"`
}

// BuildInvoiceDocument assembles the render representation of an invoice.
// It never writes: the explicit template only applies to this document.
func BuildInvoiceDocument(ctx context.Context, invoiceId int, explicitTemplateId *int) (*InvoiceDocument, error) {
	invoice, err := GetInvoice(ctx, invoiceId)
	if err != nil {
		return nil, err
	}
	org, err := GetOrganization(ctx, invoice.OrganizationId)
	if err != nil {
		return nil, err
	}
	res, err := ResolveInvoiceTemplate(ctx, invoice, explicitTemplateId)
	if err != nil {
		return nil, err
	}
	currency := invoice.Currency
	if currency == "" {
		if currency, err = ResolveCurrency(nil, org); err != nil {
			return nil, err
		}
	}

	lines := make([]TotalsLine, 0, len(invoice.Items))
	items := make([]DocumentItem, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		lines = append(lines, TotalsLine{Quantity: item.Quantity, UnitPrice: item.UnitPrice, TaxRate: item.TaxRate})
		items = append(items, DocumentItem{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TaxRate:     item.TaxRate,
			LineTotal:   item.LineTotal,
		})
	}
	totals, err := ComputeTotals(lines)
	if err != nil {
		return nil, err
	}
	if !totals.Total.Equal(invoice.Total) || !totals.TaxTotal.Equal(invoice.TaxTotal) || !totals.Subtotal.Equal(invoice.Subtotal) {
		err := utils.Conflict("invoice %d totals do not match its items", invoice.ID)
		config.LogError(config.GetLogger(), "InvoiceModule", "BuildInvoiceDocument", "stale totals", invoice.ID, err)
		return nil, err
	}

	doc := &InvoiceDocument{
		Organization: DocumentOrganization{
			ID:      org.ID,
			Name:    org.Name,
			Email:   org.Email,
			Phone:   org.Phone,
			Address: org.Address,
			TaxId:   org.TaxId,
			LogoUrl: org.LogoUrl,
		},
		Invoice: DocumentInvoice{
			ID:            invoice.ID,
			InvoiceNumber: invoice.InvoiceNumber,
			IssueDate:     invoice.IssueDate,
			DueDate:       invoice.DueDate,
			Status:        invoice.Status,
			Currency:      currency,
			Notes:         invoice.Notes,
			Subtotal:      invoice.Subtotal,
			TaxTotal:      invoice.TaxTotal,
			Total:         invoice.Total,
		},
		Items:        items,
		TaxBreakdown: totals.TaxBreakdown,
		Template: DocumentTemplate{
			ID:     res.Template.ID,
			Name:   res.Template.Name,
			Source: res.Source,
			Config: res.Template.Config,
		},
	}
	if invoice.CustomerId != nil {
		customer, err := utils.FetchModel[Customer](ctx, invoice.OrganizationId, *invoice.CustomerId)
		if err != nil {
			return nil, err
		}
		doc.Customer = &DocumentCustomer{
			Name:    customer.Name,
			Email:   customer.Email,
			Phone:   customer.Phone,
			Address: customer.Address,
			TaxId:   customer.TaxId,
		}
	}
	return doc, nil
}
