package reports

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mmdatafocus/invoicing_backend/config"
	"github.com/mmdatafocus/invoicing_backend/models"
	"github.com/mmdatafocus/invoicing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const invoiceRegisterSheet = "Invoices"

type InvoiceRegisterFilter struct {
	FromDate *time.Time
	ToDate   *time.Time
	Status   *models.InvoiceStatus
}

type InvoiceRegisterRow struct {
	InvoiceNumber string               `json:"invoice_number"`
	IssueDate     time.Time            `json:"issue_date"`
	DueDate       *time.Time           `json:"due_date"`
	CustomerName  *string              `json:"customer_name"`
	Status        models.InvoiceStatus `json:"status"`
	Currency      string               `json:"currency"`
	Subtotal      decimal.Decimal      `json:"subtotal"`
	TaxTotal      decimal.Decimal      `json:"tax_total"`
	Total         decimal.Decimal      `json:"total"`
}

func (r InvoiceRegisterRow) cellValues() []interface{} {
	due := ""
	if r.DueDate != nil {
		due = r.DueDate.Format("2006-01-02")
	}
	return []interface{}{
		r.InvoiceNumber,
		r.IssueDate.Format("2006-01-02"),
		due,
		utils.DereferencePtr(r.CustomerName, ""),
		string(r.Status),
		r.Currency,
		r.Subtotal.StringFixed(models.MoneyPlaces),
		r.TaxTotal.StringFixed(models.MoneyPlaces),
		r.Total.StringFixed(models.MoneyPlaces),
	}
}

var invoiceRegisterHeadings = []string{
	"Invoice Number", "Issue Date", "Due Date", "Customer", "Status", "Currency", "Subtotal", "Tax", "Total",
}

func GetInvoiceRegister(ctx context.Context, filter InvoiceRegisterFilter) ([]*InvoiceRegisterRow, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	db := config.GetDB()
	q := db.WithContext(ctx).Table("invoices").
		Select(`invoices.invoice_number, invoices.issue_date, invoices.due_date, customers.name AS customer_name,
			invoices.status, invoices.currency, invoices.subtotal, invoices.tax_total, invoices.total`).
		Joins("LEFT JOIN customers ON customers.id = invoices.customer_id").
		Where("invoices.organization_id = ?", organizationId)
	if filter.FromDate != nil {
		q = q.Where("invoices.issue_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		q = q.Where("invoices.issue_date <= ?", *filter.ToDate)
	}
	if filter.Status != nil {
		q = q.Where("invoices.status = ?", *filter.Status)
	}
	var rows []*InvoiceRegisterRow
	if err := q.Order("invoices.issue_date, invoices.id").Scan(&rows).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return rows, nil
}

// WriteInvoiceRegister writes the rows as an .xlsx workbook.
func WriteInvoiceRegister(w io.Writer, rows []*InvoiceRegisterRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", invoiceRegisterSheet); err != nil {
		return err
	}
	for i, h := range invoiceRegisterHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(invoiceRegisterSheet, cell, h); err != nil {
			return err
		}
	}
	for r, row := range rows {
		for c, value := range row.cellValues() {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(invoiceRegisterSheet, cell, value); err != nil {
				return fmt.Errorf("write %s: %w", cell, err)
			}
		}
	}
	return f.Write(w)
}
