package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/invoicing_backend/config"
	"github.com/mmdatafocus/invoicing_backend/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "DRAFT"
	InvoiceStatusSent    InvoiceStatus = "SENT"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
	InvoiceStatusVoid    InvoiceStatus = "VOID"
)

// Any status can be set from any other; there is no transition machine.
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusVoid:
		return true
	}
	return false
}

type Invoice struct {
	ID             int             `gorm:"primary_key" json:"id"`
	OrganizationId string          `gorm:"size:36;not null;uniqueIndex:idx_invoice_org_number,priority:1" json:"organization_id"`
	InvoiceNumber  string          `gorm:"size:30;not null;uniqueIndex:idx_invoice_org_number,priority:2" json:"invoice_number"`
	CustomerId     *int            `gorm:"index" json:"customer_id"`
	IssueDate      time.Time       `gorm:"not null" json:"issue_date"`
	DueDate        *time.Time      `json:"due_date"`
	Currency       string          `gorm:"size:3;not null" json:"currency"`
	Status         InvoiceStatus   `gorm:"size:10;not null;default:DRAFT;index" json:"status"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"subtotal"`
	TaxTotal       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"tax_total"`
	Total          decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total"`
	Notes          string          `gorm:"type:text" json:"notes"`
	TemplateId     *int            `gorm:"index" json:"template_id"`
	Items          []*InvoiceItem  `gorm:"foreignKey:InvoiceId" json:"items,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvoiceItem struct {
	ID             int             `gorm:"primary_key" json:"id"`
	InvoiceId      int             `gorm:"index;not null" json:"invoice_id"`
	OrganizationId string          `gorm:"size:36;index;not null" json:"organization_id"`
	ProductId      *int            `gorm:"index" json:"product_id"`
	VatRateId      *int            `json:"vat_rate_id"`
	Description    string          `gorm:"type:text" json:"description"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"quantity"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"unit_price"`
	TaxRate        decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"tax_rate"`
	LineTotal      decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"line_total"`
	SortOrder      int             `gorm:"not null;default:0" json:"sort_order"`
}

type NewInvoiceItem struct {
	ProductId   *int             `json:"product_id"`
	VatRateId   *int             `json:"vat_rate_id"`
	Description string           `json:"description"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	TaxRate     *decimal.Decimal `json:"tax_rate"`
}

type NewInvoice struct {
	CustomerId *int             `json:"customer_id"`
	IssueDate  *time.Time       `json:"issue_date"`
	DueDate    *time.Time       `json:"due_date"`
	Currency   *string          `json:"currency" binding:"omitempty,iso4217"`
	Notes      string           `json:"notes"`
	TemplateId *int             `json:"template_id"`
	Items      []NewInvoiceItem `json:"items"`
}

// UpdateInvoice replaces the header fields. A nil Currency keeps the current one;
// a nil TemplateId keeps the stored template.
type UpdateInvoice struct {
	CustomerId *int       `json:"customer_id"`
	IssueDate  *time.Time `json:"issue_date"`
	DueDate    *time.Time `json:"due_date"`
	Currency   *string    `json:"currency" binding:"omitempty,iso4217"`
	Notes      string     `json:"notes"`
	TemplateId *int       `json:"template_id"`
}

type InvoiceFilter struct {
	Status     *InvoiceStatus
	CustomerId *int
	After      *string
	Limit      int
}

type InvoicesPage struct {
	Invoices []*Invoice `json:"invoices"`
	PageInfo PageInfo   `json:"pageInfo"`
}

func validateInvoiceDates(issue time.Time, due *time.Time) error {
	if due != nil && due.Before(issue) {
		return utils.InvalidInput("due date is before issue date")
	}
	return nil
}

func validateInvoiceCustomer(tx *gorm.DB, organizationId string, customerId *int) error {
	if customerId == nil {
		return nil
	}
	count, err := utils.ResourceCountWhereTx[Customer](tx, organizationId, "id = ?", *customerId)
	if err != nil {
		return err
	}
	if count == 0 {
		return utils.NotFound("customer %d", *customerId)
	}
	return nil
}

func issueDateOrToday(d *time.Time) time.Time {
	if d != nil && !d.IsZero() {
		return *d
	}
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// prepareItems turns item input into rows and computes the invoice totals.
//
// The tax rate of an item comes from, in order: its VAT rate reference, an
// explicit rate, the product's VAT rate, the organization's default VAT rate.
// Referenced products and VAT rates must belong to the organization.
func prepareItems(tx *gorm.DB, organizationId string, inputs []NewInvoiceItem) ([]*InvoiceItem, *InvoiceTotals, error) {
	items := make([]*InvoiceItem, 0, len(inputs))
	lines := make([]TotalsLine, 0, len(inputs))

	var defaultRate *VatRate
	defaultLoaded := false
	vatRates := make(map[int]*VatRate)
	lookupVatRate := func(id int) (*VatRate, error) {
		if vr, ok := vatRates[id]; ok {
			return vr, nil
		}
		vr, err := getOrganizationVatRateTx(tx, organizationId, id)
		if err != nil {
			return nil, err
		}
		vatRates[id] = vr
		return vr, nil
	}

	for i, in := range inputs {
		item := &InvoiceItem{
			OrganizationId: organizationId,
			ProductId:      in.ProductId,
			Description:    strings.TrimSpace(in.Description),
			Quantity:       in.Quantity,
			SortOrder:      i + 1,
		}

		var product *Product
		if in.ProductId != nil {
			p, err := getOrganizationProductTx(tx, organizationId, *in.ProductId)
			if err != nil {
				return nil, nil, err
			}
			product = p
		}

		switch {
		case in.UnitPrice != nil:
			item.UnitPrice = *in.UnitPrice
		case product != nil:
			item.UnitPrice = product.UnitPrice
		default:
			return nil, nil, utils.InvalidInput("item %d: unit price is required", i+1)
		}
		if item.Description == "" && product != nil {
			item.Description = product.Name
		}

		switch {
		case in.VatRateId != nil:
			vr, err := lookupVatRate(*in.VatRateId)
			if err != nil {
				return nil, nil, err
			}
			item.VatRateId = &vr.ID
			item.TaxRate = vr.Rate
		case in.TaxRate != nil:
			item.TaxRate = *in.TaxRate
		case product != nil && product.VatRateId != nil:
			vr, err := lookupVatRate(*product.VatRateId)
			if err != nil {
				return nil, nil, err
			}
			item.VatRateId = &vr.ID
			item.TaxRate = vr.Rate
		default:
			if !defaultLoaded {
				vr, err := getDefaultVatRateTx(tx, organizationId)
				if err != nil {
					return nil, nil, err
				}
				defaultRate = vr
				defaultLoaded = true
			}
			if defaultRate != nil {
				item.VatRateId = &defaultRate.ID
				item.TaxRate = defaultRate.Rate
			} else {
				item.TaxRate = decimal.Zero
			}
		}

		items = append(items, item)
		lines = append(lines, TotalsLine{
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			TaxRate:   item.TaxRate,
		})
	}

	totals, err := ComputeTotals(lines)
	if err != nil {
		return nil, nil, err
	}
	for i := range items {
		items[i].LineTotal = totals.LineTotals[i]
	}
	return items, totals, nil
}

func CreateInvoice(ctx context.Context, input *NewInvoice) (result *Invoice, err error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	ctx, span := tracer.Start(ctx, "CreateInvoice")
	span.SetAttributes(attribute.String("organization_id", organizationId))
	defer func() { endSpan(span, err) }()

	db := config.GetDB()
	org, err := GetOrganization(ctx, organizationId)
	if err != nil {
		return nil, err
	}

	issueDate := issueDateOrToday(input.IssueDate)
	if err := validateInvoiceDates(issueDate, input.DueDate); err != nil {
		return nil, err
	}
	if err := validateInvoiceCustomer(db.WithContext(ctx), organizationId, input.CustomerId); err != nil {
		return nil, err
	}
	currency, err := ResolveCurrency(input.Currency, org)
	if err != nil {
		return nil, err
	}
	items, totals, err := prepareItems(db.WithContext(ctx), organizationId, input.Items)
	if err != nil {
		return nil, err
	}
	var explicit *TemplateResolution
	if input.TemplateId != nil {
		c, err := LoadTemplateCandidates(db.WithContext(ctx), organizationId, nil, input.TemplateId)
		if err != nil {
			return nil, err
		}
		if explicit, err = ResolveTemplate(c); err != nil {
			return nil, err
		}
	}

	// Everything that can be rejected has been checked; from here a failure leaves a gap.
	number, err := AllocateInvoiceNumber(ctx, organizationId)
	if err != nil {
		return nil, err
	}

	invoice := Invoice{
		OrganizationId: organizationId,
		InvoiceNumber:  FormatInvoiceNumber(number),
		CustomerId:     input.CustomerId,
		IssueDate:      issueDate,
		DueDate:        input.DueDate,
		Currency:       currency,
		Status:         InvoiceStatusDraft,
		Subtotal:       totals.Subtotal,
		TaxTotal:       totals.TaxTotal,
		Total:          totals.Total,
		Notes:          input.Notes,
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items").Create(&invoice).Error; err != nil {
			return utils.ClassifyDBError(err)
		}
		if err := insertItemsTx(tx, invoice.ID, items); err != nil {
			return err
		}
		invoice.Items = items
		_, err := CommitTemplateResolution(ctx, tx, &invoice, explicit)
		return err
	})
	if err != nil {
		if errors.Is(err, utils.ErrConflict) {
			// the allocator handed out a number that is already stored
			config.LogError(config.GetLogger(), "InvoiceModule", "CreateInvoice",
				"duplicate invoice number after allocation", invoice.InvoiceNumber, err)
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int("invoice_id", invoice.ID))
	return &invoice, nil
}

func insertItemsTx(tx *gorm.DB, invoiceId int, items []*InvoiceItem) error {
	if len(items) == 0 {
		return nil
	}
	for _, item := range items {
		item.InvoiceId = invoiceId
	}
	return utils.ClassifyDBError(tx.Create(&items).Error)
}

// lockInvoiceTx takes the invoice row lock that serializes writers of the invoice and its items.
func lockInvoiceTx(tx *gorm.DB, organizationId string, id int) (*Invoice, error) {
	var invoice Invoice
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND organization_id = ?", id, organizationId).
		First(&invoice).Error
	if err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return &invoice, nil
}

// GetInvoice reads the invoice and its items as one snapshot: the shared lock on the
// invoice row waits out any item replacement in flight.
func GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	db := config.GetDB()
	var invoice Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Where("id = ? AND organization_id = ?", id, organizationId).
			First(&invoice).Error
		if err != nil {
			return utils.ClassifyDBError(err)
		}
		err = tx.Where("invoice_id = ? AND organization_id = ?", id, organizationId).
			Order("sort_order, id").
			Find(&invoice.Items).Error
		return utils.ClassifyDBError(err)
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// ListInvoices pages newest first; items are not loaded.
func ListInvoices(ctx context.Context, filter *InvoiceFilter) (*InvoicesPage, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	if filter == nil {
		filter = &InvoiceFilter{}
	}
	limit := normalizePageSize(filter.Limit)
	after, err := DecodeCursor(filter.After)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("organization_id = ?", organizationId)
	if filter.Status != nil {
		if !filter.Status.IsValid() {
			return nil, utils.InvalidInput("unknown status %q", *filter.Status)
		}
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	if filter.CustomerId != nil {
		dbCtx = dbCtx.Where("customer_id = ?", *filter.CustomerId)
	}
	if after > 0 {
		dbCtx = dbCtx.Where("id < ?", after)
	}
	var results []*Invoice
	if err := dbCtx.Order("id DESC").Limit(limit + 1).Find(&results).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}

	page := &InvoicesPage{Invoices: results}
	if len(results) > limit {
		page.Invoices = results[:limit]
		page.PageInfo.HasNextPage = true
	}
	if n := len(page.Invoices); n > 0 {
		page.PageInfo.EndCursor = EncodeCursor(page.Invoices[n-1].ID)
	}
	return page, nil
}

func UpdateInvoiceHeader(ctx context.Context, id int, input *UpdateInvoice) (result *Invoice, err error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	ctx, span := tracer.Start(ctx, "UpdateInvoiceHeader")
	span.SetAttributes(attribute.String("organization_id", organizationId), attribute.Int("invoice_id", id))
	defer func() { endSpan(span, err) }()

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := lockInvoiceTx(tx, organizationId, id)
		if err != nil {
			return err
		}
		issueDate := issueDateOrToday(input.IssueDate)
		if input.IssueDate == nil {
			issueDate = invoice.IssueDate
		}
		if err := validateInvoiceDates(issueDate, input.DueDate); err != nil {
			return err
		}
		if err := validateInvoiceCustomer(tx, organizationId, input.CustomerId); err != nil {
			return err
		}
		currency := invoice.Currency
		if input.Currency != nil {
			if currency, err = NormalizeCurrency(*input.Currency); err != nil {
				return err
			}
		}
		if err := tx.Model(invoice).Updates(map[string]interface{}{
			"customer_id": input.CustomerId,
			"issue_date":  issueDate,
			"due_date":    input.DueDate,
			"currency":    currency,
			"notes":       input.Notes,
		}).Error; err != nil {
			return utils.ClassifyDBError(err)
		}
		if input.TemplateId != nil {
			c, err := LoadTemplateCandidates(tx, organizationId, invoice.TemplateId, input.TemplateId)
			if err != nil {
				return err
			}
			res, err := ResolveTemplate(c)
			if err != nil {
				return err
			}
			if _, err := CommitTemplateResolution(ctx, tx, invoice, res); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetInvoice(ctx, id)
}

// ReplaceInvoiceItems swaps the whole item set and the totals in one transaction
// under the invoice row lock.
func ReplaceInvoiceItems(ctx context.Context, id int, inputs []NewInvoiceItem) (result *Invoice, err error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	ctx, span := tracer.Start(ctx, "ReplaceInvoiceItems")
	span.SetAttributes(
		attribute.String("organization_id", organizationId),
		attribute.Int("invoice_id", id),
		attribute.Int("item_count", len(inputs)),
	)
	defer func() { endSpan(span, err) }()

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := lockInvoiceTx(tx, organizationId, id)
		if err != nil {
			return err
		}
		items, totals, err := prepareItems(tx, organizationId, inputs)
		if err != nil {
			return err
		}
		if err := tx.Where("invoice_id = ? AND organization_id = ?", id, organizationId).
			Delete(&InvoiceItem{}).Error; err != nil {
			return utils.ClassifyDBError(err)
		}
		if err := insertItemsTx(tx, id, items); err != nil {
			return err
		}
		err = tx.Model(invoice).Updates(map[string]interface{}{
			"subtotal":  totals.Subtotal,
			"tax_total": totals.TaxTotal,
			"total":     totals.Total,
		}).Error
		return utils.ClassifyDBError(err)
	})
	if err != nil {
		return nil, err
	}
	return GetInvoice(ctx, id)
}

func SetInvoiceStatus(ctx context.Context, id int, status InvoiceStatus) (*Invoice, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	status = InvoiceStatus(strings.ToUpper(string(status)))
	if !status.IsValid() {
		return nil, utils.InvalidInput("unknown status %q", status)
	}
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&Invoice{}).
		Where("id = ? AND organization_id = ?", id, organizationId).
		Update("status", status)
	if res.Error != nil {
		return nil, utils.ClassifyDBError(res.Error)
	}
	if res.RowsAffected == 0 {
		// either missing or already in that status
		if err := utils.ValidateResourceId[Invoice](ctx, organizationId, id); err != nil {
			return nil, err
		}
	}
	return GetInvoice(ctx, id)
}

// DeleteInvoice removes the invoice and its items. Its number stays consumed.
func DeleteInvoice(ctx context.Context, id int) (*Invoice, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	db := config.GetDB()
	var invoice *Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = lockInvoiceTx(tx, organizationId, id)
		if err != nil {
			return err
		}
		if err := tx.Where("invoice_id = ? AND organization_id = ?", id, organizationId).
			Delete(&InvoiceItem{}).Error; err != nil {
			return utils.ClassifyDBError(err)
		}
		return utils.ClassifyDBError(tx.Delete(invoice).Error)
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}
