package models

import (
	"context"
	"strconv"
	"time"

	"github.com/mmdatafocus/invoicing_backend/config"
	"github.com/mmdatafocus/invoicing_backend/utils"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// InvoiceNumberCounter holds the last invoice number handed out for an organization.
// It is only ever incremented, by AllocateInvoiceNumber.
type InvoiceNumberCounter struct {
	OrganizationId string    `gorm:"primary_key;size:36" json:"organization_id"`
	LastNumber     int64     `gorm:"not null;default:0" json:"last_number"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func createInvoiceNumberCounter(ctx context.Context, tx *gorm.DB, organizationId string, start int64) error {
	counter := InvoiceNumberCounter{
		OrganizationId: organizationId,
		LastNumber:     start,
	}
	if err := tx.WithContext(ctx).Create(&counter).Error; err != nil {
		return utils.ClassifyDBError(err)
	}
	return nil
}

// AllocateInvoiceNumber returns the next invoice number of the organization.
//
// The counter row is incremented in place by a single UPDATE and the new value is
// read back inside the same transaction, so the row lock taken by the UPDATE
// serializes concurrent callers. The transaction commits before returning: a
// number handed out is consumed even when the invoice that was meant to use it
// is never created.
func AllocateInvoiceNumber(ctx context.Context, organizationId string) (n int64, err error) {
	ctx, span := tracer.Start(ctx, "AllocateInvoiceNumber")
	span.SetAttributes(attribute.String("organization_id", organizationId))
	defer func() { endSpan(span, err) }()

	if organizationId == "" {
		return 0, utils.InvalidInput("organization id is required")
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&InvoiceNumberCounter{}).
			Where("organization_id = ?", organizationId).
			UpdateColumn("last_number", gorm.Expr("last_number + 1"))
		if res.Error != nil {
			return utils.ClassifyDBError(res.Error)
		}
		if res.RowsAffected == 0 {
			return utils.NotFound("invoice number counter for organization %s", organizationId)
		}
		var counter InvoiceNumberCounter
		if err := tx.Where("organization_id = ?", organizationId).Take(&counter).Error; err != nil {
			return utils.ClassifyDBError(err)
		}
		n = counter.LastNumber
		return nil
	})
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("invoice_number", n))
	return n, nil
}

func FormatInvoiceNumber(n int64) string {
	return strconv.FormatInt(n, 10)
}

// BackfillInvoiceNumberCounter creates the counter of an organization that has none,
// starting from the highest numeric invoice number it already uses.
// Returns false when the counter already existed.
func BackfillInvoiceNumberCounter(ctx context.Context, organizationId string) (bool, error) {
	db := config.GetDB()
	created := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// serializes with other backfills and with organization edits
		if _, err := lockOrganizationTx(tx, organizationId); err != nil {
			return err
		}
		count, err := utils.ResourceCountWhereTx[InvoiceNumberCounter](tx, organizationId, "1 = 1")
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		var numbers []string
		if err := tx.Model(&Invoice{}).Where("organization_id = ?", organizationId).
			Pluck("invoice_number", &numbers).Error; err != nil {
			return utils.ClassifyDBError(err)
		}
		var highest int64
		for _, s := range numbers {
			if v, err := strconv.ParseInt(s, 10, 64); err == nil && v > highest {
				highest = v
			}
		}
		if err := createInvoiceNumberCounter(ctx, tx, organizationId, highest); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}
