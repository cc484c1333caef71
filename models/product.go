package models

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/invoicing_backend/config"
	"github.com/mmdatafocus/invoicing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID             int             `gorm:"primary_key" json:"id"`
	OrganizationId string          `gorm:"size:36;index;not null" json:"organization_id"`
	Name           string          `gorm:"size:100;not null" json:"name"`
	Description    string          `gorm:"type:text" json:"description"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"unit_price"`
	VatRateId      *int            `gorm:"index" json:"vat_rate_id"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name        string          `json:"name" binding:"required,max=100"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	VatRateId   *int            `json:"vat_rate_id"`
}

func (input *NewProduct) validate(ctx context.Context, organizationId string, id int) error {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return utils.InvalidInput("product name is required")
	}
	if input.UnitPrice.IsNegative() {
		return utils.InvalidInput("unit price must not be negative")
	}
	if err := validateStored("unit price", input.UnitPrice); err != nil {
		return err
	}
	if err := utils.ValidateUnique[Product](ctx, organizationId, "name", input.Name, id); err != nil {
		return err
	}
	if input.VatRateId != nil {
		if err := utils.ValidateResourceId[VatRate](ctx, organizationId, *input.VatRateId); err != nil {
			return err
		}
	}
	return nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	if err := input.validate(ctx, organizationId, 0); err != nil {
		return nil, err
	}
	product := Product{
		OrganizationId: organizationId,
		Name:           input.Name,
		Description:    input.Description,
		UnitPrice:      input.UnitPrice,
		VatRateId:      input.VatRateId,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return &product, nil
}

func UpdateProduct(ctx context.Context, id int, input *NewProduct) (*Product, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	if err := utils.ValidateResourceId[Product](ctx, organizationId, id); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, organizationId, id); err != nil {
		return nil, err
	}
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&Product{}).
		Where("id = ? AND organization_id = ?", id, organizationId).
		Updates(map[string]interface{}{
			"name":        input.Name,
			"description": input.Description,
			"unit_price":  input.UnitPrice,
			"vat_rate_id": input.VatRateId,
		}).Error
	if err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return GetProduct(ctx, id)
}

// DeleteProduct detaches the product from existing items; the items keep their own price and rate.
func DeleteProduct(ctx context.Context, id int) (*Product, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	result, err := utils.FetchModel[Product](ctx, organizationId, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&InvoiceItem{}).Where("organization_id = ? AND product_id = ?", organizationId, id).
			Update("product_id", nil).Error; err != nil {
			return utils.ClassifyDBError(err)
		}
		return utils.ClassifyDBError(tx.Delete(result).Error)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	return utils.FetchModel[Product](ctx, organizationId, id)
}

func ListProducts(ctx context.Context, name *string) ([]*Product, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("organization_id = ?", organizationId)
	if name != nil && *name != "" {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	var results []*Product
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return results, nil
}

func getOrganizationProductTx(tx *gorm.DB, organizationId string, id int) (*Product, error) {
	var product Product
	if err := tx.Where("id = ? AND organization_id = ?", id, organizationId).First(&product).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return &product, nil
}
