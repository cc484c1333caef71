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

type VatRate struct {
	ID             int             `gorm:"primary_key" json:"id"`
	OrganizationId string          `gorm:"size:36;index;not null" json:"organization_id"`
	Name           string          `gorm:"size:100;not null" json:"name"`
	Rate           decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"rate"`
	IsDefault      bool            `gorm:"not null;default:false" json:"is_default"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewVatRate struct {
	Name string          `json:"name" binding:"required,max=100"`
	Rate decimal.Decimal `json:"rate"`
}

func (input *NewVatRate) validate(ctx context.Context, organizationId string, id int) error {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return utils.InvalidInput("vat rate name is required")
	}
	if input.Rate.IsNegative() || input.Rate.GreaterThan(hundred) {
		return utils.InvalidInput("vat rate must be between 0 and 100")
	}
	if err := validateStored("vat rate", input.Rate); err != nil {
		return err
	}
	return utils.ValidateUnique[VatRate](ctx, organizationId, "name", input.Name, id)
}

func CreateVatRate(ctx context.Context, input *NewVatRate) (*VatRate, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	if err := input.validate(ctx, organizationId, 0); err != nil {
		return nil, err
	}
	vatRate := VatRate{
		OrganizationId: organizationId,
		Name:           input.Name,
		Rate:           input.Rate,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&vatRate).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return &vatRate, nil
}

func UpdateVatRate(ctx context.Context, id int, input *NewVatRate) (*VatRate, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	if err := utils.ValidateResourceId[VatRate](ctx, organizationId, id); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, organizationId, id); err != nil {
		return nil, err
	}
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&VatRate{}).
		Where("id = ? AND organization_id = ?", id, organizationId).
		Updates(map[string]interface{}{
			"name": input.Name,
			"rate": input.Rate,
		}).Error
	if err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return GetVatRate(ctx, id)
}

// DeleteVatRate keeps items that used the rate intact; they carry their own copy of the rate.
func DeleteVatRate(ctx context.Context, id int) (*VatRate, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	result, err := utils.FetchModel[VatRate](ctx, organizationId, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Product{}).Where("organization_id = ? AND vat_rate_id = ?", organizationId, id).
			Update("vat_rate_id", nil).Error; err != nil {
			return utils.ClassifyDBError(err)
		}
		return utils.ClassifyDBError(tx.Delete(result).Error)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func GetVatRate(ctx context.Context, id int) (*VatRate, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	return utils.FetchModel[VatRate](ctx, organizationId, id)
}

func ListVatRates(ctx context.Context) ([]*VatRate, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	return utils.FetchAllModels[VatRate](ctx, organizationId)
}

// SetDefaultVatRate switches the organization's default rate in a single statement.
func SetDefaultVatRate(ctx context.Context, id int) (*VatRate, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockOrganizationTx(tx, organizationId); err != nil {
			return err
		}
		count, err := utils.ResourceCountWhereTx[VatRate](tx, organizationId, "id = ?", id)
		if err != nil {
			return err
		}
		if count == 0 {
			return utils.NotFound("vat rate %d", id)
		}
		err = tx.Model(&VatRate{}).Where("organization_id = ?", organizationId).
			Update("is_default", gorm.Expr("(id = ?)", id)).Error
		return utils.ClassifyDBError(err)
	})
	if err != nil {
		return nil, err
	}
	return GetVatRate(ctx, id)
}

func getDefaultVatRateTx(tx *gorm.DB, organizationId string) (*VatRate, error) {
	var rates []*VatRate
	if err := tx.Where("organization_id = ? AND is_default = ?", organizationId, true).
		Order("id").Limit(1).Find(&rates).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	if len(rates) == 0 {
		return nil, nil
	}
	return rates[0], nil
}

// getOrganizationVatRateTx returns NotFound when the rate belongs to another organization.
func getOrganizationVatRateTx(tx *gorm.DB, organizationId string, id int) (*VatRate, error) {
	var rate VatRate
	if err := tx.Where("id = ? AND organization_id = ?", id, organizationId).First(&rate).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return &rate, nil
}
