package models

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/invoicing_backend/config"
	"github.com/mmdatafocus/invoicing_backend/utils"
	"gorm.io/gorm"
)

type Customer struct {
	ID             int       `gorm:"primary_key" json:"id"`
	OrganizationId string    `gorm:"size:36;index;not null" json:"organization_id"`
	Name           string    `gorm:"size:100;not null" json:"name"`
	Email          string    `gorm:"size:100" json:"email"`
	Phone          string    `gorm:"size:20" json:"phone"`
	Address        string    `gorm:"type:text" json:"address"`
	TaxId          string    `gorm:"size:100" json:"tax_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	Name    string `json:"name" binding:"required,max=100"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	TaxId   string `json:"tax_id"`
}

func (input *NewCustomer) validate(ctx context.Context, organizationId string, id int) error {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return utils.InvalidInput("customer name is required")
	}
	// validate unique name
	if err := utils.ValidateUnique[Customer](ctx, organizationId, "name", input.Name, id); err != nil {
		return err
	}
	// validate email
	if input.Email != "" {
		if !utils.IsValidEmail(input.Email) {
			return utils.InvalidInput("invalid email %q", input.Email)
		}
		if err := utils.ValidateUnique[Customer](ctx, organizationId, "email", input.Email, id); err != nil {
			return err
		}
	}
	// validate phone
	if input.Phone != "" {
		phone, err := utils.NormalizePhoneNumber(input.Phone, config.DefaultPhoneRegion())
		if err != nil {
			return err
		}
		input.Phone = phone
	}
	return nil
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	if err := input.validate(ctx, organizationId, 0); err != nil {
		return nil, err
	}
	customer := Customer{
		OrganizationId: organizationId,
		Name:           input.Name,
		Email:          input.Email,
		Phone:          input.Phone,
		Address:        input.Address,
		TaxId:          input.TaxId,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return &customer, nil
}

func UpdateCustomer(ctx context.Context, id int, input *NewCustomer) (*Customer, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	if err := utils.ValidateResourceId[Customer](ctx, organizationId, id); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, organizationId, id); err != nil {
		return nil, err
	}
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&Customer{}).
		Where("id = ? AND organization_id = ?", id, organizationId).
		Updates(map[string]interface{}{
			"name":    input.Name,
			"email":   input.Email,
			"phone":   input.Phone,
			"address": input.Address,
			"tax_id":  input.TaxId,
		}).Error
	if err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return GetCustomer(ctx, id)
}

// DeleteCustomer refuses while invoices still reference the customer.
func DeleteCustomer(ctx context.Context, id int) (*Customer, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	result, err := utils.FetchModel[Customer](ctx, organizationId, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		count, err := utils.ResourceCountWhereTx[Invoice](tx, organizationId, "customer_id = ?", id)
		if err != nil {
			return err
		}
		if count > 0 {
			return utils.InvalidInput("customer is used by %d invoice(s)", count)
		}
		return utils.ClassifyDBError(tx.Delete(result).Error)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	return utils.FetchModel[Customer](ctx, organizationId, id)
}

func ListCustomers(ctx context.Context, name *string) ([]*Customer, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("organization_id = ?", organizationId)
	if name != nil && *name != "" {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	var results []*Customer
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return results, nil
}
