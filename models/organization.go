package models

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/invoicing_backend/config"
	"github.com/mmdatafocus/invoicing_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Organization struct {
	ID              string    `gorm:"primary_key;size:36" json:"id"`
	Name            string    `gorm:"index;size:100;not null" json:"name"`
	DefaultCurrency string    `gorm:"size:3" json:"default_currency"`
	Email           string    `gorm:"size:255" json:"email"`
	Phone           string    `gorm:"size:20" json:"phone"`
	Address         string    `gorm:"type:text" json:"address"`
	TaxId           string    `gorm:"size:100" json:"tax_id"`
	LogoUrl         string    `gorm:"size:255" json:"logo_url"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOrganization struct {
	Name            string `json:"name" binding:"required,max=100"`
	DefaultCurrency string `json:"default_currency" binding:"omitempty,iso4217"`
	Email           string `json:"email" binding:"omitempty,email"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
	TaxId           string `json:"tax_id"`
	LogoUrl         string `json:"logo_url" binding:"omitempty,url"`
}

func (input *NewOrganization) normalize() error {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return utils.InvalidInput("organization name is required")
	}
	if input.DefaultCurrency != "" {
		code, err := NormalizeCurrency(input.DefaultCurrency)
		if err != nil {
			return err
		}
		input.DefaultCurrency = code
	}
	if input.Phone != "" {
		phone, err := utils.NormalizePhoneNumber(input.Phone, config.DefaultPhoneRegion())
		if err != nil {
			return err
		}
		input.Phone = phone
	}
	return nil
}

// createOrganizationTx creates the organization, its invoice number counter and
// the owner membership. Every organization has a counter from the moment it exists.
func createOrganizationTx(ctx context.Context, tx *gorm.DB, input *NewOrganization, ownerId int) (*Organization, error) {
	if err := input.normalize(); err != nil {
		return nil, err
	}
	org := Organization{
		ID:              uuid.NewString(),
		Name:            input.Name,
		DefaultCurrency: input.DefaultCurrency,
		Email:           input.Email,
		Phone:           input.Phone,
		Address:         input.Address,
		TaxId:           input.TaxId,
		LogoUrl:         input.LogoUrl,
	}
	if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	if err := createInvoiceNumberCounter(ctx, tx, org.ID, 0); err != nil {
		return nil, err
	}
	member := OrganizationMember{
		OrganizationId: org.ID,
		UserId:         ownerId,
		Role:           MemberRoleOwner,
	}
	if err := tx.WithContext(ctx).Create(&member).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return &org, nil
}

// CreateOrganization creates an additional organization owned by the current user.
func CreateOrganization(ctx context.Context, input *NewOrganization) (*Organization, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, utils.InvalidInput("user is required")
	}
	db := config.GetDB()
	var org *Organization
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		org, err = createOrganizationTx(ctx, tx, input, userId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

func GetOrganization(ctx context.Context, id string) (*Organization, error) {
	return getOrganizationTx(config.GetDB().WithContext(ctx), id)
}

func getOrganizationTx(tx *gorm.DB, id string) (*Organization, error) {
	var org Organization
	if err := tx.Where("id = ?", id).First(&org).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return &org, nil
}

// lockOrganizationTx takes the organization row lock that serializes
// default switching for the organization.
func lockOrganizationTx(tx *gorm.DB, id string) (*Organization, error) {
	var org Organization
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&org).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return &org, nil
}

func UpdateOrganization(ctx context.Context, input *NewOrganization) (*Organization, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	if err := input.normalize(); err != nil {
		return nil, err
	}
	db := config.GetDB()
	var org *Organization
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		org, err = lockOrganizationTx(tx, organizationId)
		if err != nil {
			return err
		}
		err = tx.Model(org).Updates(map[string]interface{}{
			"name":             input.Name,
			"default_currency": input.DefaultCurrency,
			"email":            input.Email,
			"phone":            input.Phone,
			"address":          input.Address,
			"tax_id":           input.TaxId,
			"logo_url":         input.LogoUrl,
		}).Error
		return utils.ClassifyDBError(err)
	})
	if err != nil {
		return nil, err
	}
	return GetOrganization(ctx, organizationId)
}

// organizations the current user belongs to
func ListMyOrganizations(ctx context.Context) ([]*Organization, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, utils.InvalidInput("user is required")
	}
	return listOrganizationsForUser(ctx, userId)
}

func listOrganizationsForUser(ctx context.Context, userId int) ([]*Organization, error) {
	db := config.GetDB()
	var results []*Organization
	err := db.WithContext(ctx).
		Joins("JOIN organization_members ON organization_members.organization_id = organizations.id").
		Where("organization_members.user_id = ?", userId).
		Order("organizations.created_at").
		Find(&results).Error
	if err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return results, nil
}
