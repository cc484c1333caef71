package models

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/mmdatafocus/invoicing_backend/config"
	"github.com/mmdatafocus/invoicing_backend/utils"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Template is a presentation layout for rendered invoices.
// OrganizationId nil marks a global template, visible to every organization.
type Template struct {
	ID             int            `gorm:"primary_key" json:"id"`
	OrganizationId *string        `gorm:"size:36;index:idx_template_org_default,priority:1" json:"organization_id"`
	Name           string         `gorm:"size:150;not null" json:"name"`
	Description    string         `gorm:"type:text" json:"description"`
	Config         datatypes.JSON `json:"config"`
	IsDefault      bool           `gorm:"not null;default:false;index:idx_template_org_default,priority:2" json:"is_default"`
	CreatedAt      time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTemplate struct {
	Name        string          `json:"name" binding:"required,max=150"`
	Description string          `json:"description"`
	Config      json.RawMessage `json:"config"`
}

func (t Template) IsGlobal() bool {
	return t.OrganizationId == nil
}

func (input *NewTemplate) config() (datatypes.JSON, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, utils.InvalidInput("template name is required")
	}
	if len(input.Config) == 0 {
		return datatypes.JSON("{}"), nil
	}
	if !json.Valid(input.Config) {
		return nil, utils.InvalidInput("template config must be valid JSON")
	}
	return datatypes.JSON(input.Config), nil
}

func CreateTemplate(ctx context.Context, input *NewTemplate) (*Template, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	cfg, err := input.config()
	if err != nil {
		return nil, err
	}
	template := Template{
		OrganizationId: &organizationId,
		Name:           strings.TrimSpace(input.Name),
		Description:    input.Description,
		Config:         cfg,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&template).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return &template, nil
}

// CreateGlobalTemplate is admin only. A global template created as default
// becomes the newest global default and so wins the global fallback.
func CreateGlobalTemplate(ctx context.Context, input *NewTemplate, isDefault bool) (*Template, error) {
	cfg, err := input.config()
	if err != nil {
		return nil, err
	}
	template := Template{
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Config:      cfg,
		IsDefault:   isDefault,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&template).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return &template, nil
}

func ListGlobalTemplates(ctx context.Context) ([]*Template, error) {
	db := config.GetDB()
	var results []*Template
	if err := db.WithContext(ctx).Where("organization_id IS NULL").
		Order("created_at DESC, id DESC").Find(&results).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return results, nil
}

// templates visible to the organization: its own, then the global ones
func ListTemplates(ctx context.Context) ([]*Template, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	db := config.GetDB()
	var results []*Template
	err := db.WithContext(ctx).
		Where("organization_id = ? OR organization_id IS NULL", organizationId).
		Order("CASE WHEN organization_id IS NULL THEN 1 ELSE 0 END, id").
		Find(&results).Error
	if err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return results, nil
}

func GetTemplate(ctx context.Context, id int) (*Template, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	return getVisibleTemplateTx(config.GetDB().WithContext(ctx), organizationId, id)
}

// getVisibleTemplateTx fetches a template owned by the organization or global.
func getVisibleTemplateTx(tx *gorm.DB, organizationId string, id int) (*Template, error) {
	var template Template
	err := tx.Where("id = ? AND (organization_id = ? OR organization_id IS NULL)", id, organizationId).
		First(&template).Error
	if err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return &template, nil
}

func getOwnedTemplateTx(tx *gorm.DB, organizationId string, id int) (*Template, error) {
	var template Template
	if err := tx.Where("id = ? AND organization_id = ?", id, organizationId).First(&template).Error; err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	return &template, nil
}

// organization's default template, nil if none
func getOrganizationDefaultTemplateTx(tx *gorm.DB, organizationId string) (*Template, error) {
	var templates []*Template
	err := tx.Where("organization_id = ? AND is_default = ?", organizationId, true).
		Order("updated_at DESC, id DESC").Limit(1).Find(&templates).Error
	if err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	if len(templates) == 0 {
		return nil, nil
	}
	return templates[0], nil
}

// newest global default template, nil if none
func getGlobalDefaultTemplateTx(tx *gorm.DB) (*Template, error) {
	var templates []*Template
	err := tx.Where("organization_id IS NULL AND is_default = ?", true).
		Order("created_at DESC, id DESC").Limit(1).Find(&templates).Error
	if err != nil {
		return nil, utils.ClassifyDBError(err)
	}
	if len(templates) == 0 {
		return nil, nil
	}
	return templates[0], nil
}

func UpdateTemplate(ctx context.Context, id int, input *NewTemplate) (*Template, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	cfg, err := input.config()
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var template *Template
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		template, err = getOwnedTemplateTx(tx, organizationId, id)
		if err != nil {
			return err
		}
		err = tx.Model(template).Updates(map[string]interface{}{
			"name":        strings.TrimSpace(input.Name),
			"description": input.Description,
			"config":      cfg,
		}).Error
		return utils.ClassifyDBError(err)
	})
	if err != nil {
		return nil, err
	}
	return GetTemplate(ctx, template.ID)
}

// DeleteTemplate removes an organization template and clears it from the
// organization's invoices in the same transaction, so a stored reference
// never points at a missing template.
func DeleteTemplate(ctx context.Context, id int) (*Template, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	db := config.GetDB()
	var template *Template
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockOrganizationTx(tx, organizationId); err != nil {
			return err
		}
		var err error
		template, err = getOwnedTemplateTx(tx, organizationId, id)
		if err != nil {
			return err
		}
		if err := tx.Model(&Invoice{}).
			Where("organization_id = ? AND template_id = ?", organizationId, id).
			Update("template_id", nil).Error; err != nil {
			return utils.ClassifyDBError(err)
		}
		return utils.ClassifyDBError(tx.Delete(template).Error)
	})
	if err != nil {
		return nil, err
	}
	return template, nil
}

// DeleteGlobalTemplate is admin only; it clears the template from invoices of every organization.
func DeleteGlobalTemplate(ctx context.Context, id int) (*Template, error) {
	db := config.GetDB()
	var template Template
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND organization_id IS NULL", id).First(&template).Error; err != nil {
			return utils.ClassifyDBError(err)
		}
		if err := tx.Model(&Invoice{}).Where("template_id = ?", id).
			Update("template_id", nil).Error; err != nil {
			return utils.ClassifyDBError(err)
		}
		return utils.ClassifyDBError(tx.Delete(&template).Error)
	})
	if err != nil {
		return nil, err
	}
	return &template, nil
}

// SetDefaultTemplate makes the template the organization's only default.
func SetDefaultTemplate(ctx context.Context, id int) (template *Template, err error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.InvalidInput("organization id is required")
	}
	ctx, span := tracer.Start(ctx, "SetDefaultTemplate")
	span.SetAttributes(attribute.String("organization_id", organizationId), attribute.Int("template_id", id))
	defer func() { endSpan(span, err) }()

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return setDefaultTemplateTx(tx, organizationId, id)
	})
	if err != nil {
		return nil, err
	}
	return GetTemplate(ctx, id)
}

// setDefaultTemplateTx flips the default flag of every template of the organization
// in one statement: the target becomes true, all others false. The organization row
// lock orders concurrent switches so exactly one default is ever committed.
func setDefaultTemplateTx(tx *gorm.DB, organizationId string, id int) error {
	if _, err := lockOrganizationTx(tx, organizationId); err != nil {
		return err
	}
	if _, err := getOwnedTemplateTx(tx, organizationId, id); err != nil {
		return err
	}
	err := tx.Model(&Template{}).
		Where("organization_id = ?", organizationId).
		Update("is_default", gorm.Expr("(id = ?)", id)).Error
	return utils.ClassifyDBError(err)
}

// UnsetDefaultTemplate clears the organization's default so resolution falls back to the global default.
func UnsetDefaultTemplate(ctx context.Context) error {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return utils.InvalidInput("organization id is required")
	}
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockOrganizationTx(tx, organizationId); err != nil {
			return err
		}
		err := tx.Model(&Template{}).
			Where("organization_id = ? AND is_default = ?", organizationId, true).
			Update("is_default", false).Error
		return utils.ClassifyDBError(err)
	})
}

// CountDefaultTemplates is used by maintenance checks; more than one means a broken invariant.
func CountDefaultTemplates(ctx context.Context, organizationId string) (int64, error) {
	return utils.ResourceCountWhere[Template](ctx, organizationId, "is_default = ?", true)
}
